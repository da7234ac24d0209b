package merkle

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/0xlemi/structdb/pkg/value"
)

// ObjectStore is the minimal object-namespace contract the Merkle engine
// needs from the persistence layer (spec.md §6.1): content-addressed
// put/get/exists by hash. pkg/kv.Store satisfies this structurally.
type ObjectStore interface {
	PutObject(hash Hash, data []byte) error
	GetObject(hash Hash) ([]byte, error)
	ExistsObject(hash Hash) bool
}

// Build recursively walks v and constructs its Merkle tree in memory,
// returning the root hash and every node touched, keyed by hash, ready for
// StoreTree to materialize. Mappings and sequences enumerate child keys in
// sorted order before recursing, which is what makes H1 (canonical
// hashing) hold regardless of a map's iteration order or insertion history.
func Build(v value.Value) (Hash, map[Hash]Node) {
	nodes := make(map[Hash]Node)
	root := build(v, nodes)
	return root, nodes
}

func build(v value.Value, nodes map[Hash]Node) Hash {
	switch v.Kind() {
	case value.KindObject, value.KindArray:
		keys := v.SortedKeys()
		children := make(map[string]Hash, len(keys))
		for _, k := range keys {
			child, _ := v.Get(k)
			children[k] = build(child, nodes)
		}
		if len(children) >= wideFanoutThreshold {
			return buildSharded(v.Kind(), children, nodes)
		}
		node := Internal{Type: typeTagFor(v.Kind()), Children: children}
		h := node.Hash()
		nodes[h] = node
		return h
	default:
		node := Leaf{Type: typeTagFor(v.Kind()), Value: v}
		h := node.Hash()
		nodes[h] = node
		return h
	}
}

// buildSharded splits a wide-fanout composite's (key, child-hash) pairs
// into content-defined shards (ShardChildren) and assembles a two-level
// node pair for it: one typeShard node per shard, addressed by a parent
// node whose own Children map goes from shard index to shard-node hash.
// This is the teacher's Buzhash chunker, repurposed per spec.md's
// supplemented wide-fanout feature (see SPEC_FULL.md §7): editing one
// child only re-hashes its shard and the parent, not every sibling under
// the same composite.
func buildSharded(kind value.Kind, children map[string]Hash, nodes map[Hash]Node) Hash {
	parentType := typeShardObject
	if kind == value.KindArray {
		parentType = typeShardArray
	}

	shardGroups := ShardChildren(children)
	parentChildren := make(map[string]Hash, len(shardGroups))
	for i, group := range shardGroups {
		shardChildren := make(map[string]Hash, len(group))
		for _, k := range group {
			shardChildren[k] = children[k]
		}
		shardNode := Internal{Type: typeShard, Children: shardChildren}
		sh := shardNode.Hash()
		nodes[sh] = shardNode
		parentChildren[strconv.Itoa(i)] = sh
	}

	parentNode := Internal{Type: parentType, Children: parentChildren}
	ph := parentNode.Hash()
	nodes[ph] = parentNode
	return ph
}

// StoreTree persists every node in nodes under its hash key, skipping any
// hash that already exists in store (deduplication via H2/H1 — structural
// sharing is automatic because equal subtrees hash identically). Returns
// the first write error encountered; callers SHOULD group this inside a
// single persistence-layer transaction (spec.md §5).
func StoreTree(store ObjectStore, nodes map[Hash]Node) error {
	for hash, node := range nodes {
		if store.ExistsObject(hash) {
			continue
		}
		data, err := Serialize(node)
		if err != nil {
			return fmt.Errorf("merkle: serialize node %s: %w", hash, err)
		}
		if err := store.PutObject(hash, data); err != nil {
			return fmt.Errorf("merkle: store node %s: %w", hash, err)
		}
	}
	return nil
}

// StoreValue is the common build+materialize sequence: build the tree for
// v and persist every node, returning the root hash.
func StoreValue(store ObjectStore, v value.Value) (Hash, error) {
	root, nodes := Build(v)
	if err := StoreTree(store, nodes); err != nil {
		return Hash{}, err
	}
	return root, nil
}

// RetrieveTree reads and deserializes the single node stored at hash. It
// does not follow child hashes: an Internal comes back with its Children
// map of hashes only, and ToValue and DiffTrees read children one node at
// a time. A missing hash surfaces as the store's GetObject error, wrapped;
// this package has no dependency on the engine's error taxonomy, and the
// engine (pkg/vcs) classifies a failed read as vcserr.ErrCorruptObject.
func RetrieveTree(store ObjectStore, hash Hash) (Node, error) {
	data, err := store.GetObject(hash)
	if err != nil {
		return nil, fmt.Errorf("merkle: retrieve node %s: %w", hash, err)
	}
	node, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("merkle: deserialize node %s: %w", hash, err)
	}
	return node, nil
}

// ToValue projects a fully-reachable tree rooted at hash back into a
// value.Value, reading child nodes from store as needed. Array children
// are ordered numerically by their synthetic index keys, not
// lexicographically — this is the array round-trip correction mandated by
// spec.md §4.1/§9: lexicographic ordering corrupts arrays of length >= 10
// (e.g. "10" sorts before "2").
func ToValue(store ObjectStore, hash Hash) (value.Value, error) {
	node, err := RetrieveTree(store, hash)
	if err != nil {
		return value.Value{}, err
	}
	return toValue(store, node)
}

func toValue(store ObjectStore, node Node) (value.Value, error) {
	switch n := node.(type) {
	case Leaf:
		return n.Value, nil
	case Internal:
		children, err := flattenChildren(store, n)
		if err != nil {
			return value.Value{}, err
		}
		switch n.Type {
		case typeArray, typeShardArray:
			indices := make([]int, 0, len(children))
			byIndex := make(map[int]Hash, len(children))
			for k, h := range children {
				idx, err := strconv.Atoi(k)
				if err != nil {
					return value.Value{}, fmt.Errorf("merkle: non-numeric array key %q", k)
				}
				indices = append(indices, idx)
				byIndex[idx] = h
			}
			sort.Ints(indices)
			items := make([]value.Value, len(indices))
			for i, idx := range indices {
				childNode, err := RetrieveTree(store, byIndex[idx])
				if err != nil {
					return value.Value{}, err
				}
				childVal, err := toValue(store, childNode)
				if err != nil {
					return value.Value{}, err
				}
				items[i] = childVal
			}
			return value.NewArray(items), nil
		default: // typeObject, typeShardObject
			fields := make(map[string]value.Value, len(children))
			for k, h := range children {
				childNode, err := RetrieveTree(store, h)
				if err != nil {
					return value.Value{}, err
				}
				childVal, err := toValue(store, childNode)
				if err != nil {
					return value.Value{}, err
				}
				fields[k] = childVal
			}
			return value.NewObject(fields), nil
		}
	default:
		return value.Value{}, fmt.Errorf("merkle: unknown node type %T", node)
	}
}

// flattenChildren returns n's real (key, child-hash) pairs. For an
// ordinary object/array node this is just n.Children; for a sharded
// parent (typeShardObject/typeShardArray) it reads each typeShard child
// and merges their Children maps back into one, undoing ShardChildren's
// split so callers never need to know a node was sharded.
func flattenChildren(store ObjectStore, n Internal) (map[string]Hash, error) {
	if !isShardedParent(n.Type) {
		return n.Children, nil
	}
	flat := make(map[string]Hash)
	for _, shardHash := range n.Children {
		shardNode, err := RetrieveTree(store, shardHash)
		if err != nil {
			return nil, err
		}
		shardInternal, ok := shardNode.(Internal)
		if !ok || shardInternal.Type != typeShard {
			return nil, fmt.Errorf("merkle: expected shard node at %s, got %T", shardHash, shardNode)
		}
		for k, h := range shardInternal.Children {
			flat[k] = h
		}
	}
	return flat, nil
}
