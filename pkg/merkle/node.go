package merkle

import (
	"fmt"
	"sort"

	"github.com/0xlemi/structdb/pkg/value"
)

// The type* constants tag a node's Kind at the wire level; they mirror
// value.Kind but are serialized as short strings for readability and
// backward-compatible JSON (spec.md §3.2).
const (
	typeNull    = "null"
	typeBoolean = "boolean"
	typeNumber  = "number"
	typeString  = "string"
	typeObject  = "object"
	typeArray   = "array"

	// typeShardObject/typeShardArray tag a wide-fanout internal node whose
	// Children map goes from shard index ("0", "1", ...) to the hash of a
	// typeShard node holding a slice of the real (key, child-hash) pairs,
	// rather than holding those pairs directly (see shard.go/ShardChildren
	// and Build's wideFanoutThreshold check).
	typeShardObject = "object+shard"
	typeShardArray  = "array+shard"
	typeShard       = "shard"
)

func isShardedParent(t string) bool {
	return t == typeShardObject || t == typeShardArray
}

// Node is one Merkle tree node: a Leaf or an Internal.
type Node interface {
	// Hash returns the content hash of this node (H1/H2, spec.md §3.2).
	Hash() Hash
	// IsLeaf reports whether this node is a Leaf.
	IsLeaf() bool
}

// Leaf carries a primitive value: null, boolean, number, or string.
type Leaf struct {
	Type  string
	Value value.Value
}

// Internal carries a mapping from child key to child-node hash; Type is
// "object" or "array", or one of the shard tags for a wide-fanout node.
type Internal struct {
	Type     string
	Children map[string]Hash
}

func (l Leaf) IsLeaf() bool     { return true }
func (i Internal) IsLeaf() bool { return false }

// leafWire/internalWire are the canonical JSON shapes hashed and persisted.
type leafWire struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type internalWire struct {
	Type     string            `json:"type"`
	Children map[string]string `json:"children"`
}

// Hash computes the content hash of a Leaf: SHA-256 of the canonical
// encoding of {type, value}.
func (l Leaf) Hash() Hash {
	data, err := canonicalEncode(leafWire{Type: l.Type, Value: value.ToAny(l.Value)})
	if err != nil {
		// Encoding fails only for a NaN or infinite number, which
		// value.NewNumber accepts but JSON cannot represent; Hash panics
		// in that case.
		panic(fmt.Sprintf("merkle: leaf canonical encode failed: %v", err))
	}
	return hashBytes(data)
}

// Hash computes the content hash of an Internal node: SHA-256 of the
// canonical encoding of {type, children}, with children enumerated in
// sorted key order via encoding/json's map marshaling (invariant H1).
func (i Internal) Hash() Hash {
	children := make(map[string]string, len(i.Children))
	for k, h := range i.Children {
		children[k] = h.String()
	}
	data, err := canonicalEncode(internalWire{Type: i.Type, Children: children})
	if err != nil {
		panic(fmt.Sprintf("merkle: internal canonical encode failed: %v", err))
	}
	return hashBytes(data)
}

// SortedChildKeys returns i.Children's keys in lexicographic order.
func (i Internal) SortedChildKeys() []string {
	keys := make([]string, 0, len(i.Children))
	for k := range i.Children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func typeTagFor(k value.Kind) string {
	switch k {
	case value.KindNull:
		return typeNull
	case value.KindBool:
		return typeBoolean
	case value.KindNumber:
		return typeNumber
	case value.KindString:
		return typeString
	case value.KindArray:
		return typeArray
	case value.KindObject:
		return typeObject
	default:
		return typeNull
	}
}
