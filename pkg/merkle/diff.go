package merkle

import "strings"

// StructuralDiff is the audit-level diff between two Merkle trees: a flat
// list of paths that were added, modified, or deleted, skipping any
// subtree whose hash is unchanged (spec.md §4.1 "Structural diff"). This
// is distinct from the value-level diff in pkg/diffengine, which merge
// uses; StructuralDiff exists primarily for audit/analysis.
type StructuralDiff struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// DiffTrees structurally compares the trees rooted at hashA and hashB,
// recursing only where hashes differ. A subtree that changes Kind
// (object<->array, or composite<->leaf) is reported as a single Modified
// at that path rather than as a deletion of every descendant. A wide
// node that crosses the sharding threshold on one side but not the
// other is likewise reported as a single Modified, since its Type tag
// changes (object <-> object+shard); this is an accepted imprecision of
// the audit-level structural diff, which pkg/diffengine's value-level
// diff (used by merge) does not share.
func DiffTrees(store ObjectStore, hashA, hashB Hash) (StructuralDiff, error) {
	result := StructuralDiff{}
	if hashA == hashB {
		return result, nil
	}

	nodeA, err := RetrieveTree(store, hashA)
	if err != nil {
		return result, err
	}
	nodeB, err := RetrieveTree(store, hashB)
	if err != nil {
		return result, err
	}

	if err := diffNodes(store, ".", nodeA, nodeB, &result); err != nil {
		return StructuralDiff{}, err
	}
	return result, nil
}

func diffNodes(store ObjectStore, path string, a, b Node, result *StructuralDiff) error {
	internalA, aIsInternal := a.(Internal)
	internalB, bIsInternal := b.(Internal)

	if !aIsInternal || !bIsInternal || internalA.Type != internalB.Type {
		// Leaf vs leaf (value differs, since hashes differ at this
		// point), leaf vs internal, or internal object vs internal
		// array: all reported as a single replacement at path.
		result.Modified = append(result.Modified, path)
		return nil
	}

	// Sharded parents are compared by their real (key, child-hash) pairs,
	// not by shard index, so reported paths are value paths.
	childrenA, err := flattenChildren(store, internalA)
	if err != nil {
		return err
	}
	childrenB, err := flattenChildren(store, internalB)
	if err != nil {
		return err
	}

	allKeys := make(map[string]struct{}, len(childrenA)+len(childrenB))
	for k := range childrenA {
		allKeys[k] = struct{}{}
	}
	for k := range childrenB {
		allKeys[k] = struct{}{}
	}

	for k := range allKeys {
		childPath := joinPath(path, k)
		hashA, inA := childrenA[k]
		hashB, inB := childrenB[k]

		switch {
		case inA && !inB:
			result.Deleted = append(result.Deleted, childPath)
		case !inA && inB:
			result.Added = append(result.Added, childPath)
		case hashA == hashB:
			// identical subtree, skip (H1 makes this a cheap check)
		default:
			childA, err := RetrieveTree(store, hashA)
			if err != nil {
				return err
			}
			childB, err := RetrieveTree(store, hashB)
			if err != nil {
				return err
			}
			if err := diffNodes(store, childPath, childA, childB, result); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinPath(base, segment string) string {
	if base == "." {
		return segment
	}
	return base + "." + segment
}

// LCA returns the longest dotted-path prefix shared by every path in
// paths, at segment granularity (not byte granularity). An empty input
// returns ".". Used by callers summarizing where a set of conflicts live.
func LCA(paths []string) string {
	if len(paths) == 0 {
		return "."
	}
	common := strings.Split(paths[0], ".")
	for _, p := range paths[1:] {
		segs := strings.Split(p, ".")
		common = commonPrefix(common, segs)
		if len(common) == 0 {
			return "."
		}
	}
	if len(common) == 0 {
		return "."
	}
	return strings.Join(common, ".")
}

func commonPrefix(a, b []string) []string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}
