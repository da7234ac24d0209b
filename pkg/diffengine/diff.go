// Package diffengine implements the path-based diff algebra (spec.md §4.2):
// generate, apply, invert, merge, and conflict detection over
// pkg/value.Value. Diffs are flat, path-indexed descriptions of the
// minimal divergence between two values — not a tree of changes per
// ancestor path.
package diffengine

import (
	"sort"
	"strconv"
	"strings"

	"github.com/0xlemi/structdb/pkg/value"
)

// PathValue pairs a dotted path with the value written there.
type PathValue struct {
	Path  string
	Value value.Value
}

// Diff is the triple of disjoint-in-path change lists spec.md §3.5 defines.
type Diff struct {
	Added    []PathValue
	Modified []PathValue
	Deleted  []string
}

// rootPath is the sentinel path denoting the entire value (spec.md §3.5).
const rootPath = "."

// Generate produces the diff that turns a into b: a recursive comparison
// anchored at the root path. Type changes (primitive<->composite, or
// array<->object) are reported as a single Modified at that path without
// recursing; composite values of the same kind recurse on their key sets.
func Generate(a, b value.Value) Diff {
	d := Diff{}
	generate(rootPath, a, b, &d)
	sortDiff(&d)
	return d
}

func generate(path string, a, b value.Value, d *Diff) {
	aComposite, bComposite := a.IsComposite(), b.IsComposite()
	sameCompositeKind := aComposite && bComposite && a.Kind() == b.Kind()

	switch {
	case !aComposite && !bComposite:
		if !value.Equal(a, b) {
			d.Modified = append(d.Modified, PathValue{Path: path, Value: b})
		}
	case sameCompositeKind:
		aKeys := keySet(a)
		bKeys := keySet(b)
		for k := range aKeys {
			if _, ok := bKeys[k]; !ok {
				d.Deleted = append(d.Deleted, joinPath(path, k))
			}
		}
		for k := range bKeys {
			childB, _ := b.Get(k)
			if _, ok := aKeys[k]; !ok {
				d.Added = append(d.Added, PathValue{Path: joinPath(path, k), Value: childB})
				continue
			}
			childA, _ := a.Get(k)
			generate(joinPath(path, k), childA, childB, d)
		}
	default:
		// Type mismatch (primitive vs composite, or array vs object):
		// report as a single replacement, do not recurse.
		d.Modified = append(d.Modified, PathValue{Path: path, Value: b})
	}
}

// Apply applies d to a deep copy of v: unset every deleted path first,
// then set every modified, then every added path to its value. Setting a
// nonexistent intermediate path creates object mappings along the way.
// Unsetting a path never prunes its now-empty parent.
func Apply(v value.Value, d Diff) value.Value {
	result := v
	for _, p := range deletionOrder(d.Deleted) {
		result = unsetPath(result, p)
	}
	for _, pv := range d.Modified {
		result = setPath(result, pv.Path, pv.Value)
	}
	for _, pv := range d.Added {
		result = setPath(result, pv.Path, pv.Value)
	}
	return result
}

// deletionOrder returns a copy of paths safe to unset one at a time:
// unsetAt removes an array element by splicing, which shifts every
// higher index down, so deleting several indices out of the same array
// must proceed highest-index-first or the later deletes land on the
// wrong (already-shifted) element. paths is Diff.Deleted's own
// lexicographic order otherwise, which is fine since unrelated parents
// never interact.
func deletionOrder(paths []string) []string {
	out := make([]string, len(paths))
	copy(out, paths)
	sort.Slice(out, func(i, j int) bool {
		parentI, keyI := splitParent(out[i])
		parentJ, keyJ := splitParent(out[j])
		if parentI != parentJ {
			return parentI < parentJ
		}
		idxI, errI := parseIndex(keyI)
		idxJ, errJ := parseIndex(keyJ)
		if errI == nil && errJ == nil {
			return idxI > idxJ
		}
		return keyI < keyJ
	})
	return out
}

// splitParent splits a dotted path into its parent path and final
// segment, e.g. "items.3" -> ("items", "3"), "x" -> (rootPath, "x").
func splitParent(path string) (parent, key string) {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return rootPath, path
	}
	return path[:idx], path[idx+1:]
}

// Invert produces the diff that undoes d, given the pre-image value pre
// that d was generated from: apply(apply(pre, d), invert(pre, d)) == pre.
func Invert(pre value.Value, d Diff) Diff {
	inv := Diff{}
	for _, pv := range d.Added {
		inv.Deleted = append(inv.Deleted, pv.Path)
	}
	for _, p := range d.Deleted {
		if old, ok := lookupPath(pre, p); ok {
			inv.Added = append(inv.Added, PathValue{Path: p, Value: old})
		}
	}
	for _, pv := range d.Modified {
		old, _ := lookupPath(pre, pv.Path)
		inv.Modified = append(inv.Modified, PathValue{Path: pv.Path, Value: old})
	}
	sortDiff(&inv)
	return inv
}

// Conflict describes one path where two diffs disagree (spec.md §4.2).
type Conflict struct {
	Path string
}

// FindConflicts returns the paths at which diffs a and b conflict:
//   - both write (Added or Modified) the same path, even with equal values;
//   - one deletes a path the other writes;
//   - one path is a strict ancestor of the other's written or deleted path
//     (a structural conflict: e.g. side A replaces "user" wholesale while
//     side B edits "user.name").
func FindConflicts(a, b Diff) []Conflict {
	writtenA, deletedA := pathSets(a)
	writtenB, deletedB := pathSets(b)

	touchedA := unionSets(writtenA, deletedA)
	touchedB := unionSets(writtenB, deletedB)

	conflictSet := make(map[string]struct{})

	for p := range touchedA {
		_, writesA := writtenA[p]
		_, writesB := writtenB[p]
		if _, ok := touchedB[p]; ok && (writesA || writesB) {
			conflictSet[p] = struct{}{}
		}
	}
	for p := range touchedA {
		for q := range touchedB {
			if isStrictAncestor(p, q) {
				conflictSet[q] = struct{}{}
			}
			if isStrictAncestor(q, p) {
				conflictSet[p] = struct{}{}
			}
		}
	}

	paths := make([]string, 0, len(conflictSet))
	for p := range conflictSet {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]Conflict, len(paths))
	for i, p := range paths {
		out[i] = Conflict{Path: p}
	}
	return out
}

// Merge produces the union of two non-conflicting diffs. When a path is
// written or deleted by both, the second argument (b) wins. This is an
// administrative helper; the version-control engine's three-way merge does
// its own conflict-aware composition and does not call Merge.
func Merge(a, b Diff) Diff {
	added := map[string]value.Value{}
	modified := map[string]value.Value{}
	deleted := map[string]struct{}{}

	applyDiffTo := func(d Diff) {
		for _, pv := range d.Added {
			delete(deleted, pv.Path)
			delete(modified, pv.Path)
			added[pv.Path] = pv.Value
		}
		for _, pv := range d.Modified {
			delete(deleted, pv.Path)
			delete(added, pv.Path)
			modified[pv.Path] = pv.Value
		}
		for _, p := range d.Deleted {
			delete(added, p)
			delete(modified, p)
			deleted[p] = struct{}{}
		}
	}

	applyDiffTo(a)
	applyDiffTo(b)

	out := Diff{}
	for p, v := range added {
		out.Added = append(out.Added, PathValue{Path: p, Value: v})
	}
	for p, v := range modified {
		out.Modified = append(out.Modified, PathValue{Path: p, Value: v})
	}
	for p := range deleted {
		out.Deleted = append(out.Deleted, p)
	}
	sortDiff(&out)
	return out
}

// Lookup returns the value at path within v, and whether it was present.
func Lookup(v value.Value, path string) (value.Value, bool) {
	return lookupPath(v, path)
}

// SetPath returns a copy of v with newVal written at path, creating
// nonexistent intermediates as object mappings.
func SetPath(v value.Value, path string, newVal value.Value) value.Value {
	return setPath(v, path, newVal)
}

// IsPathRelated reports whether a and b are in an ancestor/descendant
// relationship (in either direction), the structural-conflict clause of
// spec.md §4.2 clause (iii).
func IsPathRelated(a, b string) bool {
	return isStrictAncestor(a, b) || isStrictAncestor(b, a)
}

func keySet(v value.Value) map[string]struct{} {
	keys := v.Keys()
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func joinPath(base, segment string) string {
	if base == rootPath {
		return segment
	}
	return base + "." + segment
}

func splitPath(p string) []string {
	if p == rootPath || p == "" {
		return nil
	}
	return strings.Split(p, ".")
}

func lookupPath(v value.Value, path string) (value.Value, bool) {
	if path == rootPath {
		return v, true
	}
	cur := v
	for _, seg := range splitPath(path) {
		child, ok := cur.Get(seg)
		if !ok {
			return value.Value{}, false
		}
		cur = child
	}
	return cur, true
}

func setPath(v value.Value, path string, newVal value.Value) value.Value {
	if path == rootPath {
		return newVal
	}
	segs := splitPath(path)
	return setAt(v, segs, newVal)
}

// setAt rebuilds v with newVal written at segs, preserving whichever shape
// v already had: writing through an array returns an array, writing
// through an object (or a nonexistent intermediate) returns an object,
// mirroring unsetAt's Object/Array branching below. Getting this wrong
// silently turns an edited array into a map keyed by stringified indices.
func setAt(v value.Value, segs []string, newVal value.Value) value.Value {
	if len(segs) == 0 {
		return newVal
	}
	head, rest := segs[0], segs[1:]

	if items, ok := v.Array(); ok {
		if idx, err := parseIndex(head); err == nil && idx >= 0 {
			out := make([]value.Value, len(items))
			copy(out, items)
			if idx < len(out) {
				out[idx] = setAt(out[idx], rest, newVal)
				return value.NewArray(out)
			}
			for len(out) < idx {
				out = append(out, value.Null)
			}
			out = append(out, setAt(value.Value{}, rest, newVal))
			return value.NewArray(out)
		}
	}

	fields := map[string]value.Value{}
	if existing, ok := v.Object(); ok {
		for k, val := range existing {
			fields[k] = val
		}
	}
	fields[head] = setAt(fields[head], rest, newVal)
	return value.NewObject(fields)
}

func unsetPath(v value.Value, path string) value.Value {
	if path == rootPath {
		return value.Null
	}
	segs := splitPath(path)
	return unsetAt(v, segs)
}

func unsetAt(v value.Value, segs []string) value.Value {
	if len(segs) == 1 {
		if obj, ok := v.Object(); ok {
			fields := map[string]value.Value{}
			for k, val := range obj {
				if k != segs[0] {
					fields[k] = val
				}
			}
			return value.NewObject(fields)
		}
		if arr, ok := v.Array(); ok {
			idx, err := parseIndex(segs[0])
			if err != nil || idx < 0 || idx >= len(arr) {
				return v
			}
			items := make([]value.Value, 0, len(arr)-1)
			items = append(items, arr[:idx]...)
			items = append(items, arr[idx+1:]...)
			return value.NewArray(items)
		}
		return v
	}

	head, rest := segs[0], segs[1:]
	child, ok := v.Get(head)
	if !ok {
		return v
	}
	updated := unsetAt(child, rest)
	return setAt(v, []string{head}, updated)
}

func pathSets(d Diff) (written map[string]struct{}, deleted map[string]struct{}) {
	written = make(map[string]struct{})
	deleted = make(map[string]struct{})
	for _, pv := range d.Added {
		written[pv.Path] = struct{}{}
	}
	for _, pv := range d.Modified {
		written[pv.Path] = struct{}{}
	}
	for _, p := range d.Deleted {
		deleted[p] = struct{}{}
	}
	return written, deleted
}

func unionSets(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

// isStrictAncestor reports whether ancestor is a strict dotted-segment
// prefix of descendant (and not equal to it).
func isStrictAncestor(ancestor, descendant string) bool {
	if ancestor == rootPath {
		return descendant != rootPath
	}
	if ancestor == descendant {
		return false
	}
	return strings.HasPrefix(descendant, ancestor+".")
}

func sortDiff(d *Diff) {
	sort.Slice(d.Added, func(i, j int) bool { return d.Added[i].Path < d.Added[j].Path })
	sort.Slice(d.Modified, func(i, j int) bool { return d.Modified[i].Path < d.Modified[j].Path })
	sort.Strings(d.Deleted)
}

func parseIndex(s string) (int, error) {
	return strconv.Atoi(s)
}
