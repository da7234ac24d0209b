package vcs

import (
	"fmt"
	"sync"

	"github.com/0xlemi/structdb/pkg/diffengine"
	"github.com/0xlemi/structdb/pkg/merkle"
	"github.com/0xlemi/structdb/pkg/value"
	"github.com/0xlemi/structdb/pkg/vcserr"
)

// Conflict describes one disputed path in a merge (spec.md §4.3.5 step 6):
// the value at that path in the ancestor, source, and target snapshots.
// A value is "undefined" when the path did not exist in that snapshot.
type Conflict struct {
	Path string

	Ancestor      value.Value
	AncestorFound bool
	Source        value.Value
	SourceFound   bool
	Target        value.Value
	TargetFound   bool
}

// MergeResult is the single-use handle spec.md §4.3.6 defines: it
// carries the computed merge and commits it only through one of its
// three terminal operations (Apply/ResolveWith/Abort), at most once
// (invariant M1).
type MergeResult struct {
	mu sync.Mutex

	engine *Engine

	Source       string
	Target       string
	AncestorHash merkle.Hash
	SourceHash   merkle.Hash
	TargetHash   merkle.Hash

	Merged    value.Value
	Conflicts []Conflict

	applied bool
}

// Merge computes a three-way merge of source into target (target
// defaults to the current branch) per spec.md §4.3.5. It does not
// commit anything; call Apply, ResolveWith, or Abort on the result.
func (e *Engine) Merge(source, target string) (*MergeResult, error) {
	if target == "" {
		current, err := e.head.Current()
		if err != nil {
			return nil, err
		}
		target = current
	}

	sourceHead, err := e.branches.Head(source)
	if err != nil {
		return nil, fmt.Errorf("vcs: merge %q into %q: %w", source, target, err)
	}
	targetHead, err := e.branches.Head(target)
	if err != nil {
		return nil, fmt.Errorf("vcs: merge %q into %q: %w", source, target, err)
	}

	result := &MergeResult{engine: e, Source: source, Target: target, SourceHash: sourceHead, TargetHash: targetHead}

	if source == target || sourceHead == targetHead {
		data, err := e.GetDataAtCommit(targetHead)
		if err != nil {
			return nil, err
		}
		result.AncestorHash = targetHead
		result.Merged = data
		return result, nil
	}

	ancestorHash, err := e.findCommonAncestor(sourceHead, targetHead)
	if err != nil {
		return nil, fmt.Errorf("vcs: merge %q into %q: %w", source, target, err)
	}
	result.AncestorHash = ancestorHash

	ancestorData, err := e.GetDataAtCommit(ancestorHash)
	if err != nil {
		return nil, err
	}
	sourceData, err := e.GetDataAtCommit(sourceHead)
	if err != nil {
		return nil, err
	}
	targetData, err := e.GetDataAtCommit(targetHead)
	if err != nil {
		return nil, err
	}

	dS := diffengine.Generate(ancestorData, sourceData)
	dT := diffengine.Generate(ancestorData, targetData)

	conflicts := diffengine.FindConflicts(dS, dT)
	conflictPaths := make(map[string]struct{}, len(conflicts))
	for _, c := range conflicts {
		conflictPaths[c.Path] = struct{}{}
	}

	cleaned := removeConflicting(dS, conflictPaths)
	result.Merged = diffengine.Apply(targetData, cleaned)

	result.Conflicts = make([]Conflict, len(conflicts))
	for i, c := range conflicts {
		av, aok := diffengine.Lookup(ancestorData, c.Path)
		sv, sok := diffengine.Lookup(sourceData, c.Path)
		tv, tok := diffengine.Lookup(targetData, c.Path)
		result.Conflicts[i] = Conflict{
			Path:          c.Path,
			Ancestor:      av,
			AncestorFound: aok,
			Source:        sv,
			SourceFound:   sok,
			Target:        tv,
			TargetFound:   tok,
		}
	}

	return result, nil
}

// removeConflicting drops every entry of d whose path is a conflicting
// path, a descendant of one, or an ancestor of one (spec.md §4.3.5
// step 5's auto-merge cleanup).
func removeConflicting(d diffengine.Diff, conflictPaths map[string]struct{}) diffengine.Diff {
	touches := func(p string) bool {
		for c := range conflictPaths {
			if p == c || diffengine.IsPathRelated(p, c) {
				return true
			}
		}
		return false
	}

	out := diffengine.Diff{}
	for _, pv := range d.Added {
		if !touches(pv.Path) {
			out.Added = append(out.Added, pv)
		}
	}
	for _, pv := range d.Modified {
		if !touches(pv.Path) {
			out.Modified = append(out.Modified, pv)
		}
	}
	for _, p := range d.Deleted {
		if !touches(p) {
			out.Deleted = append(out.Deleted, p)
		}
	}
	return out
}

// findCommonAncestor implements the corrected ancestor-discovery
// algorithm of spec.md §9's design notes: walk parent pointers from
// both heads, build the two ancestor sets (including each head itself),
// and return the hash in their intersection with the greatest
// timestamp. If the histories share nothing (should not happen once
// both trace back to the same root commit, but handled defensively),
// fall back to the older branch's root commit.
func (e *Engine) findCommonAncestor(sourceHead, targetHead merkle.Hash) (merkle.Hash, error) {
	sourceChain, err := e.parentChain(sourceHead)
	if err != nil {
		return merkle.Hash{}, err
	}
	targetChain, err := e.parentChain(targetHead)
	if err != nil {
		return merkle.Hash{}, err
	}

	sourceSet := make(map[merkle.Hash]*Commit, len(sourceChain))
	for _, c := range sourceChain {
		sourceSet[c.Hash] = c
	}

	var best *Commit
	for _, c := range targetChain {
		if other, ok := sourceSet[c.Hash]; ok {
			candidate := c
			if other.Timestamp > candidate.Timestamp {
				candidate = other
			}
			if best == nil || candidate.Timestamp > best.Timestamp {
				best = candidate
			}
		}
	}
	if best != nil {
		return best.Hash, nil
	}

	// Fallback: no shared commit found. Use the root commit of whichever
	// chain's root has the earlier timestamp.
	sourceRoot := sourceChain[len(sourceChain)-1]
	targetRoot := targetChain[len(targetChain)-1]
	if sourceRoot.Timestamp <= targetRoot.Timestamp {
		return sourceRoot.Hash, nil
	}
	return targetRoot.Hash, nil
}

// parentChain returns head and every ancestor reachable by following
// Parent pointers, head first.
func (e *Engine) parentChain(head merkle.Hash) ([]*Commit, error) {
	var chain []*Commit
	cur := head
	for !cur.IsZero() {
		c, err := e.getCommit(cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, c)
		cur = c.Parent
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("vcs: ancestor search: %w", vcserr.ErrCommitNotFound)
	}
	return chain, nil
}

// Apply commits Merged onto Target. Permitted only when there are no
// pending conflicts and the result has not already settled.
func (r *MergeResult) Apply(message string) (*Commit, error) {
	return r.settle(nil, message)
}

// ResolveWith applies resolutions to Merged at the given paths (a
// resolution for a non-conflicting path is accepted and overwrites
// Merged there too), then commits as Apply does. A nil/empty
// resolutions map is only valid when there are no conflicts.
func (r *MergeResult) ResolveWith(resolutions map[string]value.Value, message string) (*Commit, error) {
	return r.settle(resolutions, message)
}

func (r *MergeResult) settle(resolutions map[string]value.Value, message string) (*Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.applied {
		return nil, fmt.Errorf("vcs: merge result: %w", vcserr.ErrMergeAlreadyApplied)
	}
	if len(resolutions) == 0 && len(r.Conflicts) > 0 {
		return nil, fmt.Errorf("vcs: merge result: %w", vcserr.ErrUnresolvedConflicts)
	}

	merged := r.Merged
	for path, v := range resolutions {
		merged = diffengine.SetPath(merged, path, v)
	}

	if message == "" {
		message = fmt.Sprintf("Merge branch '%s' into %s", r.Source, r.Target)
	}

	commit, err := r.engine.Commit(r.Target, merged, message)
	if err != nil {
		return nil, err
	}
	r.applied = true
	return commit, nil
}

// Abort marks the result settled without committing anything.
func (r *MergeResult) Abort() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.applied {
		return fmt.Errorf("vcs: merge result: %w", vcserr.ErrMergeAlreadyApplied)
	}
	r.applied = true
	return nil
}
