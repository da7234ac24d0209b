// Package vcserr centralizes the error taxonomy shared by every component
// of the versioning engine (spec.md §7). Engine operations wrap these
// sentinels with context via fmt.Errorf("...: %w", err), so callers can
// dispatch on error kind with errors.Is. Not every failure carries one:
// errors from the backing store (on writes and ref scans) are returned
// with context added but no sentinel from this package.
package vcserr

import "errors"

var (
	// ErrNotInitialized is returned by engine operations that resolve the
	// current branch (HEAD) when HEAD has never been set, i.e. before Init.
	// Operations given an explicit branch name before Init fail with
	// ErrRefNotFound instead.
	ErrNotInitialized = errors.New("vcs: engine not initialized")
	// ErrRefNotFound is returned when a branch or ref lookup misses.
	ErrRefNotFound = errors.New("vcs: ref not found")
	// ErrRefExists is returned on a branch-create name collision.
	ErrRefExists = errors.New("vcs: ref already exists")
	// ErrInvalidRefName is returned when a branch name fails validation.
	ErrInvalidRefName = errors.New("vcs: invalid ref name")
	// ErrDetachedHead names the kind for a HEAD that does not point under
	// branch/. The engine does not return it: HEAD is only ever written as
	// branch/<name>, and a malformed stored HEAD value surfaces as the
	// store's own error from HeadManager.Current.
	ErrDetachedHead = errors.New("vcs: HEAD is detached")
	// ErrCommitNotFound is returned when a commit lookup by hash misses.
	ErrCommitNotFound = errors.New("vcs: commit not found")
	// ErrCorruptObject is returned when a Merkle node is referenced but
	// absent or fails to deserialize.
	ErrCorruptObject = errors.New("vcs: corrupt object")
	// ErrNoAncestorBefore is returned by time-travel when no commit on the
	// branch has a timestamp at or before the requested instant.
	ErrNoAncestorBefore = errors.New("vcs: no ancestor commit before requested time")
	// ErrProtectedBranch is returned when deleting main or the checked-out branch.
	ErrProtectedBranch = errors.New("vcs: branch is protected")
	// ErrMergeAlreadyApplied is returned by a terminal MergeResult operation
	// invoked on an already-settled result.
	ErrMergeAlreadyApplied = errors.New("vcs: merge result already applied")
	// ErrUnresolvedConflicts is returned by MergeResult.Apply with pending
	// conflicts, or ResolveWith(nil) when conflicts exist.
	ErrUnresolvedConflicts = errors.New("vcs: unresolved merge conflicts")
	// ErrStorageFailure names the kind for an underlying KV failure. The
	// engine does not wrap store errors with it: they propagate to the
	// caller with context added, and are never retried internally.
	ErrStorageFailure = errors.New("vcs: storage failure")
)
