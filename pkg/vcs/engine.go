// Package vcs implements the version control engine (spec.md §4.3):
// branches, HEAD, commits, history, time-travel, and three-way merge,
// built on top of pkg/kv's Object Store façade and pkg/merkle/pkg/diffengine.
package vcs

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/0xlemi/structdb/pkg/diffengine"
	"github.com/0xlemi/structdb/pkg/kv"
	"github.com/0xlemi/structdb/pkg/merkle"
	"github.com/0xlemi/structdb/pkg/value"
	"github.com/0xlemi/structdb/pkg/vcserr"
)

// mainBranch is the branch created by Init and protected from deletion.
const mainBranch = "main"

// Engine is a long-lived handle bound to one backing kv.Store (spec.md
// §6.2: "a single long-lived engine handle bound to a database name").
// Grounded on the teacher's pkg/store.Store, generalized from a
// byte-KV working state + prolly tree to whole-Value snapshots + Merkle
// tree, and from file-backed refs to the kv.Store façade.
type Engine struct {
	store    kv.Store
	branches *BranchManager
	head     *HeadManager
	logger   *log.Logger
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the engine's logger. The default discards output,
// matching the teacher's silent-library posture (examples/demo/main.go
// is the only component that logs to a live writer).
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// Open constructs an Engine over an already-opened kv.Store. Callers
// still must call Init before any other operation on a fresh database.
func Open(store kv.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: log.New(io.Discard, "", 0),
	}
	e.branches = newBranchManager(store)
	e.head = newHeadManager(store, e.branches)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init performs first-time initialization (spec.md §4.3.1): an empty
// mapping committed as the root commit of branch "main", with HEAD
// pointing at it. A subsequent call on an already-initialized database
// is a no-op.
func (e *Engine) Init() error {
	if e.branches.Exists(mainBranch) {
		return e.head.Initialize(mainBranch)
	}

	rootHash, err := merkle.StoreValue(e.store, value.NewObject(nil))
	if err != nil {
		return fmt.Errorf("vcs: init: %w", err)
	}

	commit, _ := newCommitRecord(mainBranch, rootHash, nil, defaultCommitMessage, e.now())
	if err := e.store.SaveCommitAndRef(commit.record(), refName(mainBranch)); err != nil {
		return fmt.Errorf("vcs: init: %w", err)
	}

	if err := e.head.Initialize(mainBranch); err != nil {
		return fmt.Errorf("vcs: init: %w", err)
	}

	e.logger.Printf("initialized database, root commit %s on %s", commit.Hash, mainBranch)
	return nil
}

// Close releases the underlying store's resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

func (e *Engine) now() int64 {
	return time.Now().UnixMilli()
}

// GetCurrentBranch returns the name of the checked-out branch.
func (e *Engine) GetCurrentBranch() (string, error) {
	return e.head.Current()
}

// ListBranches returns every branch name.
func (e *Engine) ListBranches() ([]string, error) {
	return e.branches.List()
}

// Branch creates a new branch pointing at src's head (src defaults to
// the current branch). Fails if new already exists or src is absent.
func (e *Engine) Branch(newName, src string) error {
	if src == "" {
		current, err := e.head.Current()
		if err != nil {
			return err
		}
		src = current
	}

	srcHead, err := e.branches.Head(src)
	if err != nil {
		return fmt.Errorf("vcs: branch %q from %q: %w", newName, src, err)
	}

	if err := e.branches.Create(newName, srcHead); err != nil {
		return fmt.Errorf("vcs: branch %q: %w", newName, err)
	}
	e.logger.Printf("created branch %s from %s at %s", newName, src, srcHead)
	return nil
}

// Checkout sets HEAD to branch name. There is no detached-HEAD
// equivalent (spec.md §3.4).
func (e *Engine) Checkout(name string) error {
	if err := e.head.Checkout(name); err != nil {
		return err
	}
	e.logger.Printf("checked out %s", name)
	return nil
}

// DeleteBranch removes a branch ref. Forbidden for "main" and for the
// currently checked-out branch (spec.md §4.3.3).
func (e *Engine) DeleteBranch(name string) error {
	if name == mainBranch {
		return fmt.Errorf("vcs: delete %q: %w", name, vcserr.ErrProtectedBranch)
	}
	current, err := e.head.Current()
	if err != nil {
		return err
	}
	if name == current {
		return fmt.Errorf("vcs: delete %q: %w", name, vcserr.ErrProtectedBranch)
	}
	if err := e.branches.Delete(name); err != nil {
		return fmt.Errorf("vcs: delete %q: %w", name, err)
	}
	e.logger.Printf("deleted branch %s", name)
	return nil
}

// Commit builds data's Merkle tree, materializes it, and advances
// branch's head (branch defaults to the current branch). Returns the
// new (or, under the C2 no-op resolution, the unchanged) commit.
func (e *Engine) Commit(branch string, data value.Value, message string) (*Commit, error) {
	if branch == "" {
		current, err := e.head.Current()
		if err != nil {
			return nil, err
		}
		branch = current
	}

	parentHash, err := e.branches.Head(branch)
	if err != nil {
		return nil, fmt.Errorf("vcs: commit on %q: %w", branch, err)
	}
	parentCommit, err := e.getCommit(parentHash)
	if err != nil {
		return nil, fmt.Errorf("vcs: commit on %q: %w", branch, err)
	}

	rootHash, err := merkle.StoreValue(e.store, data)
	if err != nil {
		return nil, fmt.Errorf("vcs: commit on %q: %w", branch, err)
	}

	commit, noop := newCommitRecord(branch, rootHash, parentCommit, message, e.now())
	if noop {
		return commit, nil
	}

	if err := e.store.SaveCommitAndRef(commit.record(), refName(branch)); err != nil {
		return nil, fmt.Errorf("vcs: commit on %q: %w", branch, err)
	}
	e.logger.Printf("committed %s on %s: %s", commit.Hash, branch, commit.Message)
	return commit, nil
}

// GetHistory returns every commit attributed to branch (branch defaults
// to the current branch), timestamp-descending (spec.md §4.3.4:
// attribution-based, not a parent-chain walk).
func (e *Engine) GetHistory(branch string) ([]*Commit, error) {
	if branch == "" {
		current, err := e.head.Current()
		if err != nil {
			return nil, err
		}
		branch = current
	}
	records, err := e.store.CommitsForBranch(branch)
	if err != nil {
		return nil, fmt.Errorf("vcs: history of %q: %w", branch, err)
	}
	commits := make([]*Commit, len(records))
	for i, r := range records {
		commits[i] = commitFromRecord(r)
	}
	return commits, nil
}

// GetData returns the current branch's head data.
func (e *Engine) GetData() (value.Value, error) {
	current, err := e.head.Current()
	if err != nil {
		return value.Value{}, err
	}
	return e.GetBranchData(current)
}

// GetBranchData returns the data at name's head commit.
func (e *Engine) GetBranchData(name string) (value.Value, error) {
	hash, err := e.branches.Head(name)
	if err != nil {
		return value.Value{}, fmt.Errorf("vcs: data of %q: %w", name, err)
	}
	return e.GetDataAtCommit(hash)
}

// GetDataAtCommit returns the data stored by the commit identified by
// hash.
func (e *Engine) GetDataAtCommit(hash merkle.Hash) (value.Value, error) {
	commit, err := e.getCommit(hash)
	if err != nil {
		return value.Value{}, err
	}
	v, err := merkle.ToValue(e.store, commit.RootHash)
	if err != nil {
		return value.Value{}, fmt.Errorf("vcs: data at %s: %w: %w", hash, vcserr.ErrCorruptObject, err)
	}
	return v, nil
}

// GetDataAt returns the data at the most recent commit on branch with
// Timestamp <= atMillis. Fails with ErrNoAncestorBefore if none exists.
func (e *Engine) GetDataAt(branch string, atMillis int64) (value.Value, error) {
	records, err := e.store.CommitsForBranch(branch)
	if err != nil {
		return value.Value{}, fmt.Errorf("vcs: data at time on %q: %w", branch, err)
	}
	// records are timestamp-descending; the first with Timestamp <= atMillis
	// is the most recent eligible commit.
	for _, r := range records {
		if r.Timestamp <= atMillis {
			return e.GetDataAtCommit(r.Hash)
		}
	}
	return value.Value{}, fmt.Errorf("vcs: data at time on %q: %w", branch, vcserr.ErrNoAncestorBefore)
}

// Diff is a pure helper exposing pkg/diffengine.Generate at the engine
// boundary (spec.md §6.2: "pure helpers").
func (e *Engine) Diff(old, newVal value.Value) diffengine.Diff {
	return diffengine.Generate(old, newVal)
}

// ApplyDiff is a pure helper exposing pkg/diffengine.Apply.
func (e *Engine) ApplyDiff(obj value.Value, d diffengine.Diff) value.Value {
	return diffengine.Apply(obj, d)
}

func (e *Engine) getCommit(hash merkle.Hash) (*Commit, error) {
	if hash.IsZero() {
		return nil, nil
	}
	rec, err := e.store.GetCommit(hash)
	if err != nil {
		if errors.Is(err, kv.ErrCommitNotFound) {
			return nil, fmt.Errorf("vcs: %w", vcserr.ErrCommitNotFound)
		}
		return nil, err
	}
	return commitFromRecord(rec), nil
}
