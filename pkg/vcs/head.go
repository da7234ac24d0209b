package vcs

import (
	"errors"
	"fmt"

	"github.com/0xlemi/structdb/pkg/kv"
	"github.com/0xlemi/structdb/pkg/vcserr"
)

// HeadManager tracks which branch is currently checked out. Unlike the
// teacher's pkg/branch.HeadManager, HEAD here is always attached to a
// branch (spec.md §3.4: "a detached HEAD is not supported") — there is
// no SetHeadToCommit equivalent.
type HeadManager struct {
	store    kv.Store
	branches *BranchManager
}

func newHeadManager(store kv.Store, branches *BranchManager) *HeadManager {
	return &HeadManager{store: store, branches: branches}
}

// Current returns the name of the checked-out branch.
func (hm *HeadManager) Current() (string, error) {
	branch, err := hm.store.GetHead()
	if err != nil {
		if errors.Is(err, kv.ErrRefNotFound) {
			return "", fmt.Errorf("vcs: %w", vcserr.ErrNotInitialized)
		}
		return "", fmt.Errorf("vcs: get HEAD: %w", err)
	}
	return branch, nil
}

// Checkout points HEAD at an existing branch. Fails if the branch is
// absent — there is no way to detach HEAD onto a raw commit.
func (hm *HeadManager) Checkout(branch string) error {
	if !hm.branches.Exists(branch) {
		return fmt.Errorf("vcs: checkout %q: %w", branch, vcserr.ErrRefNotFound)
	}
	return hm.store.SaveHead(branch)
}

// Initialize points HEAD at branch if HEAD has never been set.
func (hm *HeadManager) Initialize(branch string) error {
	if _, err := hm.store.GetHead(); err == nil {
		return nil
	}
	return hm.store.SaveHead(branch)
}
