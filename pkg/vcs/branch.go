package vcs

import (
	"fmt"
	"strings"

	"github.com/0xlemi/structdb/pkg/kv"
	"github.com/0xlemi/structdb/pkg/merkle"
	"github.com/0xlemi/structdb/pkg/vcserr"
)

const branchRefPrefix = "branch/"

// invalidBranchChars mirrors the teacher's ref-naming restrictions.
var invalidBranchChars = []rune{' ', '~', '^', ':', '?', '*', '[', '\\'}

// ValidateBranchName enforces the ref-naming rules: non-empty, not the
// reserved name HEAD, no leading '-' or '.', no ".lock" suffix, no ".."
// or "//" sequences, none of the characters Git also forbids.
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("vcs: branch name empty: %w", vcserr.ErrInvalidRefName)
	}
	if name == "HEAD" {
		return fmt.Errorf("vcs: branch name %q is reserved: %w", name, vcserr.ErrInvalidRefName)
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("vcs: branch name %q: invalid leading character: %w", name, vcserr.ErrInvalidRefName)
	}
	if strings.HasSuffix(name, ".lock") {
		return fmt.Errorf("vcs: branch name %q: invalid suffix: %w", name, vcserr.ErrInvalidRefName)
	}
	if strings.Contains(name, "..") || strings.Contains(name, "//") {
		return fmt.Errorf("vcs: branch name %q: invalid sequence: %w", name, vcserr.ErrInvalidRefName)
	}
	for _, r := range invalidBranchChars {
		if strings.ContainsRune(name, r) {
			return fmt.Errorf("vcs: branch name %q: invalid character %q: %w", name, r, vcserr.ErrInvalidRefName)
		}
	}
	return nil
}

// BranchManager manages branch/<name> refs through a kv.Store, adapted
// from the teacher's file-backed pkg/branch.BranchManager: the on-disk
// atomic-rename idiom is replaced by bolt's transactional ref update,
// same crash-safety intent.
type BranchManager struct {
	store kv.Store
}

func newBranchManager(store kv.Store) *BranchManager {
	return &BranchManager{store: store}
}

func refName(branch string) string {
	return branchRefPrefix + branch
}

// Create sets branch/<name> to hash. Fails if name is invalid or already
// exists.
func (bm *BranchManager) Create(name string, hash merkle.Hash) error {
	if err := ValidateBranchName(name); err != nil {
		return err
	}
	if bm.Exists(name) {
		return fmt.Errorf("vcs: branch %q: %w", name, vcserr.ErrRefExists)
	}
	return bm.store.SaveRef(refName(name), hash)
}

// Head returns the commit hash branch/<name> points to.
func (bm *BranchManager) Head(name string) (merkle.Hash, error) {
	hash, err := bm.store.GetRef(refName(name))
	if err != nil {
		return merkle.Hash{}, fmt.Errorf("vcs: branch %q: %w", name, vcserr.ErrRefNotFound)
	}
	return hash, nil
}

// Exists reports whether branch/<name> is set.
func (bm *BranchManager) Exists(name string) bool {
	_, err := bm.store.GetRef(refName(name))
	return err == nil
}

// Update moves branch/<name> to hash. Fails if the branch does not exist.
func (bm *BranchManager) Update(name string, hash merkle.Hash) error {
	if !bm.Exists(name) {
		return fmt.Errorf("vcs: branch %q: %w", name, vcserr.ErrRefNotFound)
	}
	return bm.store.SaveRef(refName(name), hash)
}

// Delete removes branch/<name>. Fails if the branch does not exist.
func (bm *BranchManager) Delete(name string) error {
	if !bm.Exists(name) {
		return fmt.Errorf("vcs: branch %q: %w", name, vcserr.ErrRefNotFound)
	}
	return bm.store.DeleteRef(refName(name))
}

// List returns every branch name currently set, sorted by the underlying
// ref scan (lexicographic).
func (bm *BranchManager) List() ([]string, error) {
	names, err := bm.store.ListRefs(branchRefPrefix)
	if err != nil {
		return nil, fmt.Errorf("vcs: list branches: %w", err)
	}
	return names, nil
}
