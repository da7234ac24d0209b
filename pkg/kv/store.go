// Package kv implements the Object Store façade (spec.md §2 row 2, §6.1):
// a thin typed layer over an embedded transactional KV store providing
// content-addressed object storage, named mutable refs, and commit
// records with a secondary index on branch and timestamp.
package kv

import (
	"errors"

	"github.com/0xlemi/structdb/pkg/merkle"
)

// ErrObjectNotFound is returned when an object hash is not present.
var ErrObjectNotFound = errors.New("kv: object not found")

// ErrRefNotFound is returned when a ref name is not present.
var ErrRefNotFound = errors.New("kv: ref not found")

// ErrCommitNotFound is returned when a commit hash is not present.
var ErrCommitNotFound = errors.New("kv: commit not found")

// Store is the persistence-layer contract the engine requires (spec.md
// §6.1): objects/refs/commits namespaces, atomic single-ref updates, and
// a secondary commit index scanned timestamp-descending.
type Store interface {
	// PutObject stores data under hash in the objects namespace.
	PutObject(hash merkle.Hash, data []byte) error
	// GetObject retrieves data by hash. ErrObjectNotFound if absent.
	GetObject(hash merkle.Hash) ([]byte, error)
	// ExistsObject reports whether hash is present, for H2 dedup.
	ExistsObject(hash merkle.Hash) bool

	// SaveRef atomically sets name to hash in the refs namespace.
	SaveRef(name string, hash merkle.Hash) error
	// GetRef retrieves the hash a ref points to. ErrRefNotFound if absent.
	GetRef(name string) (merkle.Hash, error)
	// DeleteRef removes a ref. ErrRefNotFound if absent.
	DeleteRef(name string) error
	// ListRefs returns ref names with the given prefix, prefix stripped.
	ListRefs(prefix string) ([]string, error)

	// SaveHead points HEAD at branch (spec.md §3.4: HEAD's value is the
	// string "branch/<name>"; a detached HEAD is not representable here).
	SaveHead(branch string) error
	// GetHead returns the branch name HEAD currently points to.
	// ErrRefNotFound if HEAD has never been set.
	GetHead() (string, error)

	// SaveCommit persists a commit record and updates its secondary index.
	SaveCommit(c *CommitRecord) error
	// GetCommit retrieves a commit by hash. ErrCommitNotFound if absent.
	GetCommit(hash merkle.Hash) (*CommitRecord, error)
	// CommitsForBranch returns every commit attributed to branch,
	// timestamp-descending (spec.md §4.3.4).
	CommitsForBranch(branch string) ([]*CommitRecord, error)
	// CommitsAfterDate returns commits attributed to branch with
	// Timestamp >= since, timestamp-descending.
	CommitsAfterDate(branch string, since int64) ([]*CommitRecord, error)

	// SaveCommitAndRef groups a commit write and its branch ref update
	// into one persistence-layer transaction, satisfying the R1 recovery
	// guarantee (spec.md §3.4, §5): the commit must be durable before the
	// ref that points to it is updated, and the two should not be
	// observably separated by a crash.
	SaveCommitAndRef(c *CommitRecord, refName string) error

	// Close releases resources held by the store.
	Close() error
}
