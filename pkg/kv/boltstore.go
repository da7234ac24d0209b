package kv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.etcd.io/bbolt"

	"github.com/0xlemi/structdb/pkg/merkle"
)

var (
	bucketObjects = []byte("objects")
	bucketRefs    = []byte("refs")
	bucketCommits = []byte("commits")
	// bucketCommitIndex mirrors bucketCommits, keyed branch\x00timestamp\x00hash
	// so CommitsForBranch/CommitsAfterDate can range-scan without touching
	// every commit in the store.
	bucketCommitIndex = []byte("commits-by-branch")
)

// BoltStore implements Store on top of an embedded bbolt database: a
// single file holding the objects, refs, and commits namespaces as
// separate top-level buckets, each mutation wrapped in its own ACID
// transaction.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (creating if absent) a bbolt-backed Store at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0644, nil)
	if err != nil {
		return nil, fmt.Errorf("kv: open bolt store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketObjects, bucketRefs, bucketCommits, bucketCommitIndex} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: init bolt buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) PutObject(hash merkle.Hash, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketObjects)
		if b.Get(hash[:]) != nil {
			return nil // H2: identical content already stored, no-op
		}
		return b.Put(hash[:], data)
	})
}

func (s *BoltStore) GetObject(hash merkle.Hash) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketObjects).Get(hash[:])
		if v == nil {
			return ErrObjectNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) ExistsObject(hash merkle.Hash) bool {
	exists := false
	_ = s.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(bucketObjects).Get(hash[:]) != nil
		return nil
	})
	return exists
}

func (s *BoltStore) SaveRef(name string, hash merkle.Hash) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRefs).Put([]byte(name), []byte(hash.String()))
	})
}

func (s *BoltStore) GetRef(name string) (merkle.Hash, error) {
	var hash merkle.Hash
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketRefs).Get([]byte(name))
		if v == nil {
			return ErrRefNotFound
		}
		h, err := merkle.HashFromHex(string(v))
		if err != nil {
			return fmt.Errorf("kv: ref %q: %w", name, err)
		}
		hash = h
		return nil
	})
	if err != nil {
		return merkle.Hash{}, err
	}
	return hash, nil
}

func (s *BoltStore) DeleteRef(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRefs)
		if b.Get([]byte(name)) == nil {
			return ErrRefNotFound
		}
		return b.Delete([]byte(name))
	})
}

func (s *BoltStore) ListRefs(prefix string) ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRefs).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			names = append(names, strings.TrimPrefix(string(k), prefix))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

const headKey = "HEAD"

func (s *BoltStore) SaveHead(branch string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRefs).Put([]byte(headKey), []byte(branchRefValue(branch)))
	})
}

func (s *BoltStore) GetHead() (string, error) {
	var branch string
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketRefs).Get([]byte(headKey))
		if v == nil {
			return ErrRefNotFound
		}
		name, err := branchFromRefValue(string(v))
		if err != nil {
			return err
		}
		branch = name
		return nil
	})
	if err != nil {
		return "", err
	}
	return branch, nil
}

func (s *BoltStore) SaveCommit(c *CommitRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putCommit(tx, c)
	})
}

func (s *BoltStore) GetCommit(hash merkle.Hash) (*CommitRecord, error) {
	var rec *CommitRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketCommits).Get(hash[:])
		if v == nil {
			return ErrCommitNotFound
		}
		c, err := UnmarshalCommit(v)
		if err != nil {
			return err
		}
		rec = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *BoltStore) CommitsForBranch(branch string) ([]*CommitRecord, error) {
	return s.scanBranchIndex(branch, 0)
}

func (s *BoltStore) CommitsAfterDate(branch string, since int64) ([]*CommitRecord, error) {
	return s.scanBranchIndex(branch, since)
}

// scanBranchIndex walks bucketCommitIndex's branch\x00ts\x00hash keys,
// filters by since (0 means no filter), and returns matches sorted
// timestamp-descending (spec.md §4.3.4's history ordering).
func (s *BoltStore) scanBranchIndex(branch string, since int64) ([]*CommitRecord, error) {
	var recs []*CommitRecord
	prefix := append([]byte(branch), 0x00)

	err := s.db.View(func(tx *bbolt.Tx) error {
		commits := tx.Bucket(bucketCommits)
		c := tx.Bucket(bucketCommitIndex).Cursor()
		for k, hashBytes := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, hashBytes = c.Next() {
			ts, _, err := splitIndexKey(k, len(prefix))
			if err != nil {
				return err
			}
			if ts < since {
				continue
			}
			v := commits.Get(hashBytes)
			if v == nil {
				return fmt.Errorf("kv: commit index points to missing commit %x", hashBytes)
			}
			rec, err := UnmarshalCommit(v)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp > recs[j].Timestamp })
	return recs, nil
}

func (s *BoltStore) SaveCommitAndRef(c *CommitRecord, refName string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := putCommit(tx, c); err != nil {
			return err
		}
		return tx.Bucket(bucketRefs).Put([]byte(refName), []byte(c.Hash.String()))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func putCommit(tx *bbolt.Tx, c *CommitRecord) error {
	data, err := MarshalCommit(c)
	if err != nil {
		return err
	}
	if err := tx.Bucket(bucketCommits).Put(c.Hash[:], data); err != nil {
		return err
	}
	return tx.Bucket(bucketCommitIndex).Put(indexKey(c.Branch, c.Timestamp, c.Hash), c.Hash[:])
}

// indexKey builds branch\x00big-endian-ts\x00hash so that a lexicographic
// bucket scan over a branch's keys visits commits in timestamp order.
func indexKey(branch string, ts int64, hash merkle.Hash) []byte {
	key := make([]byte, 0, len(branch)+1+8+1+len(hash))
	key = append(key, branch...)
	key = append(key, 0x00)
	var tsBytes [8]byte
	binary.BigEndian.PutUint64(tsBytes[:], uint64(ts))
	key = append(key, tsBytes[:]...)
	key = append(key, 0x00)
	key = append(key, hash[:]...)
	return key
}

const headRefPrefix = "branch/"

// branchRefValue formats HEAD's stored value: the string "branch/<name>",
// matching the wire format spec.md §3.4/§6.3 requires for backward
// compatibility.
func branchRefValue(branch string) string {
	return headRefPrefix + branch
}

func branchFromRefValue(v string) (string, error) {
	if !strings.HasPrefix(v, headRefPrefix) {
		return "", fmt.Errorf("kv: HEAD: malformed ref value %q", v)
	}
	return strings.TrimPrefix(v, headRefPrefix), nil
}

func splitIndexKey(key []byte, branchPrefixLen int) (ts int64, hash merkle.Hash, err error) {
	rest := key[branchPrefixLen:]
	if len(rest) < 8+1 {
		return 0, merkle.Hash{}, errors.New("kv: malformed commit index key")
	}
	ts = int64(binary.BigEndian.Uint64(rest[:8]))
	copy(hash[:], rest[9:])
	return ts, hash, nil
}
