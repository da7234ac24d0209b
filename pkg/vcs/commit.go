package vcs

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/0xlemi/structdb/pkg/kv"
	"github.com/0xlemi/structdb/pkg/merkle"
)

// defaultCommitMessage is used when the caller omits a message, matching
// the teacher's "Update" default in examples/demo/main.go.
const defaultCommitMessage = "Update"

// Commit is the immutable tuple spec.md §3.3 defines. Hash equals
// RootHash unless the commit-identity policy (see newCommitRecord) salts
// it to disambiguate a commit from an unchanged parent snapshot.
type Commit struct {
	Hash      merkle.Hash
	Parent    merkle.Hash
	Branch    string
	Message   string
	Timestamp int64 // milliseconds since epoch
	RootHash  merkle.Hash
}

func commitFromRecord(r *kv.CommitRecord) *Commit {
	return &Commit{
		Hash:      r.Hash,
		Parent:    r.Parent,
		Branch:    r.Branch,
		Message:   r.Message,
		Timestamp: r.Timestamp,
		RootHash:  r.RootHash,
	}
}

func (c *Commit) record() *kv.CommitRecord {
	return &kv.CommitRecord{
		Hash:      c.Hash,
		Parent:    c.Parent,
		Branch:    c.Branch,
		Message:   c.Message,
		Timestamp: c.Timestamp,
		RootHash:  c.RootHash,
	}
}

// newCommitRecord assembles a Commit for the given branch, applying the
// commit-identity policy that resolves spec.md §3.3 Edge Case C2: when
// rootHash collides with parentCommit's snapshot, a commit is only
// recorded if the caller supplied a message distinct from the parent's,
// in which case the identity is salted so the two records do not
// collide under C1; otherwise this is a no-op and the caller should
// return parentCommit unchanged without writing anything.
func newCommitRecord(branch string, rootHash merkle.Hash, parentCommit *Commit, message string, nowMillis int64) (commit *Commit, noop bool) {
	if message == "" {
		message = defaultCommitMessage
	}

	var parentHash merkle.Hash
	if parentCommit != nil {
		parentHash = parentCommit.Hash
	}

	unchanged := parentCommit != nil && parentCommit.RootHash == rootHash
	if unchanged && parentCommit.Message == message {
		return parentCommit, true
	}

	hash := rootHash
	if unchanged {
		hash = saltedIdentity(rootHash, parentHash, nowMillis, message)
	}

	return &Commit{
		Hash:      hash,
		Parent:    parentHash,
		Branch:    branch,
		Message:   message,
		Timestamp: nowMillis,
		RootHash:  rootHash,
	}, false
}

// saltedIdentity computes SHA256(rootHash || parent || timestamp || message),
// giving an unchanged snapshot a commit identity distinct from its parent
// so C1 (hash reachable in the object store) is not violated by aliasing
// two different commit records under one key.
func saltedIdentity(root, parent merkle.Hash, timestamp int64, message string) merkle.Hash {
	h := sha256.New()
	h.Write(root[:])
	h.Write(parent[:])
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(timestamp))
	h.Write(ts[:])
	h.Write([]byte(message))
	var out merkle.Hash
	copy(out[:], h.Sum(nil))
	return out
}
