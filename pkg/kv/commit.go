package kv

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/0xlemi/structdb/pkg/merkle"
)

// CommitRecord is the persisted shape of a commit (spec.md §3.3): an
// immutable tuple identified by Hash, which in this design equals
// RootHash unless salted (see pkg/vcs's commit-identity policy).
type CommitRecord struct {
	Hash      merkle.Hash
	Parent    merkle.Hash
	Branch    string
	Message   string
	Timestamp int64 // milliseconds since epoch
	RootHash  merkle.Hash
}

// commitWire is the JSON wire format: hash fields hex-encoded for
// readability, mirroring the teacher's MarshalCommit/UnmarshalCommit.
type commitWire struct {
	Hash      string `json:"hash"`
	Parent    string `json:"parent"`
	Branch    string `json:"branch"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	RootHash  string `json:"root_hash"`
}

// MarshalCommit serializes a CommitRecord to canonical JSON bytes.
func MarshalCommit(c *CommitRecord) ([]byte, error) {
	return json.Marshal(commitWire{
		Hash:      c.Hash.String(),
		Parent:    c.Parent.String(),
		Branch:    c.Branch,
		Message:   c.Message,
		Timestamp: c.Timestamp,
		RootHash:  c.RootHash.String(),
	})
}

// UnmarshalCommit deserializes JSON bytes into a CommitRecord.
func UnmarshalCommit(data []byte) (*CommitRecord, error) {
	var w commitWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("kv: unmarshal commit: %w", err)
	}

	hash, err := hashFromHexField(w.Hash)
	if err != nil {
		return nil, fmt.Errorf("kv: commit hash: %w", err)
	}
	parent, err := hashFromHexField(w.Parent)
	if err != nil {
		return nil, fmt.Errorf("kv: commit parent: %w", err)
	}
	root, err := hashFromHexField(w.RootHash)
	if err != nil {
		return nil, fmt.Errorf("kv: commit root_hash: %w", err)
	}

	return &CommitRecord{
		Hash:      hash,
		Parent:    parent,
		Branch:    w.Branch,
		Message:   w.Message,
		Timestamp: w.Timestamp,
		RootHash:  root,
	}, nil
}

func hashFromHexField(s string) (merkle.Hash, error) {
	if s == "" {
		return merkle.Hash{}, nil
	}
	if _, err := hex.DecodeString(s); err != nil {
		return merkle.Hash{}, err
	}
	return merkle.HashFromHex(s)
}
