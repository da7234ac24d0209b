// Package merkle builds a content-addressed Merkle tree over a structured
// value (pkg/value.Value), materializes and rebuilds it through an object
// store, and structurally diffs two trees. See spec.md §3.2 and §4.1.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
)

var errHashLength = errors.New("merkle: decoded hash must be 32 bytes")

// Hash is a SHA-256 content digest, used both as a Merkle node's identity
// and as its key in the object store (invariant H2, spec.md §3.2).
type Hash [32]byte

// String returns the hex encoding of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero Hash, used as the sentinel "no parent".
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// HashFromHex parses a hex-encoded hash string.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	if len(b) != len(h) {
		return Hash{}, errHashLength
	}
	copy(h[:], b)
	return h, nil
}

// hashBytes computes the SHA-256 digest of b.
func hashBytes(b []byte) Hash {
	return sha256.Sum256(b)
}

// canonicalEncode produces the canonical JSON encoding of v: compact (no
// insignificant whitespace) and, for map[string]any fields, sorted by key.
// encoding/json already sorts map keys when marshaling, which is exactly
// the canonicalization invariant H1 (spec.md §3.2) and the wire-format
// requirement of spec.md §6.3 demand — no custom canonicalizer is needed.
func canonicalEncode(v any) ([]byte, error) {
	return json.Marshal(v)
}
