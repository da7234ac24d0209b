package merkle

import (
	"sort"

	"github.com/0xlemi/structdb/pkg/chunker"
)

// wideFanoutThreshold is the child count at or above which an internal node is
// eligible for content-defined sharding (see ShardChildren).
const wideFanoutThreshold = 64

// ShardChildren splits a wide internal node's sorted (key, child-hash)
// pairs into content-defined shards using the Buzhash rolling hash, so
// that editing one child only perturbs the shard(s) adjacent to it
// instead of forcing every sibling under the same parent to re-hash.
// Nodes below wideFanoutThreshold are returned as a single shard
// (sharding below that size has no structural-sharing benefit and only
// adds an indirection layer).
func ShardChildren(children map[string]Hash) [][]string {
	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(keys) < wideFanoutThreshold {
		return [][]string{keys}
	}

	pairs := make([]chunker.KVPair, len(keys))
	for i, k := range keys {
		h := children[k]
		pairs[i] = chunker.KVPair{Key: []byte(k), Value: h[:]}
	}

	c := chunker.DefaultChunker()
	chunks := c.Chunk(pairs)

	shards := make([][]string, len(chunks))
	for i, chunk := range chunks {
		shardKeys := make([]string, len(chunk))
		for j, pair := range chunk {
			shardKeys[j] = string(pair.Key)
		}
		shards[i] = shardKeys
	}
	return shards
}
