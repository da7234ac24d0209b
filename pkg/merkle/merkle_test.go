package merkle

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/0xlemi/structdb/pkg/value"
)

// memStore is a minimal in-memory ObjectStore test double, standing in for
// pkg/kv.Store the way the teacher's tree tests use a throwaway cas.FileCAS
// directory rather than exercising the real disk-backed store.
type memStore struct {
	objects map[Hash][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[Hash][]byte)}
}

func (m *memStore) PutObject(hash Hash, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[hash] = cp
	return nil
}

func (m *memStore) GetObject(hash Hash) ([]byte, error) {
	data, ok := m.objects[hash]
	if !ok {
		return nil, errHashLength // any error value; tests only check err != nil
	}
	return data, nil
}

func (m *memStore) ExistsObject(hash Hash) bool {
	_, ok := m.objects[hash]
	return ok
}

func genMerkleValue(depth int) *rapid.Generator[value.Value] {
	return rapid.Custom(func(t *rapid.T) value.Value {
		if depth <= 0 {
			return genMerkleLeaf().Draw(t, "leaf")
		}
		switch rapid.IntRange(0, 3).Draw(t, "kind") {
		case 0:
			return genMerkleLeaf().Draw(t, "leaf")
		case 1:
			n := rapid.IntRange(0, 12).Draw(t, "n")
			items := make([]value.Value, n)
			for i := range items {
				items[i] = genMerkleValue(depth - 1).Draw(t, "item")
			}
			return value.NewArray(items)
		default:
			n := rapid.IntRange(0, 5).Draw(t, "n")
			fields := make(map[string]value.Value, n)
			for i := 0; i < n; i++ {
				k := rapid.StringMatching(`[a-z][a-z0-9]{0,5}`).Draw(t, "key")
				fields[k] = genMerkleValue(depth - 1).Draw(t, "field")
			}
			return value.NewObject(fields)
		}
	})
}

func genMerkleLeaf() *rapid.Generator[value.Value] {
	return rapid.Custom(func(t *rapid.T) value.Value {
		switch rapid.IntRange(0, 3).Draw(t, "leafKind") {
		case 0:
			return value.Null
		case 1:
			return value.NewBool(rapid.Bool().Draw(t, "b"))
		case 2:
			return value.NewNumber(rapid.Float64().Draw(t, "n"))
		default:
			return value.NewString(rapid.String().Draw(t, "s"))
		}
	})
}

// TestProperty_HashDeterminism is P1: building the same value twice, even
// through distinct map/slice instances, produces the same root hash.
func TestProperty_HashDeterminism(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := genMerkleValue(3).Draw(t, "v")
		h1, _ := Build(v)
		h2, _ := Build(v)
		if h1 != h2 {
			t.Fatalf("Build(v) not deterministic: %s != %s", h1, h2)
		}
	})
}

// TestProperty_ToValueRoundTrip is P2: materializing a value's tree then
// projecting it back recovers an equal value.
func TestProperty_ToValueRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := genMerkleValue(3).Draw(t, "v")
		store := newMemStore()
		root, err := StoreValue(store, v)
		if err != nil {
			t.Fatalf("StoreValue: %v", err)
		}
		back, err := ToValue(store, root)
		if err != nil {
			t.Fatalf("ToValue: %v", err)
		}
		if !value.Equal(v, back) {
			t.Fatalf("round-trip changed value:\n  in:  %v\n  out: %v", value.ToAny(v), value.ToAny(back))
		}
	})
}

// TestArrayRoundTrip_LongArray exercises the array round-trip correction
// directly: an array of length >= 10, where lexicographic key ordering
// ("10" < "2") would otherwise scramble the result.
func TestArrayRoundTrip_LongArray(t *testing.T) {
	items := make([]value.Value, 15)
	for i := range items {
		items[i] = value.NewNumber(float64(i))
	}
	v := value.NewArray(items)

	store := newMemStore()
	root, err := StoreValue(store, v)
	if err != nil {
		t.Fatalf("StoreValue: %v", err)
	}
	back, err := ToValue(store, root)
	if err != nil {
		t.Fatalf("ToValue: %v", err)
	}

	arr, ok := back.Array()
	if !ok {
		t.Fatalf("expected array back, got %v", back.Kind())
	}
	if len(arr) != len(items) {
		t.Fatalf("length changed: got %d, want %d", len(arr), len(items))
	}
	for i, item := range arr {
		n, _ := item.Number()
		if n != float64(i) {
			t.Fatalf("index %d out of order: got %v", i, n)
		}
	}
}

func TestStoreTree_Deduplicates(t *testing.T) {
	shared := value.NewObject(map[string]value.Value{"k": value.NewString("v")})
	whole := value.NewObject(map[string]value.Value{
		"a": shared,
		"b": shared,
	})

	store := newMemStore()
	if _, err := StoreValue(store, whole); err != nil {
		t.Fatalf("StoreValue: %v", err)
	}

	sharedHash, _ := Build(shared)
	if !store.ExistsObject(sharedHash) {
		t.Fatal("expected shared subtree to be stored once under its hash")
	}
}

func TestDiffTrees_DetectsChanges(t *testing.T) {
	a := value.NewObject(map[string]value.Value{
		"x": value.NewNumber(1),
		"y": value.NewNumber(2),
	})
	b := value.NewObject(map[string]value.Value{
		"x": value.NewNumber(1),
		"y": value.NewNumber(3),
		"z": value.NewBool(true),
	})

	store := newMemStore()
	hashA, err := StoreValue(store, a)
	if err != nil {
		t.Fatalf("StoreValue(a): %v", err)
	}
	hashB, err := StoreValue(store, b)
	if err != nil {
		t.Fatalf("StoreValue(b): %v", err)
	}

	diff, err := DiffTrees(store, hashA, hashB)
	if err != nil {
		t.Fatalf("DiffTrees: %v", err)
	}
	if len(diff.Modified) != 1 || diff.Modified[0] != "y" {
		t.Fatalf("expected Modified=[y], got %v", diff.Modified)
	}
	if len(diff.Added) != 1 || diff.Added[0] != "z" {
		t.Fatalf("expected Added=[z], got %v", diff.Added)
	}
	if len(diff.Deleted) != 0 {
		t.Fatalf("expected no deletions, got %v", diff.Deleted)
	}
}

func TestShardChildren_BelowThresholdIsSingleShard(t *testing.T) {
	children := map[string]Hash{
		"a": hashOfByte(1),
		"b": hashOfByte(2),
		"c": hashOfByte(3),
	}
	shards := ShardChildren(children)
	if len(shards) != 1 {
		t.Fatalf("got %d shards, want 1 for a node below the fanout threshold", len(shards))
	}
	if len(shards[0]) != 3 {
		t.Fatalf("shard has %d keys, want 3", len(shards[0]))
	}
}

func TestShardChildren_WideFanoutSplitsAndCoversAllKeys(t *testing.T) {
	// 1000 pairs at ~46 bytes each (8-byte length prefixes + ~6-byte key +
	// 32-byte hash) comfortably exceeds the chunker's 16384-byte MaxSize
	// several times over, so a split is forced regardless of where the
	// content-defined boundaries happen to land.
	const n = 1000
	children := make(map[string]Hash, n)
	for i := 0; i < n; i++ {
		children[keyFor(i)] = hashOfByte(byte(i))
	}

	shards := ShardChildren(children)
	if len(shards) <= 1 {
		t.Fatalf("expected more than one shard for a wide-fanout node, got %d", len(shards))
	}

	seen := make(map[string]bool, n)
	for _, shard := range shards {
		for _, k := range shard {
			seen[k] = true
		}
	}
	if len(seen) != n {
		t.Fatalf("shards cover %d keys, want %d", len(seen), n)
	}
}

func keyFor(i int) string {
	return fmt.Sprintf("key%03d", i)
}

func hashOfByte(b byte) Hash {
	var h Hash
	h[0] = b
	h[1] = b
	return h
}

// TestBuild_WideFanoutShardsAndRoundTrips exercises buildSharded end to
// end: an object wide enough to cross wideFanoutThreshold is built,
// stored, and projected back, and must come back equal to the input
// despite its tree having an extra shard layer under the hood.
func TestBuild_WideFanoutShardsAndRoundTrips(t *testing.T) {
	const n = wideFanoutThreshold + 50
	fields := make(map[string]value.Value, n)
	for i := 0; i < n; i++ {
		fields[keyFor(i)] = value.NewNumber(float64(i))
	}
	v := value.NewObject(fields)

	root, nodes := Build(v)
	parent, ok := nodes[root].(Internal)
	if !ok || parent.Type != typeShardObject {
		t.Fatalf("expected a sharded parent node, got %#v", nodes[root])
	}
	if len(parent.Children) <= 1 {
		t.Fatalf("expected more than one shard, got %d", len(parent.Children))
	}

	store := newMemStore()
	if err := StoreTree(store, nodes); err != nil {
		t.Fatalf("StoreTree: %v", err)
	}
	back, err := ToValue(store, root)
	if err != nil {
		t.Fatalf("ToValue: %v", err)
	}
	if !value.Equal(v, back) {
		t.Fatalf("sharded round-trip changed value")
	}
}

func TestLCA(t *testing.T) {
	cases := []struct {
		paths []string
		want  string
	}{
		{nil, "."},
		{[]string{"a.b.c"}, "a.b.c"},
		{[]string{"a.b.c", "a.b.d"}, "a.b"},
		{[]string{"a.b", "c.d"}, "."},
	}
	for _, tc := range cases {
		if got := LCA(tc.paths); got != tc.want {
			t.Errorf("LCA(%v) = %q, want %q", tc.paths, got, tc.want)
		}
	}
}
