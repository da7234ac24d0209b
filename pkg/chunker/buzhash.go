package chunker

// Buzhash is the rolling hash Serialize's encoded (key, child-hash) pair
// stream is fed through to find content-defined shard boundaries
// (pkg/merkle/shard.go's ShardChildren). It computes a hash over a
// sliding window of the byte stream so that a boundary decision depends
// only on local content, not on the position of bytes earlier in the
// stream — which is what lets inserting or removing one pair shift only
// the shard(s) touching it instead of every shard after it.
type Buzhash struct {
	// TargetSize is the average shard size in bytes (boundary when hash % targetSize == 0)
	TargetSize uint32
	// MinSize prevents tiny shards (in bytes)
	MinSize uint32
	// MaxSize prevents huge shards (in bytes)
	MaxSize uint32

	// Internal state
	hash        uint32
	window      []byte
	pos         int
	count       int  // number of bytes processed since last reset
	boundaryHit bool // true if hash % targetSize == 0 was hit during any roll
}

// buzhashTable maps each byte value (0-255) to the value mixed into the
// rolling hash. Only the first 64 entries are set; bytes 64-255 map to 0,
// so they contribute nothing beyond the per-byte rotation.
var buzhashTable = [256]uint32{
	0x458be752, 0xc10748cc, 0xfbbcdbb8, 0x6ded5b68,
	0xb10a82b5, 0x20d75648, 0xdfc5665f, 0xa8428801,
	0x7ebf5191, 0x841135c7, 0x65cc53b3, 0x280a597c,
	0x16f60255, 0xc78cbc3e, 0x294415f5, 0xb938d494,
	0xec85c4e6, 0xb7d33edc, 0xe549b544, 0xfdeda5aa,
	0x882bf287, 0x3116571e, 0xa6fc8d2d, 0x1b5f3f3c,
	0x2e7d4e29, 0x49e95d76, 0x540d0a26, 0xf87b1a02,
	0x84b4a028, 0xd7f89c1e, 0xf309cbe0, 0x600a2f4f,
	0x5f33e848, 0xb149a5d5, 0x1e39e8bd, 0x2a1fc67a,
	0x934d46e4, 0x8f902f30, 0xfc4b0223, 0xfb6d4314,
	0x5f6b9b30, 0x6f2d9c6c, 0x58597e40, 0x3cbbb848,
	0x7c3b5360, 0x3f0ab26c, 0x9ea521c8, 0x1c1b0d14,
	0x3e9de0c0, 0x289d8f1c, 0x0c01f56c, 0x61bd8e3c,
	0xd6e2e980, 0x9c098894, 0x9e0e2534, 0x049dc09c,
	0x64a0dc24, 0xb07c0440, 0x8e5b0a50, 0xf05c1e10,
	0x4c449e3c, 0x5c8c6c30, 0x88507800, 0x08b09a40,
}

// DefaultWindowSize is the size of the sliding window for the rolling hash
const DefaultWindowSize = 64

// NewBuzhash creates a new Buzhash rolling hash over the encoded
// (child-key, child-hash) pair stream, with the given target/min/max
// shard sizes in bytes.
func NewBuzhash(targetSize, minSize, maxSize uint32) *Buzhash {
	return &Buzhash{
		TargetSize:  targetSize,
		MinSize:     minSize,
		MaxSize:     maxSize,
		window:      make([]byte, DefaultWindowSize),
		hash:        0,
		pos:         0,
		count:       0,
		boundaryHit: false,
	}
}

// Reset resets the rolling hash state
func (b *Buzhash) Reset() {
	b.hash = 0
	b.pos = 0
	b.count = 0
	b.boundaryHit = false
	for i := range b.window {
		b.window[i] = 0
	}
}

// Roll feeds one more byte of the encoded pair stream into the hash and
// returns the current value. If the hash lands on a shard boundary
// (hash % targetSize == 0), it latches that so IsBoundary() reports true
// once MinSize is satisfied, even if a later byte's hash doesn't also
// happen to divide evenly.
func (b *Buzhash) Roll(newByte byte) uint32 {
	windowSize := len(b.window)

	// Get the byte that's leaving the window
	outByte := b.window[b.pos]

	// Update the window
	b.window[b.pos] = newByte
	b.pos = (b.pos + 1) % windowSize

	// Update the hash using the rolling property:
	// hash = rotateLeft(hash, 1) ^ rotateLeft(table[outByte], windowSize) ^ table[newByte]
	b.hash = rotateLeft(b.hash, 1) ^ rotateLeft(buzhashTable[outByte], uint32(windowSize)) ^ buzhashTable[newByte]

	b.count++

	// Check if this byte triggers a boundary (only after min size)
	// We remember if ANY roll hit a boundary, so we can report it in IsBoundary()
	if b.count >= int(b.MinSize) && b.hash%b.TargetSize == 0 {
		b.boundaryHit = true
	}

	return b.hash
}

// IsBoundary reports whether the chunker should cut a shard here: either
// a content-defined boundary has been seen since MinSize bytes were
// reached, or MaxSize has been hit and a cut is forced regardless of
// content, so no single shard can grow unbounded even on pathological
// (key, hash) streams.
func (b *Buzhash) IsBoundary() bool {
	// Don't create boundary if we haven't reached minimum size
	if b.count < int(b.MinSize) {
		return false
	}

	// Force boundary if we've reached maximum size
	if b.count >= int(b.MaxSize) {
		return true
	}

	// Return true if any roll since last reset hit a boundary
	return b.boundaryHit
}

// Count returns the number of bytes processed since the last Reset.
func (b *Buzhash) Count() int {
	return b.count
}

// rotateLeft performs a left rotation on a 32-bit value
func rotateLeft(val uint32, n uint32) uint32 {
	n = n % 32
	return (val << n) | (val >> (32 - n))
}
