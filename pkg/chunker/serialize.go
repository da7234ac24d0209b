package chunker

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrCorruptedData is returned when deserialization fails.
var ErrCorruptedData = errors.New("chunker: data corruption detected")

// SerializeKVPair serializes a single KVPair to bytes using deterministic binary encoding.
// Format:
//
//	[4 bytes: key length (big-endian)]
//	[N bytes: key]
//	[4 bytes: value length (big-endian)]
//	[M bytes: value]
func SerializeKVPair(pair KVPair) []byte {
	size := 4 + len(pair.Key) + 4 + len(pair.Value)
	buf := make([]byte, 0, size)

	keyLen := make([]byte, 4)
	binary.BigEndian.PutUint32(keyLen, uint32(len(pair.Key)))
	buf = append(buf, keyLen...)
	buf = append(buf, pair.Key...)

	valueLen := make([]byte, 4)
	binary.BigEndian.PutUint32(valueLen, uint32(len(pair.Value)))
	buf = append(buf, valueLen...)
	buf = append(buf, pair.Value...)

	return buf
}

// SerializeKVPairs serializes multiple KVPairs to bytes using deterministic binary encoding.
func SerializeKVPairs(pairs []KVPair) []byte {
	size := 4
	for _, pair := range pairs {
		size += 4 + len(pair.Key) + 4 + len(pair.Value)
	}

	buf := make([]byte, 0, size)

	pairCount := make([]byte, 4)
	binary.BigEndian.PutUint32(pairCount, uint32(len(pairs)))
	buf = append(buf, pairCount...)

	for _, pair := range pairs {
		buf = append(buf, SerializeKVPair(pair)...)
	}

	return buf
}

// DeserializeKVPair deserializes bytes into a single KVPair.
// Returns the pair and the number of bytes consumed.
func DeserializeKVPair(data []byte) (KVPair, int, error) {
	pos := 0

	if pos+4 > len(data) {
		return KVPair{}, 0, fmt.Errorf("%w: insufficient data for key length", ErrCorruptedData)
	}
	keyLen := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4

	if pos+int(keyLen) > len(data) {
		return KVPair{}, 0, fmt.Errorf("%w: insufficient data for key", ErrCorruptedData)
	}
	key := make([]byte, keyLen)
	copy(key, data[pos:pos+int(keyLen)])
	pos += int(keyLen)

	if pos+4 > len(data) {
		return KVPair{}, 0, fmt.Errorf("%w: insufficient data for value length", ErrCorruptedData)
	}
	valueLen := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4

	if pos+int(valueLen) > len(data) {
		return KVPair{}, 0, fmt.Errorf("%w: insufficient data for value", ErrCorruptedData)
	}
	val := make([]byte, valueLen)
	copy(val, data[pos:pos+int(valueLen)])
	pos += int(valueLen)

	return KVPair{Key: key, Value: val}, pos, nil
}

// DeserializeKVPairs deserializes bytes into multiple KVPairs.
func DeserializeKVPairs(data []byte) ([]KVPair, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: insufficient data for pair count", ErrCorruptedData)
	}

	pos := 0
	pairCount := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4

	pairs := make([]KVPair, 0, pairCount)
	for i := uint32(0); i < pairCount; i++ {
		pair, consumed, err := DeserializeKVPair(data[pos:])
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
		pos += consumed
	}

	if pos != len(data) {
		return nil, fmt.Errorf("%w: unexpected trailing data (%d bytes remaining)", ErrCorruptedData, len(data)-pos)
	}

	return pairs, nil
}
