package coreengine

import (
	"encoding/binary"
	"unsafe"

	"github.com/oarkflow/coreengine/errs"
)

// DefaultBloomFilterBits is the default bits-per-key budget: ~10 bits/key
// keeps the false-positive rate low for the K=3 hash count used here.
const DefaultBloomFilterBits = 10

// DefaultBloomHashCount is the number of hash indices computed per key via
// double-hashing.
const DefaultBloomHashCount = 3

// BloomFilter is a bit array plus K hash indices (double-hashing) used for
// fast negative lookups ahead of an SSTable read.
type BloomFilter struct {
	bits      []byte
	bitsCount uint64
	hashCount uint64
}

// NewBloomFilter sizes a filter for expectedItems entries at bitsPerItem
// bits each, using DefaultBloomHashCount hash functions.
func NewBloomFilter(expectedItems int, bitsPerItem int) *BloomFilter {
	if expectedItems < 1 {
		expectedItems = 1
	}
	bitsCount := uint64(expectedItems * bitsPerItem)
	if bitsCount == 0 {
		bitsCount = 64
	}
	return &BloomFilter{
		bits:      make([]byte, (bitsCount+7)/8),
		bitsCount: bitsCount,
		hashCount: DefaultBloomHashCount,
	}
}

func (bf *BloomFilter) setBit(i uint64) {
	bf.bits[i/8] |= 1 << (i % 8)
}

func (bf *BloomFilter) getBit(i uint64) bool {
	return bf.bits[i/8]&(1<<(i%8)) != 0
}

// bloomSalt differentiates the second base hash from the first, so the
// double-hashing indices h1 + i*h2 stay independent per key.
var bloomSalt = []byte{0xb1, 0x00, 0x3e}

func bloomBaseHashes(key []byte) (uint64, uint64) {
	h1 := fastHash(key)
	salted := make([]byte, 0, len(key)+len(bloomSalt))
	salted = append(salted, key...)
	salted = append(salted, bloomSalt...)
	h2 := fastHash(salted) | 1
	return h1, h2
}

// Add records key in the filter.
func (bf *BloomFilter) Add(key []byte) {
	h1, h2 := bloomBaseHashes(key)
	for i := uint64(0); i < bf.hashCount; i++ {
		bit := (h1 + i*h2) % bf.bitsCount
		bf.setBit(bit)
	}
}

// MayContain returns false only if key was never Added (no false
// negatives); it may return true for keys never added (false positive).
func (bf *BloomFilter) MayContain(key []byte) bool {
	h1, h2 := bloomBaseHashes(key)
	for i := uint64(0); i < bf.hashCount; i++ {
		bit := (h1 + i*h2) % bf.bitsCount
		if !bf.getBit(bit) {
			return false
		}
	}
	return true
}

// Contains is an alias for MayContain kept for call-site readability where
// the filter is known-positive already (e.g. post-insert checks).
func (bf *BloomFilter) Contains(key []byte) bool { return bf.MayContain(key) }

// Marshal serializes the filter as u64 bits_count || u64 hash_count ||
// ceil(bits_count/8) packed bits.
func (bf *BloomFilter) Marshal() []byte {
	buf := make([]byte, 16+len(bf.bits))
	binary.LittleEndian.PutUint64(buf[0:8], bf.bitsCount)
	binary.LittleEndian.PutUint64(buf[8:16], bf.hashCount)
	copy(buf[16:], bf.bits)
	return buf
}

// UnmarshalBloomFilter parses the wire format written by Marshal.
func UnmarshalBloomFilter(buf []byte) (*BloomFilter, error) {
	if len(buf) < 16 {
		return nil, errs.Corruptf("UnmarshalBloomFilter", "buffer too short: %d bytes", len(buf))
	}
	bitsCount := binary.LittleEndian.Uint64(buf[0:8])
	hashCount := binary.LittleEndian.Uint64(buf[8:16])
	want := 16 + int((bitsCount+7)/8)
	if len(buf) != want {
		return nil, errs.Corruptf("UnmarshalBloomFilter", "expected %d bytes, got %d", want, len(buf))
	}
	bits := make([]byte, len(buf)-16)
	copy(bits, buf[16:])
	return &BloomFilter{bits: bits, bitsCount: bitsCount, hashCount: hashCount}, nil
}

// fastHash is a 64-bit hash in the xxHash family, processing 8-byte chunks
// via unsafe pointer casts with a scalar tail.
func fastHash(data []byte) uint64 {
	const (
		prime1 = 11400714785074694791
		prime2 = 14029467366897019727
		prime3 = 1609587929392839161
		prime4 = 9650029242287828579
		prime5 = 2870177450012600261
	)

	var h uint64 = prime5 + uint64(len(data))

	i := 0
	for i+8 <= len(data) {
		k1 := *(*uint64)(unsafe.Pointer(&data[i])) * prime2
		k1 = ((k1 << 31) | (k1 >> 33)) * prime1
		h ^= k1
		h = ((h<<27)|(h>>37))*prime1 + prime4
		i += 8
	}

	for i < len(data) {
		h ^= uint64(data[i]) * prime5
		h = ((h << 11) | (h >> 53)) * prime1
		i++
	}

	h ^= h >> 33
	h *= prime2
	h ^= h >> 29
	h *= prime3
	h ^= h >> 32

	return h
}

// fastMemCmp compares two byte slices in true lexicographic order using
// 8-byte-at-a-time unsafe comparisons over the shared prefix, falling back
// to a scalar tail; length only decides the outcome when one key is a
// prefix of the other.
func fastMemCmp(a, b []byte) int {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}

	i := 0
	for i+8 <= minLen {
		av := *(*uint64)(unsafe.Pointer(&a[i]))
		bv := *(*uint64)(unsafe.Pointer(&b[i]))
		if av != bv {
			for j := 0; j < 8; j++ {
				if a[i+j] != b[i+j] {
					if a[i+j] < b[i+j] {
						return -1
					}
					return 1
				}
			}
		}
		i += 8
	}

	for i < minLen {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
		i++
	}

	if len(a) == len(b) {
		return 0
	}
	if len(a) < len(b) {
		return -1
	}
	return 1
}

func compareKeys(a, b []byte) int {
	return fastMemCmp(a, b)
}
