// Package iset implements a sorted, duplicate-free set of signed
// integers stored as a single contiguous blob.
//
// Blob layout: <encoding:u32><length:u32> followed by length elements of
// encoding bytes each, little-endian two's complement, sorted strictly
// ascending. The encoding is the element byte width (2, 4, or 8): the
// smallest width that fits every element ever added. The width only ever
// grows: removing the elements that forced an upgrade does not shrink it
// back.
//
// The blob is the on-wire serialization used by surrounding layers;
// Bytes exposes it and FromBytes adopts one.
package iset

import (
	"errors"
	"math"

	"github.com/zeebo/pcg"

	"github.com/cinnabarkv/cinnabarkv/internal/encoding"
)

// Encoding is the per-element byte width of the set.
type Encoding uint32

const (
	// W16 stores elements as int16.
	W16 Encoding = 2
	// W32 stores elements as int32.
	W32 Encoding = 4
	// W64 stores elements as int64.
	W64 Encoding = 8
)

// headerSize is the encoding field plus the length field.
const headerSize = 8

// ErrBadBlob is returned by FromBytes for a malformed serialization.
var ErrBadBlob = errors.New("iset: malformed blob")

var rng pcg.T

// IntSet is a sorted integer set. The zero value is not usable; create
// instances with New or FromBytes.
type IntSet struct {
	data []byte
}

// New creates an empty set with the narrowest encoding.
func New() *IntSet {
	s := &IntSet{data: make([]byte, headerSize)}
	s.setEncoding(W16)
	return s
}

// FromBytes adopts blob as a set. The blob is not copied. Only the header
// is validated; element order is the producer's responsibility.
func FromBytes(blob []byte) (*IntSet, error) {
	if len(blob) < headerSize {
		return nil, ErrBadBlob
	}
	enc := Encoding(encoding.DecodeFixed32(blob))
	if enc != W16 && enc != W32 && enc != W64 {
		return nil, ErrBadBlob
	}
	n := encoding.DecodeFixed32(blob[4:])
	if len(blob) != headerSize+int(n)*int(enc) {
		return nil, ErrBadBlob
	}
	return &IntSet{data: blob}, nil
}

// Bytes returns the serialized blob. The slice aliases the set and is
// invalidated by any mutation.
func (s *IntSet) Bytes() []byte { return s.data }

// Encoding returns the current element width.
func (s *IntSet) Encoding() Encoding {
	return Encoding(encoding.DecodeFixed32(s.data))
}

func (s *IntSet) setEncoding(e Encoding) {
	encoding.EncodeFixed32(s.data, uint32(e))
}

// Len returns the number of elements. O(1).
func (s *IntSet) Len() int {
	return int(encoding.DecodeFixed32(s.data[4:]))
}

func (s *IntSet) setLen(n int) {
	encoding.EncodeFixed32(s.data[4:], uint32(n))
}

// BlobLen returns the size of the blob in bytes. O(1).
func (s *IntSet) BlobLen() int { return len(s.data) }

// valueEncoding returns the narrowest width that can hold v.
func valueEncoding(v int64) Encoding {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return W64
	}
	if v < math.MinInt16 || v > math.MaxInt16 {
		return W32
	}
	return W16
}

// getWidth loads the element at index pos as if the set used width enc.
func (s *IntSet) getWidth(pos int, enc Encoding) int64 {
	off := headerSize + pos*int(enc)
	switch enc {
	case W16:
		return int64(int16(encoding.DecodeFixed16(s.data[off:])))
	case W32:
		return int64(int32(encoding.DecodeFixed32(s.data[off:])))
	default:
		return int64(encoding.DecodeFixed64(s.data[off:]))
	}
}

func (s *IntSet) get(pos int) int64 {
	return s.getWidth(pos, s.Encoding())
}

// setWidth stores v at index pos using width enc.
func (s *IntSet) setWidth(pos int, v int64, enc Encoding) {
	off := headerSize + pos*int(enc)
	switch enc {
	case W16:
		encoding.EncodeFixed16(s.data[off:], uint16(int16(v)))
	case W32:
		encoding.EncodeFixed32(s.data[off:], uint32(int32(v)))
	default:
		encoding.EncodeFixed64(s.data[off:], uint64(v))
	}
}

// resize grows or shrinks the blob to hold n elements at the current
// encoding, preserving contents.
func (s *IntSet) resize(n int) {
	want := headerSize + n*int(s.Encoding())
	if want <= cap(s.data) {
		s.data = s.data[:want]
		return
	}
	grown := make([]byte, want)
	copy(grown, s.data)
	s.data = grown
}

// search binary-searches for v. Returns the index when found, otherwise
// the insertion position that keeps the set sorted.
func (s *IntSet) search(v int64) (pos int, found bool) {
	n := s.Len()
	if n == 0 {
		return 0, false
	}
	// Out-of-range values short-circuit to the ends.
	if v > s.get(n-1) {
		return n, false
	}
	if v < s.get(0) {
		return 0, false
	}

	lo, hi := 0, n-1
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		cur := s.get(mid)
		switch {
		case v > cur:
			lo = mid + 1
		case v < cur:
			hi = mid - 1
		default:
			return mid, true
		}
	}
	return lo, false
}

// moveTail shifts the elements [from, Len) so they start at index to.
func (s *IntSet) moveTail(from, to int) {
	w := int(s.Encoding())
	src := headerSize + from*w
	dst := headerSize + to*w
	copy(s.data[dst:], s.data[src:headerSize+s.Len()*w])
}

// upgradeAndAdd widens every element to fit v, then inserts v. Since v is
// out of the old width's range it is by construction the new minimum or
// maximum, so it lands at one of the ends.
func (s *IntSet) upgradeAndAdd(v int64) {
	cur := s.Encoding()
	next := valueEncoding(v)
	n := s.Len()
	prepend := 0
	if v < 0 {
		prepend = 1
	}

	s.setEncoding(next)
	s.resize(n + 1)

	// Re-expand from the highest index down so writes never land on
	// unread narrow-width bytes.
	for i := n - 1; i >= 0; i-- {
		s.setWidth(i+prepend, s.getWidth(i, cur), next)
	}

	if prepend != 0 {
		s.setWidth(0, v, next)
	} else {
		s.setWidth(n, v, next)
	}
	s.setLen(n + 1)
}

// Add inserts v, keeping the set sorted and duplicate-free. Returns false
// without mutating when v is already present. O(n) worst case for the
// tail shift or width upgrade.
func (s *IntSet) Add(v int64) bool {
	if valueEncoding(v) > s.Encoding() {
		s.upgradeAndAdd(v)
		return true
	}

	pos, found := s.search(v)
	if found {
		return false
	}

	n := s.Len()
	s.resize(n + 1)
	if pos < n {
		s.moveTail(pos, pos+1)
	}
	s.setWidth(pos, v, s.Encoding())
	s.setLen(n + 1)
	return true
}

// Remove deletes v. Returns false when v is not present. The encoding is
// never downgraded. O(n).
func (s *IntSet) Remove(v int64) bool {
	if valueEncoding(v) > s.Encoding() {
		return false
	}
	pos, found := s.search(v)
	if !found {
		return false
	}

	n := s.Len()
	if pos < n-1 {
		s.moveTail(pos+1, pos)
	}
	s.setLen(n - 1)
	s.resize(n - 1)
	return true
}

// Find reports whether v is in the set. O(log n); values wider than the
// current encoding are rejected without searching.
func (s *IntSet) Find(v int64) bool {
	if valueEncoding(v) > s.Encoding() {
		return false
	}
	_, found := s.search(v)
	return found
}

// Random returns a uniformly chosen element. The set must not be empty.
func (s *IntSet) Random() int64 {
	n := s.Len()
	if n == 0 {
		panic("iset: Random on empty set")
	}
	return s.get(int(rng.Uint32n(uint32(n))))
}

// Get returns the element at index i in ascending order.
func (s *IntSet) Get(i int) (int64, bool) {
	if i < 0 || i >= s.Len() {
		return 0, false
	}
	return s.get(i), true
}
