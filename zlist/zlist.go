// Package zlist implements a compact dual-ended sequence that packs
// heterogeneous small strings and integers into a single allocation.
//
// Blob layout:
//
//	<totalBytes:u32><tailOffset:u32><count:u16><entry>*<0xFF>
//
// and each entry is <prevLen><typeLen><payload>. The prevLen field is 1
// byte for lengths below 254 and 5 bytes (0xFE marker + u32) otherwise;
// it always equals the byte length of the entry immediately preceding.
// Multi-byte integers on the wire are little-endian except the 14-bit and
// 32-bit string-length headers, which are big-endian. The u16 count
// saturates at 0xFFFF, after which the true count requires a walk.
//
// Inserted byte slices that parse as signed decimal integers are stored
// in the smallest integer encoding instead of as strings.
//
// Positions are byte offsets into the blob. Any mutation may reallocate
// and shift entries; callers must re-derive positions afterwards, the
// same way they would re-derive pointers from a reallocated buffer.
//
// Growing one entry can widen its successor's prevLen field, which can
// widen the one after it in turn; see cascadeUpdate. An insert or delete
// re-encodes the prevLen field of the entry directly after it at the
// width its new value needs, wider or narrower; beyond that entry the
// cascade widens fields eagerly but never narrows them, so alternating
// inserts and deletes at the 254-byte boundary cannot make the rest of
// the layout oscillate.
package zlist

import (
	"math"
	"strconv"

	"github.com/cinnabarkv/cinnabarkv/internal/encoding"
)

const (
	// headerSize is totalBytes + tailOffset + count.
	headerSize = 10
	// endByte terminates the blob.
	endByte = 0xFF
	// bigPrevLen marks a 5-byte prevLen field.
	bigPrevLen = 0xFE

	// maxCount is the saturation value of the count field.
	maxCount = math.MaxUint16
)

// typeLen first-byte encodings.
const (
	strMask = 0xC0
	str06   = 0x00 // 00pppppp: string, 6-bit length
	str14   = 0x40 // 01pppppp qqqqqqqq: string, 14-bit big-endian length
	str32   = 0x80 // 10000000 + u32 big-endian length

	encInt16 = 0xC0 // 2-byte LE integer
	encInt32 = 0xD0 // 4-byte LE integer
	encInt64 = 0xE0 // 8-byte LE integer
	encInt24 = 0xF0 // 3-byte LE integer, sign-extended
	encInt8  = 0xFE // 1-byte integer

	// 1111xxxx with xxxx in [0001,1101]: the value xxxx-1 (0..12) lives
	// in the encoding byte itself.
	encImmMin  = 0xF1
	encImmMax  = 0xFD
	encImmMask = 0x0F
)

const (
	int24Max = 0x7FFFFF
	int24Min = -int24Max - 1
)

// Where selects the end a Push targets.
type Where int

const (
	// Head pushes to the front of the list.
	Head Where = iota
	// Tail pushes to the back.
	Tail
)

// Value is the decoded content of one entry: string bytes or an integer.
type Value struct {
	// Bytes is the string payload, nil for integer entries. It aliases
	// the blob and is invalidated by any mutation.
	Bytes []byte
	// Int is the integer payload, valid when IsInt is set.
	Int   int64
	IsInt bool
}

// ZList is a packed list. The zero value is not usable; create instances
// with New or FromBytes.
type ZList struct {
	data []byte
}

// New creates an empty packed list.
func New() *ZList {
	z := &ZList{data: make([]byte, headerSize+1)}
	encoding.EncodeFixed32(z.data, headerSize+1)
	encoding.EncodeFixed32(z.data[4:], headerSize)
	z.data[headerSize] = endByte
	return z
}

// FromBytes adopts blob as a packed list without copying. The caller
// warrants that blob is a well-formed serialization; decoding a corrupt
// blob panics.
func FromBytes(blob []byte) *ZList {
	return &ZList{data: blob}
}

// Bytes returns the serialized blob. The slice aliases the list and is
// invalidated by any mutation.
func (z *ZList) Bytes() []byte { return z.data }

// BlobLen returns the blob size in bytes. O(1).
func (z *ZList) BlobLen() int { return int(encoding.DecodeFixed32(z.data)) }

func (z *ZList) setTotalBytes(n int) { encoding.EncodeFixed32(z.data, uint32(n)) }

func (z *ZList) tailOffset() int { return int(encoding.DecodeFixed32(z.data[4:])) }

func (z *ZList) setTailOffset(n int) { encoding.EncodeFixed32(z.data[4:], uint32(n)) }

func (z *ZList) count() int { return int(encoding.DecodeFixed16(z.data[8:])) }

func (z *ZList) setCount(n int) { encoding.EncodeFixed16(z.data[8:], uint16(n)) }

// incrCount adjusts the count unless it has saturated.
func (z *ZList) incrCount(delta int) {
	if c := z.count(); c < maxCount {
		z.setCount(c + delta)
	}
}

// Len returns the number of entries. O(1) until the count saturates at
// 0xFFFF, after which it walks the blob and re-stores the count if it
// fits again.
func (z *ZList) Len() int {
	if c := z.count(); c < maxCount {
		return c
	}
	n := 0
	for p := headerSize; z.data[p] != endByte; p += z.rawEntryLength(p) {
		n++
	}
	if n < maxCount {
		z.setCount(n)
	}
	return n
}

// -----------------------------------------------------------------------------
// Entry header codec
// -----------------------------------------------------------------------------

// entry is the decoded header of one packed entry.
type entry struct {
	prevRawLenSize int // bytes of the prevLen field
	prevRawLen     int // length of the previous entry
	lenSize        int // bytes of the typeLen field
	length         int // payload length
	headerSize     int // prevRawLenSize + lenSize
	enc            byte
	off            int
}

func entryEncoding(b byte) byte {
	if b < strMask {
		return b & strMask
	}
	return b
}

func intSize(enc byte) int {
	switch enc {
	case encInt8:
		return 1
	case encInt16:
		return 2
	case encInt24:
		return 3
	case encInt32:
		return 4
	case encInt64:
		return 8
	}
	return 0 // 4-bit immediate
}

func isString(enc byte) bool { return enc&strMask != strMask }

// lengthSize returns the typeLen field width for an entry with the given
// encoding (0 for strings) and payload length.
func lengthSize(enc byte, rawlen int) int {
	if !isString(enc) {
		return 1
	}
	switch {
	case rawlen <= 0x3F:
		return 1
	case rawlen <= 0x3FFF:
		return 2
	default:
		return 5
	}
}

// writeLength encodes the typeLen field at off and returns its width.
func (z *ZList) writeLength(off int, enc byte, rawlen int) int {
	if !isString(enc) {
		z.data[off] = enc
		return 1
	}
	switch {
	case rawlen <= 0x3F:
		z.data[off] = str06 | byte(rawlen)
		return 1
	case rawlen <= 0x3FFF:
		z.data[off] = str14 | byte(rawlen>>8)&0x3F
		z.data[off+1] = byte(rawlen)
		return 2
	default:
		z.data[off] = str32
		encoding.EncodeBig32(z.data[off+1:], uint32(rawlen))
		return 5
	}
}

// decodeLength reads the typeLen field at off.
func (z *ZList) decodeLength(off int) (enc byte, lenSize, length int) {
	enc = entryEncoding(z.data[off])
	if isString(enc) {
		switch enc {
		case str06:
			return enc, 1, int(z.data[off] & 0x3F)
		case str14:
			return enc, 2, int(z.data[off]&0x3F)<<8 | int(z.data[off+1])
		case str32:
			return enc, 5, int(encoding.DecodeBig32(z.data[off+1:]))
		default:
			panic("zlist: corrupt entry header")
		}
	}
	return enc, 1, intSize(enc)
}

// prevLenBytes returns the prevLen field width needed for length.
func prevLenBytes(length int) int {
	if length < bigPrevLen {
		return 1
	}
	return 5
}

// prevLenSize returns the width of the prevLen field stored at off.
func (z *ZList) prevLenSize(off int) int {
	if z.data[off] < bigPrevLen {
		return 1
	}
	return 5
}

// decodePrevLen reads the prevLen field stored at off.
func (z *ZList) decodePrevLen(off int) (size, prevLen int) {
	if z.data[off] < bigPrevLen {
		return 1, int(z.data[off])
	}
	return 5, int(encoding.DecodeFixed32(z.data[off+1:]))
}

// writePrevLen encodes length into the prevLen field at off and returns
// the field width.
func (z *ZList) writePrevLen(off, length int) int {
	if length < bigPrevLen {
		z.data[off] = byte(length)
		return 1
	}
	z.writePrevLenForceLarge(off, length)
	return 5
}

// writePrevLenForceLarge writes a 5-byte prevLen field even when length
// would fit in one byte.
func (z *ZList) writePrevLenForceLarge(off, length int) {
	z.data[off] = bigPrevLen
	encoding.EncodeFixed32(z.data[off+1:], uint32(length))
}

// prevLenByteDiff returns the change in prevLen field width at off were
// it to store length.
func (z *ZList) prevLenByteDiff(off, length int) int {
	return prevLenBytes(length) - z.prevLenSize(off)
}

// rawEntryLength returns the total byte length of the entry at off.
func (z *ZList) rawEntryLength(off int) int {
	prevLenSize := z.prevLenSize(off)
	_, lenSize, length := z.decodeLength(off + prevLenSize)
	return prevLenSize + lenSize + length
}

// entryAt decodes the full header of the entry at off.
func (z *ZList) entryAt(off int) entry {
	var e entry
	e.prevRawLenSize, e.prevRawLen = z.decodePrevLen(off)
	e.enc, e.lenSize, e.length = z.decodeLength(off + e.prevRawLenSize)
	e.headerSize = e.prevRawLenSize + e.lenSize
	e.off = off
	return e
}

// -----------------------------------------------------------------------------
// Integer payload codec
// -----------------------------------------------------------------------------

// tryEncoding attempts to parse s as a signed decimal integer and picks
// the smallest encoding that fits. Length 0 and lengths of 32 or more
// are rejected without parsing.
func tryEncoding(s []byte) (v int64, enc byte, ok bool) {
	if len(s) == 0 || len(s) >= 32 {
		return 0, 0, false
	}
	v, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	switch {
	case v >= 0 && v <= 12:
		enc = encImmMin + byte(v)
	case v >= math.MinInt8 && v <= math.MaxInt8:
		enc = encInt8
	case v >= math.MinInt16 && v <= math.MaxInt16:
		enc = encInt16
	case v >= int24Min && v <= int24Max:
		enc = encInt24
	case v >= math.MinInt32 && v <= math.MaxInt32:
		enc = encInt32
	default:
		enc = encInt64
	}
	return v, enc, true
}

// saveInteger stores v at off in the given encoding.
func (z *ZList) saveInteger(off int, v int64, enc byte) {
	switch enc {
	case encInt8:
		z.data[off] = byte(int8(v))
	case encInt16:
		encoding.EncodeFixed16(z.data[off:], uint16(int16(v)))
	case encInt24:
		u := uint32(v) & 0xFFFFFF
		z.data[off] = byte(u)
		z.data[off+1] = byte(u >> 8)
		z.data[off+2] = byte(u >> 16)
	case encInt32:
		encoding.EncodeFixed32(z.data[off:], uint32(int32(v)))
	case encInt64:
		encoding.EncodeFixed64(z.data[off:], uint64(v))
	default:
		if enc < encImmMin || enc > encImmMax {
			panic("zlist: corrupt entry header")
		}
		// Immediate values live in the encoding byte; nothing to store.
	}
}

// loadInteger reads the integer stored at off in the given encoding.
func (z *ZList) loadInteger(off int, enc byte) int64 {
	switch enc {
	case encInt8:
		return int64(int8(z.data[off]))
	case encInt16:
		return int64(int16(encoding.DecodeFixed16(z.data[off:])))
	case encInt24:
		u := uint32(z.data[off]) | uint32(z.data[off+1])<<8 | uint32(z.data[off+2])<<16
		return int64(int32(u<<8) >> 8)
	case encInt32:
		return int64(int32(encoding.DecodeFixed32(z.data[off:])))
	case encInt64:
		return int64(encoding.DecodeFixed64(z.data[off:]))
	default:
		if enc < encImmMin || enc > encImmMax {
			panic("zlist: corrupt entry header")
		}
		return int64(enc&encImmMask) - 1
	}
}

// -----------------------------------------------------------------------------
// Mutation
// -----------------------------------------------------------------------------

// resize grows or shrinks the blob to n bytes, preserving the prefix, and
// rewrites the totalBytes field and the terminator.
func (z *ZList) resize(n int) {
	if n <= cap(z.data) {
		z.data = z.data[:n]
	} else {
		grown := make([]byte, n)
		copy(grown, z.data)
		z.data = grown
	}
	z.setTotalBytes(n)
	z.data[n-1] = endByte
}

// cascadeUpdate repairs prevLen fields from the entry at p forward after
// the entry before p changed size. Widening one field can grow that entry
// past the 254-byte boundary and force the next field wider too, so the
// walk continues until a field already wide enough is found. A field that
// is wider than necessary is rewritten in place, never narrowed: shrinking
// here would let alternating inserts and deletes around the boundary grow
// and shrink the same fields forever.
func (z *ZList) cascadeUpdate(p int) {
	curlen := z.BlobLen()

	for z.data[p] != endByte {
		cur := z.entryAt(p)
		rawlen := cur.headerSize + cur.length
		rawlensize := prevLenBytes(rawlen)

		if z.data[p+rawlen] == endByte {
			break
		}
		next := z.entryAt(p + rawlen)

		if next.prevRawLen == rawlen {
			break
		}

		if next.prevRawLenSize < rawlensize {
			// The successor's prevLen field must widen.
			extra := rawlensize - next.prevRawLenSize
			z.resize(curlen + extra)

			np := p + rawlen
			if z.tailOffset() != np {
				z.setTailOffset(z.tailOffset() + extra)
			}
			copy(z.data[np+rawlensize:], z.data[np+next.prevRawLenSize:curlen-1])
			z.writePrevLen(np, rawlen)

			p += rawlen
			curlen += extra
		} else {
			if next.prevRawLenSize > rawlensize {
				// Wide field, small value: rewrite without narrowing.
				z.writePrevLenForceLarge(p+rawlen, rawlen)
			} else {
				z.writePrevLen(p+rawlen, rawlen)
			}
			break
		}
	}
}

// insert places s before the entry at p (or at the end when p is the
// terminator) and returns the offset of the new entry.
func (z *ZList) insert(p int, s []byte) int {
	curlen := z.BlobLen()

	// Length of the entry that will precede the new one.
	var prevLen int
	if z.data[p] != endByte {
		_, prevLen = z.decodePrevLen(p)
	} else if tail := z.tailOffset(); z.data[tail] != endByte {
		prevLen = z.rawEntryLength(tail)
	}

	// Size of the new entry.
	v, enc, isInt := tryEncoding(s)
	var reqLen int
	if isInt {
		reqLen = intSize(enc)
	} else {
		enc = 0
		reqLen = len(s)
	}
	reqLen += prevLenBytes(prevLen)
	reqLen += lengthSize(enc, len(s))

	// When not inserting at the tail, the entry at p must be able to
	// hold the new entry's length in its prevLen field.
	nextDiff := 0
	if z.data[p] != endByte {
		nextDiff = z.prevLenByteDiff(p, reqLen)
	}

	z.resize(curlen + reqLen + nextDiff)

	if p != curlen-1 {
		// Shift the region [p, end) right to make room, accounting for
		// the successor's prevLen field change.
		copy(z.data[p+reqLen:], z.data[p-nextDiff:curlen-1])

		z.writePrevLen(p+reqLen, reqLen)

		z.setTailOffset(z.tailOffset() + reqLen)
		tail := z.entryAt(p + reqLen)
		if z.data[p+reqLen+tail.headerSize+tail.length] != endByte {
			z.setTailOffset(z.tailOffset() + nextDiff)
		}
	} else {
		// The new entry is the tail.
		z.setTailOffset(p)
	}

	if nextDiff != 0 {
		z.cascadeUpdate(p + reqLen)
	}

	w := p
	w += z.writePrevLen(w, prevLen)
	w += z.writeLength(w, enc, len(s))
	if isInt {
		z.saveInteger(w, v, enc)
	} else {
		copy(z.data[w:], s)
	}
	z.incrCount(1)
	return p
}

// deleteRange removes up to num entries starting at offset p.
func (z *ZList) deleteRange(p, num int) {
	if z.data[p] == endByte {
		return
	}
	first := z.entryAt(p)

	deleted := 0
	q := p
	for i := 0; z.data[q] != endByte && i < num; i++ {
		q += z.rawEntryLength(q)
		deleted++
	}

	totLen := q - p
	if totLen <= 0 {
		return
	}

	nextDiff := 0
	if z.data[q] != endByte {
		// The surviving successor inherits the deleted head's
		// predecessor; its prevLen field may change width. There is
		// always room: the deleted region held that length before.
		nextDiff = z.prevLenByteDiff(q, first.prevRawLen)
		q -= nextDiff
		z.writePrevLen(q, first.prevRawLen)

		z.setTailOffset(z.tailOffset() - totLen)
		tail := z.entryAt(q)
		if z.data[q+tail.headerSize+tail.length] != endByte {
			z.setTailOffset(z.tailOffset() + nextDiff)
		}

		copy(z.data[p:], z.data[q:z.BlobLen()-1])
	} else {
		// Whole tail removed; the entry before p becomes the tail.
		z.setTailOffset(p - first.prevRawLen)
	}

	z.resize(z.BlobLen() - totLen + nextDiff)
	z.incrCount(-deleted)

	if nextDiff != 0 {
		z.cascadeUpdate(p)
	}
}

// -----------------------------------------------------------------------------
// Public API
// -----------------------------------------------------------------------------

// Push inserts s at the head or tail of the list.
func (z *ZList) Push(where Where, s []byte) {
	if where == Head {
		z.insert(headerSize, s)
	} else {
		z.insert(z.BlobLen()-1, s)
	}
}

// Insert places s immediately before the entry at position p.
func (z *ZList) Insert(p int, s []byte) {
	z.insert(p, s)
}

// Delete removes the entry at position p and returns the position of the
// entry that now occupies it (the former successor, or the terminator
// when the tail was deleted), so tail-to-head deletion loops can keep
// iterating.
func (z *ZList) Delete(p int) int {
	z.deleteRange(p, 1)
	return p
}

// DeleteRange removes num consecutive entries starting at index. Out of
// range indexes are a no-op.
func (z *ZList) DeleteRange(index, num int) {
	p, ok := z.Index(index)
	if !ok {
		return
	}
	z.deleteRange(p, num)
}

// Index returns the position of the entry at index i. Negative indices
// count from the tail: -1 is the tail entry. O(n).
func (z *ZList) Index(i int) (pos int, ok bool) {
	var p int
	if i < 0 {
		i = (-i) - 1
		p = z.tailOffset()
		if z.data[p] != endByte {
			_, prevLen := z.decodePrevLen(p)
			for prevLen > 0 && i > 0 {
				i--
				p -= prevLen
				_, prevLen = z.decodePrevLen(p)
			}
		}
	} else {
		p = headerSize
		for z.data[p] != endByte && i > 0 {
			i--
			p += z.rawEntryLength(p)
		}
	}
	if z.data[p] == endByte || i > 0 {
		return 0, false
	}
	return p, true
}

// Next returns the position after p. ok is false when p is the tail
// entry or the terminator. O(1).
func (z *ZList) Next(p int) (int, bool) {
	// p may sit on the terminator after a Delete during iteration.
	if z.data[p] == endByte {
		return 0, false
	}
	p += z.rawEntryLength(p)
	if z.data[p] == endByte {
		return 0, false
	}
	return p, true
}

// Prev returns the position before p. From the terminator it returns the
// tail entry; from the head entry ok is false. O(1).
func (z *ZList) Prev(p int) (int, bool) {
	switch {
	case z.data[p] == endByte:
		tail := z.tailOffset()
		if z.data[tail] == endByte {
			return 0, false
		}
		return tail, true
	case p == headerSize:
		return 0, false
	default:
		_, prevLen := z.decodePrevLen(p)
		return p - prevLen, true
	}
}

// Get decodes the entry at position p. ok is false at the terminator.
func (z *ZList) Get(p int) (Value, bool) {
	if p < headerSize || p >= z.BlobLen() || z.data[p] == endByte {
		return Value{}, false
	}
	e := z.entryAt(p)
	if isString(e.enc) {
		return Value{Bytes: z.data[p+e.headerSize : p+e.headerSize+e.length]}, true
	}
	return Value{Int: z.loadInteger(p+e.headerSize, e.enc), IsInt: true}, true
}

// Compare reports whether the entry at p equals s. String entries
// compare byte-wise; integer entries compare numerically against a parse
// of s, so encodings of differing widths still match.
func (z *ZList) Compare(p int, s []byte) bool {
	if z.data[p] == endByte {
		return false
	}
	e := z.entryAt(p)
	if isString(e.enc) {
		if e.length != len(s) {
			return false
		}
		payload := z.data[p+e.headerSize:]
		for i := range s {
			if payload[i] != s[i] {
				return false
			}
		}
		return true
	}
	sv, _, ok := tryEncoding(s)
	if !ok {
		return false
	}
	return z.loadInteger(p+e.headerSize, e.enc) == sv
}

// Find returns the position of the first entry equal to s, starting the
// scan at position p and comparing every skip+1th entry. O(n).
func (z *ZList) Find(p int, s []byte, skip int) (int, bool) {
	skipCnt := 0
	parsed := false
	var sv int64
	var sOK bool

	for z.data[p] != endByte {
		prevLenSize := z.prevLenSize(p)
		enc, lenSize, length := z.decodeLength(p + prevLenSize)
		q := p + prevLenSize + lenSize

		if skipCnt == 0 {
			if isString(enc) {
				if length == len(s) && string(z.data[q:q+length]) == string(s) {
					return p, true
				}
			} else {
				// Parse the needle at most once, on first use.
				if !parsed {
					sv, _, sOK = tryEncoding(s)
					parsed = true
				}
				if sOK && z.loadInteger(q, enc) == sv {
					return p, true
				}
			}
			skipCnt = skip
		} else {
			skipCnt--
		}

		p = q + length
	}
	return 0, false
}
