package htab

import "math/bits"

// ScanFunc receives one entry during a Scan.
type ScanFunc func(e *Entry)

// Scan performs one stateless step of a full traversal and returns the
// next cursor. Start with cursor 0; a returned 0 means the traversal is
// complete. The table may be mutated freely between calls, including
// growing or shrinking: every key present for the entire traversal is
// visited at least once, though keys may be visited more than once around
// a resize.
//
// The cursor advances by incrementing its bits in reversed order, masked
// to the current table size. Because bucket b of a table of size s splits
// into buckets b and b+s of a table of size 2s — the same bit pattern
// extended upward — a reversed-increment cursor never revisits the
// already-scanned image of a bucket after the table grows, which a plain
// low-to-high cursor cannot guarantee. While a rehash is running, the
// bucket of the smaller table and every bucket of the larger table that
// maps onto it are visited together, so the step is sound no matter which
// table a key currently lives in.
func (h *HTab) Scan(cursor uint64, fn ScanFunc) uint64 {
	if h.Len() == 0 {
		return 0
	}

	var m0 uint64
	if !h.Rehashing() {
		t0 := &h.ht[0]
		m0 = t0.mask
		for e := t0.buckets[cursor&m0]; e != nil; e = e.next {
			fn(e)
		}
	} else {
		t0, t1 := &h.ht[0], &h.ht[1]
		if t0.size > t1.size {
			t0, t1 = t1, t0
		}
		m0 = t0.mask
		m1 := t1.mask

		for e := t0.buckets[cursor&m0]; e != nil; e = e.next {
			fn(e)
		}

		// Visit every larger-table bucket whose index maps onto the
		// current smaller-table bucket.
		for {
			for e := t1.buckets[cursor&m1]; e != nil; e = e.next {
				fn(e)
			}
			cursor = (((cursor | m0) + 1) &^ m0) | (cursor & m0)
			if cursor&(m0^m1) == 0 {
				break
			}
		}
	}

	// Reverse-binary increment of the bits covered by the smaller mask.
	cursor |= ^m0
	cursor = bits.Reverse64(cursor)
	cursor++
	cursor = bits.Reverse64(cursor)
	return cursor
}
