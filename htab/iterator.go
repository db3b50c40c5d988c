package htab

// Iterator walks every entry of the table, first sub-table first, each
// bucket chain head to tail. Iteration order is otherwise unspecified.
//
// An unsafe iterator (Iterator) requires that the table is not mutated
// until Release, which verifies a structural fingerprint and reports
// misuse. A safe iterator (SafeIterator) permits mutation but pauses
// incremental rehashing for its whole lifetime, so it should be
// short-lived; Scan is the traversal primitive for long-running walks.
type Iterator struct {
	h         *HTab
	table     int
	index     int64
	safe      bool
	entry     *Entry
	nextEntry *Entry
	fp        int64
}

// Iterator creates an unsafe iterator. The caller must not mutate the
// table before Release.
func (h *HTab) Iterator() *Iterator {
	return &Iterator{h: h, index: -1}
}

// SafeIterator creates an iterator that tolerates mutation by pausing
// rehashing while it lives. Release promptly.
func (h *HTab) SafeIterator() *Iterator {
	return &Iterator{h: h, index: -1, safe: true}
}

// Next returns the next entry, or nil when the traversal is complete.
// With a safe iterator the returned entry may be deleted from the table;
// the iterator has already captured its successor.
func (it *Iterator) Next() *Entry {
	for {
		if it.entry == nil {
			t := &it.h.ht[it.table]
			if it.index == -1 && it.table == 0 {
				// First call: pin rehashing or capture the fingerprint.
				if it.safe {
					it.h.iterators++
				} else {
					it.fp = it.h.fingerprint()
				}
			}
			it.index++
			if it.index >= int64(t.size) {
				if it.h.Rehashing() && it.table == 0 {
					it.table = 1
					it.index = 0
					t = &it.h.ht[1]
				} else {
					return nil
				}
			}
			it.entry = t.buckets[it.index]
		} else {
			it.entry = it.nextEntry
		}
		if it.entry != nil {
			it.nextEntry = it.entry.next
			return it.entry
		}
	}
}

// Release ends the traversal. For a safe iterator it resumes rehashing;
// for an unsafe one it re-computes the fingerprint and returns
// ErrIterMisuse if the table changed underneath the traversal.
func (it *Iterator) Release() error {
	if !(it.index == -1 && it.table == 0) {
		if it.safe {
			it.h.iterators--
		} else if it.fp != it.h.fingerprint() {
			return ErrIterMisuse
		}
	}
	return nil
}
