// Package htab implements a chained hash table whose growth is amortized
// across operations by incremental rehashing.
//
// The table holds two sub-tables. Normally only the first is populated;
// during a rehash, lookups consult both and every mutating operation
// moves one more bucket of entries from the first to the second, so the
// cost of growing never lands on a single operation. A live safe
// iterator pauses rehashing until it is released.
//
// Keys and values are opaque. Hashing, comparison, and the optional
// copy/destroy lifecycle travel in a Type object carried by the table;
// every hook receives the per-table private data pointer. Entry values
// are a tagged variant: a pointer, a signed or unsigned 64-bit integer,
// or a double.
//
// The table is single-threaded: operations complete synchronously and
// instances must not be shared across goroutines without external
// synchronization.
package htab

import (
	"errors"
	"time"
	"unsafe"

	"github.com/zeebo/pcg"

	"github.com/cinnabarkv/cinnabarkv/internal/logging"
)

var (
	// ErrExists is returned by Add for a key already in the table.
	ErrExists = errors.New("htab: key exists")

	// ErrNotFound is returned by Delete for a missing key.
	ErrNotFound = errors.New("htab: key not found")

	// ErrIllegalState is returned for operations invalid in the current
	// state, like expanding below the live entry count.
	ErrIllegalState = errors.New("htab: illegal operation")

	// ErrIterMisuse is returned by an unsafe iterator's Release when the
	// table was mutated during the traversal.
	ErrIterMisuse = errors.New("htab: table mutated during unsafe iteration")
)

const (
	// initialSize is the smallest bucket array ever allocated.
	initialSize = 4

	// forceRatio is the used/size load factor past which the table grows
	// even while resizing is globally disabled.
	forceRatio = 5

	// maxSize caps the bucket array so size arithmetic cannot overflow.
	maxSize = 1 << 62
)

// canResize gates automatic growth, process-wide. A surrounding system
// disables it while a fork shares pages copy-on-write; forceRatio still
// overrides it for severely overloaded tables.
var canResize = true

// EnableResize re-enables automatic growth.
func EnableResize() { canResize = true }

// DisableResize suspends automatic growth except under forceRatio.
func DisableResize() { canResize = false }

// Type carries the per-table key/value contract. Hash and KeyCompare are
// required; the lifecycle hooks are optional. Every hook receives the
// table's private data as its first argument.
type Type struct {
	Hash          func(key any) uint32
	KeyDup        func(priv, key any) any
	ValDup        func(priv, val any) any
	KeyCompare    func(priv, a, b any) bool
	KeyDestructor func(priv, key any)
	ValDestructor func(priv, val any)
}

// valueKind tags the active variant of an entry value.
type valueKind uint8

const (
	valPtr valueKind = iota
	valSigned
	valUnsigned
	valDouble
)

// Entry is one key/value pair, linked into its bucket chain.
type Entry struct {
	key  any
	kind valueKind
	ptr  any
	s64  int64
	u64  uint64
	f64  float64
	next *Entry
}

// Key returns the entry's key.
func (e *Entry) Key() any { return e.key }

// Value returns the pointer value. Valid when the value was set with
// SetVal.
func (e *Entry) Value() any { return e.ptr }

// SignedInt returns the signed integer value.
func (e *Entry) SignedInt() int64 { return e.s64 }

// UnsignedInt returns the unsigned integer value.
func (e *Entry) UnsignedInt() uint64 { return e.u64 }

// Double returns the floating-point value.
func (e *Entry) Double() float64 { return e.f64 }

// table is one of the two sub-tables.
type table struct {
	buckets []*Entry
	size    uint64
	mask    uint64
	used    uint64
}

// HTab is an incrementally-rehashed hash table. Create instances with
// New.
type HTab struct {
	typ       *Type
	priv      any
	ht        [2]table
	rehashIdx int64 // bucket index into ht[0], or -1 when not rehashing
	iterators int   // live safe iterators; rehashing pauses while > 0
	logger    logging.Logger
	rng       pcg.T
}

// New creates an empty table with the given contract and private data.
// The bucket array is allocated lazily on first insert.
func New(typ *Type, priv any) *HTab {
	if typ == nil || typ.Hash == nil || typ.KeyCompare == nil {
		panic("htab: Type must provide Hash and KeyCompare")
	}
	return &HTab{
		typ:       typ,
		priv:      priv,
		rehashIdx: -1,
		logger:    logging.Discard,
	}
}

// SetLogger routes rehash progress events to l. The default discards
// them.
func (h *HTab) SetLogger(l logging.Logger) {
	if l == nil {
		l = logging.Discard
	}
	h.logger = l
}

// Len returns the number of live entries across both sub-tables. O(1).
func (h *HTab) Len() int { return int(h.ht[0].used + h.ht[1].used) }

// Rehashing reports whether an incremental rehash is in progress.
func (h *HTab) Rehashing() bool { return h.rehashIdx != -1 }

func (h *HTab) keyEqual(a, b any) bool {
	return h.typ.KeyCompare(h.priv, a, b)
}

func (h *HTab) freeKey(e *Entry) {
	if h.typ.KeyDestructor != nil {
		h.typ.KeyDestructor(h.priv, e.key)
	}
}

func (h *HTab) freeVal(e *Entry) {
	if e.kind == valPtr && h.typ.ValDestructor != nil {
		h.typ.ValDestructor(h.priv, e.ptr)
	}
}

// SetVal stores v as the entry's pointer value, copying it through the
// ValDup hook when present.
func (h *HTab) SetVal(e *Entry, v any) {
	if h.typ.ValDup != nil {
		v = h.typ.ValDup(h.priv, v)
	}
	e.kind = valPtr
	e.ptr = v
}

// SetSignedInt stores v inline as the entry's value.
func (h *HTab) SetSignedInt(e *Entry, v int64) {
	e.kind = valSigned
	e.s64 = v
}

// SetUnsignedInt stores v inline as the entry's value.
func (h *HTab) SetUnsignedInt(e *Entry, v uint64) {
	e.kind = valUnsigned
	e.u64 = v
}

// SetDouble stores v inline as the entry's value.
func (h *HTab) SetDouble(e *Entry, v float64) {
	e.kind = valDouble
	e.f64 = v
}

// nextPower returns the smallest power of two that is at least
// max(size, initialSize), capped at maxSize.
func nextPower(size uint64) uint64 {
	i := uint64(initialSize)
	if size >= maxSize {
		return maxSize
	}
	for i < size {
		i *= 2
	}
	return i
}

// Expand grows (or initializes) the bucket array to hold at least size
// buckets and starts an incremental rehash into it. Expanding below the
// live entry count, or while a rehash is running, is refused.
func (h *HTab) Expand(size uint64) error {
	if h.Rehashing() || h.ht[0].used > size {
		return ErrIllegalState
	}

	realSize := nextPower(size)
	n := table{
		buckets: make([]*Entry, realSize),
		size:    realSize,
		mask:    realSize - 1,
	}

	// First allocation: install directly, nothing to rehash.
	if h.ht[0].buckets == nil {
		h.ht[0] = n
		return nil
	}

	h.ht[1] = n
	h.rehashIdx = 0
	h.logger.Debugf(logging.NSRehash+"started: %d -> %d buckets, %d keys",
		h.ht[0].size, realSize, h.ht[0].used)
	return nil
}

// ResizeToMinimal shrinks the table to the smallest power of two holding
// its entries, provided the load factor has fallen below 10% and resizing
// is enabled.
func (h *HTab) ResizeToMinimal() error {
	if !canResize || h.Rehashing() {
		return ErrIllegalState
	}
	if h.ht[0].size == 0 || h.ht[0].used*10 >= h.ht[0].size {
		return ErrIllegalState
	}
	minimal := h.ht[0].used
	if minimal < initialSize {
		minimal = initialSize
	}
	return h.Expand(minimal)
}

// expandIfNeeded grows the table ahead of an insert when the load factor
// reaches 1, or at forceRatio even while resizing is disabled.
func (h *HTab) expandIfNeeded() {
	if h.Rehashing() {
		return
	}
	if h.ht[0].size == 0 {
		_ = h.Expand(initialSize)
		return
	}
	if h.ht[0].used >= h.ht[0].size &&
		(canResize || h.ht[0].used/h.ht[0].size >= forceRatio) {
		_ = h.Expand(h.ht[0].used + 1)
	}
}

// rehash performs n bucket-move steps. Visiting 10*n empty buckets also
// ends the call, bounding the worst-case pause. Returns true while moves
// remain.
func (h *HTab) rehash(n int) bool {
	emptyVisits := n * 10
	if !h.Rehashing() {
		return false
	}

	for ; n > 0 && h.ht[0].used != 0; n-- {
		// rehashIdx cannot overrun: ht[0].used != 0 means a non-empty
		// bucket exists at or past it.
		for h.ht[0].buckets[h.rehashIdx] == nil {
			h.rehashIdx++
			emptyVisits--
			if emptyVisits == 0 {
				return true
			}
		}

		// Move the whole chain to its new buckets.
		e := h.ht[0].buckets[h.rehashIdx]
		for e != nil {
			next := e.next
			idx := uint64(h.typ.Hash(e.key)) & h.ht[1].mask
			e.next = h.ht[1].buckets[idx]
			h.ht[1].buckets[idx] = e
			h.ht[0].used--
			h.ht[1].used++
			e = next
		}
		h.ht[0].buckets[h.rehashIdx] = nil
		h.rehashIdx++
	}

	if h.ht[0].used == 0 {
		h.ht[0] = h.ht[1]
		h.ht[1] = table{}
		h.rehashIdx = -1
		h.logger.Debugf(logging.NSRehash+"complete: %d buckets, %d keys",
			h.ht[0].size, h.ht[0].used)
		return false
	}
	return true
}

// rehashStep advances the rehash by one bucket unless a safe iterator is
// live.
func (h *HTab) rehashStep() {
	if h.iterators == 0 {
		h.rehash(1)
	}
}

// RehashFor runs rehash steps in 100-bucket chunks until the duration is
// spent or the rehash completes. Returns 100 for every chunk after which
// the rehash was still incomplete; the chunk that completes it is not
// counted.
// A partially-rehashed table is the normal steady state; stopping at any
// point leaves it consistent.
func (h *HTab) RehashFor(d time.Duration) int {
	start := time.Now()
	steps := 0
	for h.rehash(100) {
		steps += 100
		if time.Since(start) >= d {
			break
		}
	}
	return steps
}

// keyIndex returns the bucket index for inserting key in the target
// table, or -1 when the key already exists in either table.
func (h *HTab) keyIndex(key any) int64 {
	h.expandIfNeeded()

	hv := uint64(h.typ.Hash(key))
	var idx uint64
	for t := 0; t <= 1; t++ {
		idx = hv & h.ht[t].mask
		for e := h.ht[t].buckets[idx]; e != nil; e = e.next {
			if h.keyEqual(key, e.key) {
				return -1
			}
		}
		if !h.Rehashing() {
			break
		}
	}
	return int64(idx)
}

// AddRaw inserts key with no value set and returns the new entry, or nil
// when the key already exists. The caller sets the value with one of the
// Set* methods. New entries go to the head of their chain: head-insert is
// O(1) and recently inserted keys are the likeliest to be probed next.
func (h *HTab) AddRaw(key any) *Entry {
	if h.Rehashing() {
		h.rehashStep()
	}

	idx := h.keyIndex(key)
	if idx == -1 {
		return nil
	}

	t := &h.ht[0]
	if h.Rehashing() {
		t = &h.ht[1]
	}

	e := &Entry{}
	e.next = t.buckets[idx]
	t.buckets[idx] = e
	t.used++

	if h.typ.KeyDup != nil {
		e.key = h.typ.KeyDup(h.priv, key)
	} else {
		e.key = key
	}
	return e
}

// Add inserts key with the given pointer value. Returns ErrExists without
// mutating when the key is present.
func (h *HTab) Add(key, val any) error {
	e := h.AddRaw(key)
	if e == nil {
		return ErrExists
	}
	h.SetVal(e, val)
	return nil
}

// Replace sets key to val, inserting when absent. Returns true when the
// key was new. On update the previous value is released through the
// ValDestructor after the new one is in place.
func (h *HTab) Replace(key, val any) bool {
	if e := h.AddRaw(key); e != nil {
		h.SetVal(e, val)
		return true
	}

	e := h.Find(key)
	old := *e
	h.SetVal(e, val)
	h.freeVal(&old)
	return false
}

// Find returns the entry for key or nil. During a rehash both sub-tables
// are probed.
func (h *HTab) Find(key any) *Entry {
	if h.ht[0].size == 0 {
		return nil
	}
	if h.Rehashing() {
		h.rehashStep()
	}

	hv := uint64(h.typ.Hash(key))
	for t := 0; t <= 1; t++ {
		idx := hv & h.ht[t].mask
		for e := h.ht[t].buckets[idx]; e != nil; e = e.next {
			if h.keyEqual(key, e.key) {
				return e
			}
		}
		if !h.Rehashing() {
			break
		}
	}
	return nil
}

// FetchValue returns the pointer value for key, or nil when absent.
func (h *HTab) FetchValue(key any) any {
	if e := h.Find(key); e != nil {
		return e.Value()
	}
	return nil
}

func (h *HTab) delete(key any, nofree bool) error {
	if h.ht[0].size == 0 {
		return ErrNotFound
	}
	if h.Rehashing() {
		h.rehashStep()
	}

	hv := uint64(h.typ.Hash(key))
	for t := 0; t <= 1; t++ {
		idx := hv & h.ht[t].mask
		var prev *Entry
		for e := h.ht[t].buckets[idx]; e != nil; e = e.next {
			if h.keyEqual(key, e.key) {
				if prev != nil {
					prev.next = e.next
				} else {
					h.ht[t].buckets[idx] = e.next
				}
				if !nofree {
					h.freeKey(e)
					h.freeVal(e)
				}
				e.next = nil
				h.ht[t].used--
				return nil
			}
			prev = e
		}
		if !h.Rehashing() {
			break
		}
	}
	return ErrNotFound
}

// Delete removes key, releasing its key and value through the
// destructors. Returns ErrNotFound when absent.
func (h *HTab) Delete(key any) error { return h.delete(key, false) }

// DeleteNoFree removes key without invoking the destructors; the caller
// takes over ownership of the key and value.
func (h *HTab) DeleteNoFree(key any) error { return h.delete(key, true) }

// Release removes every entry, invoking the destructors, and drops the
// bucket arrays.
func (h *HTab) Release() {
	for t := 0; t <= 1; t++ {
		for i := range h.ht[t].buckets {
			e := h.ht[t].buckets[i]
			for e != nil {
				next := e.next
				h.freeKey(e)
				h.freeVal(e)
				e.next = nil
				e = next
			}
			h.ht[t].buckets[i] = nil
		}
		h.ht[t] = table{}
	}
	h.rehashIdx = -1
	h.iterators = 0
}

// RandomKey returns a uniformly random bucket's random chain entry, or
// nil when the table is empty. During a rehash the already-emptied prefix
// of the first table is excluded.
func (h *HTab) RandomKey() *Entry {
	if h.Len() == 0 {
		return nil
	}
	if h.Rehashing() {
		h.rehashStep()
	}

	var e *Entry
	if h.Rehashing() {
		for e == nil {
			// Buckets [0, rehashIdx) of ht[0] are already empty.
			span := h.ht[0].size + h.ht[1].size - uint64(h.rehashIdx)
			idx := uint64(h.rehashIdx) + h.rng.Uint64()%span
			if idx >= h.ht[0].size {
				e = h.ht[1].buckets[idx-h.ht[0].size]
			} else {
				e = h.ht[0].buckets[idx]
			}
		}
	} else {
		for e == nil {
			e = h.ht[0].buckets[h.rng.Uint64()&h.ht[0].mask]
		}
	}

	chainLen := 0
	for c := e; c != nil; c = c.next {
		chainLen++
	}
	for n := h.rng.Uint32n(uint32(chainLen)); n > 0; n-- {
		e = e.next
	}
	return e
}

// SomeKeys collects up to count entries with a bounded random walk over
// consecutive buckets of both tables. The sample is cheap rather than
// perfectly uniform and may repeat keys across calls; it exists for
// approximate eviction sampling.
func (h *HTab) SomeKeys(count int) []*Entry {
	if count > h.Len() {
		count = h.Len()
	}
	if count == 0 {
		return nil
	}

	for j := 0; j < count && h.Rehashing(); j++ {
		h.rehashStep()
	}

	tables := 1
	if h.Rehashing() {
		tables = 2
	}
	maxSizeMask := h.ht[0].mask
	if tables > 1 && h.ht[1].mask > maxSizeMask {
		maxSizeMask = h.ht[1].mask
	}

	var stored []*Entry
	i := h.rng.Uint64() & maxSizeMask
	emptyLen := 0
	for maxSteps := count * 10; len(stored) < count && maxSteps > 0; maxSteps-- {
		for t := 0; t < tables; t++ {
			// During a rehash the buckets below rehashIdx in the first
			// table have no entries.
			if tables == 2 && t == 0 && i < uint64(h.rehashIdx) {
				if i >= h.ht[1].size {
					i = uint64(h.rehashIdx)
				} else {
					continue
				}
			}
			if i >= h.ht[t].size {
				continue
			}
			e := h.ht[t].buckets[i]

			// Long runs of empty buckets suggest a sparse region; jump
			// elsewhere.
			if e == nil {
				emptyLen++
				if emptyLen >= 5 && emptyLen > count {
					i = h.rng.Uint64() & maxSizeMask
					emptyLen = 0
				}
			} else {
				emptyLen = 0
				for e != nil {
					stored = append(stored, e)
					if len(stored) == count {
						return stored
					}
					e = e.next
				}
			}
		}
		i = (i + 1) & maxSizeMask
	}
	return stored
}

// fingerprint deterministically mixes the structural state of both
// sub-tables. An unsafe iterator captures it at creation and checks it at
// release: any mutation in between changes a bucket pointer, a size, or a
// used count, and with overwhelming probability the fingerprint.
func (h *HTab) fingerprint() int64 {
	integers := [6]int64{
		int64(bucketsID(h.ht[0].buckets)),
		int64(h.ht[0].size),
		int64(h.ht[0].used),
		int64(bucketsID(h.ht[1].buckets)),
		int64(h.ht[1].size),
		int64(h.ht[1].used),
	}

	var hash int64
	for _, v := range integers {
		hash += v
		hash = ^hash + (hash << 21)
		hash = hash ^ int64(uint64(hash)>>24)
		hash = hash + (hash << 3) + (hash << 8)
		hash = hash ^ int64(uint64(hash)>>14)
		hash = hash + (hash << 2) + (hash << 4)
		hash = hash ^ int64(uint64(hash)>>28)
		hash = hash + (hash << 31)
	}
	return hash
}

// bucketsID identifies a bucket array by its backing storage address.
func bucketsID(b []*Entry) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
