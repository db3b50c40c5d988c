package htab

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/cinnabarkv/cinnabarkv/internal/logging"
)

// drainRehash runs a pending incremental rehash to completion.
func drainRehash(h *HTab) {
	for h.Rehashing() {
		h.rehash(100)
	}
}

func TestIncrementalRehashKeepsAllKeysFindable(t *testing.T) {
	h := New(StringKeys(), nil)

	const n = 10000
	sawRehash := false
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key-%d", i)
		assert.NoError(t, h.Add(k, i))
		if h.Rehashing() {
			sawRehash = true
		}

		// The key just inserted must be immediately findable, in
		// whichever table it landed.
		assert.NotNil(t, h.Find(k))

		// Periodically verify every key inserted so far survives the
		// partial rehash states.
		if i%500 == 0 {
			for j := 0; j <= i; j++ {
				if h.Find(fmt.Sprintf("key-%d", j)) == nil {
					t.Fatalf("key-%d lost at insert %d (rehashing=%v)", j, i, h.Rehashing())
				}
			}
			checkTableInvariants(t, h)
		}
	}

	assert.That(t, sawRehash)
	assert.Equal(t, n, h.Len())
	assert.That(t, h.ht[0].size >= 8) // grew through at least one doubling

	for i := 0; i < n; i++ {
		e := h.Find(fmt.Sprintf("key-%d", i))
		assert.NotNil(t, e)
		assert.Equal(t, i, e.Value())
	}
	checkTableInvariants(t, h)
}

func TestForceRatioOverridesDisabledResize(t *testing.T) {
	DisableResize()
	t.Cleanup(EnableResize)

	h := New(StringKeys(), nil)
	for i := 0; i < initialSize*forceRatio; i++ {
		assert.NoError(t, h.Add(fmt.Sprintf("k%d", i), i))
	}
	assert.That(t, !h.Rehashing())
	assert.Equal(t, uint64(initialSize), h.ht[0].size)

	// used/size has reached forceRatio: the next insert must grow the
	// table despite resizing being disabled.
	assert.NoError(t, h.Add("overflow", 1))
	assert.That(t, h.Rehashing())
	assert.That(t, h.ht[1].size > uint64(initialSize))

	for i := 0; i < initialSize*forceRatio; i++ {
		assert.NotNil(t, h.Find(fmt.Sprintf("k%d", i)))
	}
	checkTableInvariants(t, h)
}

func TestDisabledResizeDefersGrowth(t *testing.T) {
	DisableResize()
	t.Cleanup(EnableResize)

	h := New(StringKeys(), nil)
	// Up to just under forceRatio the table must not grow.
	for i := 0; i < initialSize*forceRatio-1; i++ {
		assert.NoError(t, h.Add(fmt.Sprintf("k%d", i), i))
		assert.That(t, !h.Rehashing())
	}
	assert.Equal(t, uint64(initialSize), h.ht[0].size)
}

func TestRehashForCompletes(t *testing.T) {
	h := New(StringKeys(), nil)
	for i := 0; i < 5000; i++ {
		assert.NoError(t, h.Add(fmt.Sprintf("k%d", i), i))
	}

	// Force a fresh rehash to a larger size.
	drainRehash(h)
	assert.NoError(t, h.Expand(h.ht[0].size*4))
	assert.That(t, h.Rehashing())

	steps := 0
	for h.Rehashing() {
		steps += h.RehashFor(10 * time.Millisecond)
	}
	assert.That(t, steps > 0)
	assert.That(t, !h.Rehashing())
	assert.Equal(t, 5000, h.Len())
	checkTableInvariants(t, h)
}

func TestResizeToMinimal(t *testing.T) {
	h := New(StringKeys(), nil)
	for i := 0; i < 1000; i++ {
		assert.NoError(t, h.Add(fmt.Sprintf("k%d", i), i))
	}
	for i := 10; i < 1000; i++ {
		assert.NoError(t, h.Delete(fmt.Sprintf("k%d", i)))
	}
	drainRehash(h)
	bigSize := h.ht[0].size
	assert.That(t, h.ht[0].used*10 < bigSize)

	assert.NoError(t, h.ResizeToMinimal())
	for h.Rehashing() {
		h.RehashFor(10 * time.Millisecond)
	}
	assert.That(t, h.ht[0].size < bigSize)
	assert.Equal(t, uint64(16), h.ht[0].size) // 10 keys -> 16 buckets

	for i := 0; i < 10; i++ {
		assert.NotNil(t, h.Find(fmt.Sprintf("k%d", i)))
	}
	checkTableInvariants(t, h)
}

func TestResizeToMinimalRefusals(t *testing.T) {
	h := New(StringKeys(), nil)
	// Empty, unallocated table.
	assert.Error(t, h.ResizeToMinimal())

	for i := 0; i < 100; i++ {
		assert.NoError(t, h.Add(fmt.Sprintf("k%d", i), i))
	}
	// Load factor too high to bother.
	assert.Error(t, h.ResizeToMinimal())

	DisableResize()
	t.Cleanup(EnableResize)
	for i := 10; i < 100; i++ {
		assert.NoError(t, h.Delete(fmt.Sprintf("k%d", i)))
	}
	// Low load, but resizing disabled.
	assert.Error(t, h.ResizeToMinimal())
}

func TestSafeIteratorPausesRehash(t *testing.T) {
	h := New(StringKeys(), nil)
	for i := 0; i < 1000; i++ {
		assert.NoError(t, h.Add(fmt.Sprintf("k%d", i), i))
	}
	drainRehash(h)
	assert.NoError(t, h.Expand(h.ht[0].size*2))
	assert.That(t, h.Rehashing())

	it := h.SafeIterator()
	assert.NotNil(t, it.Next())

	// Mutations while the safe iterator lives must not advance the
	// rehash.
	idxBefore := h.rehashIdx
	usedBefore := h.ht[1].used
	for i := 0; i < 50; i++ {
		assert.NoError(t, h.Add(fmt.Sprintf("extra%d", i), i))
		assert.NotNil(t, h.Find(fmt.Sprintf("extra%d", i)))
	}
	assert.Equal(t, idxBefore, h.rehashIdx)
	// New inserts land in ht[1] but no buckets were migrated.
	assert.Equal(t, usedBefore+50, h.ht[1].used)

	assert.NoError(t, it.Release())

	// Released: the next mutator advances the rehash again.
	assert.NoError(t, h.Add("resume", 1))
	assert.That(t, h.rehashIdx > idxBefore || !h.Rehashing())
	checkTableInvariants(t, h)
}

func TestRehashLogging(t *testing.T) {
	var buf bytes.Buffer
	h := New(StringKeys(), nil)
	h.SetLogger(logging.NewLogger(&buf, logging.LevelDebug))

	for i := 0; i < 100; i++ {
		assert.NoError(t, h.Add(fmt.Sprintf("k%d", i), i))
	}
	for h.Rehashing() {
		h.RehashFor(10 * time.Millisecond)
	}

	out := buf.String()
	assert.That(t, strings.Contains(out, "[rehash] started"))
	assert.That(t, strings.Contains(out, "[rehash] complete"))
}

func TestEmptyVisitBoundTerminatesStep(t *testing.T) {
	h := New(StringKeys(), nil)
	for i := 0; i < 5000; i++ {
		assert.NoError(t, h.Add(fmt.Sprintf("k%d", i), i))
	}
	drainRehash(h)
	for i := 5; i < 5000; i++ {
		assert.NoError(t, h.Delete(fmt.Sprintf("k%d", i)))
	}
	drainRehash(h)

	// Five keys scattered over a big bucket array: rehashing this
	// source runs into long empty stretches, and a single step must
	// give up after its empty-visit budget instead of sweeping the
	// whole array.
	assert.That(t, h.ht[0].size >= 4096)
	assert.NoError(t, h.Expand(h.ht[0].size*2))
	for h.Rehashing() {
		before := h.rehashIdx
		h.rehashStep()
		if h.Rehashing() {
			moved := h.rehashIdx - before
			if moved > 10 {
				t.Fatalf("single step visited %d buckets, want <= 10", moved)
			}
		}
	}
	assert.Equal(t, 5, h.Len())
	checkTableInvariants(t, h)
}
