package qlist

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cinnabarkv/cinnabarkv/zlist"
)

// collect decodes the whole list front to back as strings.
func collect(q *QList) []string {
	var out []string
	q.Each(func(v zlist.Value) bool {
		if v.IsInt {
			out = append(out, fmt.Sprint(v.Int))
		} else {
			out = append(out, string(v.Bytes))
		}
		return true
	})
	return out
}

// plainNodes counts nodes currently held uncompressed.
func plainNodes(q *QList) int {
	n := 0
	for c := q.head; c != nil; c = c.next {
		if c.plain() {
			n++
		}
	}
	return n
}

func TestPushPopSingleNode(t *testing.T) {
	q := New(0, 0)
	q.PushTail([]byte("b"))
	q.PushHead([]byte("a"))
	q.PushTail([]byte("c"))

	require.Equal(t, 3, q.Len())
	require.Equal(t, 1, q.NodeCount())
	require.Equal(t, []string{"a", "b", "c"}, collect(q))

	v, ok := q.PopHead()
	require.True(t, ok)
	require.Equal(t, "a", string(v.Bytes))

	v, ok = q.PopTail()
	require.True(t, ok)
	require.Equal(t, "c", string(v.Bytes))

	require.Equal(t, 1, q.Len())
	v, ok = q.PopHead()
	require.True(t, ok)
	require.Equal(t, "b", string(v.Bytes))

	require.Equal(t, 0, q.Len())
	require.Equal(t, 0, q.NodeCount())
	_, ok = q.PopHead()
	require.False(t, ok)
	_, ok = q.PopTail()
	require.False(t, ok)
}

func TestNodeSplitsAtFill(t *testing.T) {
	q := New(4, 0)
	for i := 0; i < 10; i++ {
		q.PushTail([]byte(fmt.Sprintf("e%d", i)))
	}
	require.Equal(t, 10, q.Len())
	require.Equal(t, 3, q.NodeCount()) // 4 + 4 + 2

	for i := 0; i < 10; i++ {
		v, ok := q.Index(i)
		require.True(t, ok, "Index(%d)", i)
		require.Equal(t, fmt.Sprintf("e%d", i), string(v.Bytes))
	}
}

func TestNodeSplitsAtSizeLimit(t *testing.T) {
	q := New(1<<30, 0) // fill never triggers; size limit must
	payload := strings.Repeat("x", 3000)
	for i := 0; i < 10; i++ {
		q.PushTail([]byte(payload))
	}
	require.Greater(t, q.NodeCount(), 1)
	require.Equal(t, 10, q.Len())
}

func TestIndexNegative(t *testing.T) {
	q := New(3, 0)
	for i := 0; i < 7; i++ {
		q.PushTail([]byte(fmt.Sprintf("e%d", i)))
	}

	v, ok := q.Index(-1)
	require.True(t, ok)
	require.Equal(t, "e6", string(v.Bytes))

	v, ok = q.Index(-7)
	require.True(t, ok)
	require.Equal(t, "e0", string(v.Bytes))

	_, ok = q.Index(7)
	require.False(t, ok)
	_, ok = q.Index(-8)
	require.False(t, ok)
}

func TestIntegerEntriesSurvive(t *testing.T) {
	q := New(2, 0)
	q.PushTail([]byte("1024"))
	q.PushTail([]byte("text"))
	q.PushTail([]byte("-7"))

	v, ok := q.Index(0)
	require.True(t, ok)
	require.True(t, v.IsInt)
	require.Equal(t, int64(1024), v.Int)

	v, _ = q.Index(2)
	require.True(t, v.IsInt)
	require.Equal(t, int64(-7), v.Int)
}

func TestCompressionDepth(t *testing.T) {
	for _, codec := range []Codec{CodecSnappy, CodecLZ4, CodecZstd} {
		t.Run(fmt.Sprint(codec), func(t *testing.T) {
			q := New(16, 1)
			q.SetCodec(codec)

			// Compressible payloads so interior nodes actually shrink.
			payload := strings.Repeat("compressible-", 40)
			const n = 160 // 10 nodes
			for i := 0; i < n; i++ {
				q.PushTail([]byte(fmt.Sprintf("%s%d", payload, i)))
			}
			require.Greater(t, q.NodeCount(), 2*1)

			// Only the depth window at each end is plain.
			require.Equal(t, 2, plainNodes(q))
			require.True(t, q.head.plain())
			require.True(t, q.tail.plain())

			// Reads through compressed nodes decode correctly and leave
			// the node compressed.
			v, ok := q.Index(n / 2)
			require.True(t, ok)
			require.Equal(t, fmt.Sprintf("%s%d", payload, n/2), string(v.Bytes))
			require.Equal(t, 2, plainNodes(q))

			// Full decode equality.
			got := collect(q)
			require.Len(t, got, n)
			for i, s := range got {
				require.Equal(t, fmt.Sprintf("%s%d", payload, i), s)
			}
			require.Equal(t, 2, plainNodes(q))
		})
	}
}

func TestPopsRollCompressionWindow(t *testing.T) {
	q := New(8, 1)
	payload := strings.Repeat("abcdef-", 30)
	const n = 64
	for i := 0; i < n; i++ {
		q.PushTail([]byte(fmt.Sprintf("%s%d", payload, i)))
	}

	// Drain from the head; the window must follow the shrinking chain
	// and every value must come back intact and in order.
	for i := 0; i < n; i++ {
		v, ok := q.PopHead()
		require.True(t, ok, "pop %d", i)
		require.Equal(t, fmt.Sprintf("%s%d", payload, i), string(v.Bytes))
		require.True(t, q.head == nil || q.head.plain())
		require.True(t, q.tail == nil || q.tail.plain())
	}
	require.Equal(t, 0, q.Len())
	require.Equal(t, 0, q.NodeCount())
}

func TestDepthZeroNeverCompresses(t *testing.T) {
	q := New(4, 0)
	payload := strings.Repeat("zzzz", 200)
	for i := 0; i < 40; i++ {
		q.PushTail([]byte(payload))
	}
	require.Equal(t, q.NodeCount(), plainNodes(q))
}

func TestIncompressibleNodesStayPlain(t *testing.T) {
	q := New(8, 1)
	// High-entropy payloads defeat the codec; nodes must quietly stay
	// plain and reads keep working.
	x := uint32(12345)
	rnd := func(n int) []byte {
		b := make([]byte, n)
		for i := range b {
			x = x*1664525 + 1013904223
			b[i] = byte(x >> 24)
		}
		return b
	}
	var want [][]byte
	for i := 0; i < 64; i++ {
		p := rnd(100)
		want = append(want, p)
		q.PushTail(p)
	}

	i := 0
	q.Each(func(v zlist.Value) bool {
		require.Equal(t, want[i], v.Bytes)
		i++
		return true
	})
	require.Equal(t, 64, i)
}

func TestEachEarlyStop(t *testing.T) {
	q := New(4, 1)
	for i := 0; i < 20; i++ {
		q.PushTail([]byte(strings.Repeat("e", 100) + fmt.Sprint(i)))
	}
	count := 0
	q.Each(func(zlist.Value) bool {
		count++
		return count < 5
	})
	require.Equal(t, 5, count)

	// A full walk afterwards still sees every entry.
	require.Len(t, collect(q), 20)
}

func TestDetachedValuesSurviveMutation(t *testing.T) {
	q := New(2, 0)
	q.PushTail([]byte("first"))
	v, ok := q.Index(0)
	require.True(t, ok)

	// Mutating the list must not corrupt the previously returned value.
	for i := 0; i < 10; i++ {
		q.PushTail([]byte("more"))
	}
	require.Equal(t, "first", string(v.Bytes))
}
