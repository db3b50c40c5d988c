package dstring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAndAccessors(t *testing.T) {
	s := New([]byte("hello"))
	require.Equal(t, 5, s.Len())
	require.Equal(t, 0, s.Avail())
	require.Equal(t, 6, s.AllocSize())
	require.Equal(t, "hello", s.String())
	require.Equal(t, byte(0), s.buf[s.Len()])

	e := Empty()
	require.Equal(t, 0, e.Len())
	require.Equal(t, 1, e.AllocSize())
}

func TestAppendGrowthPolicy(t *testing.T) {
	s := Empty()
	s.AppendString("abc")
	// Below MaxPrealloc the buffer doubles the required length.
	require.Equal(t, 3, s.Len())
	require.Equal(t, 3, s.Avail())
	require.Equal(t, 7, s.AllocSize())

	s.AppendString("de")
	// Fits in the reserve, no reallocation.
	require.Equal(t, 5, s.Len())
	require.Equal(t, 1, s.Avail())
	require.Equal(t, "abcde", s.String())
}

func TestMakeRoomLinearBeyondPrealloc(t *testing.T) {
	s := Empty()
	s.GrowZero(MaxPrealloc)
	// At the cap the doubling rule no longer applies.
	require.Equal(t, MaxPrealloc, s.Len())
	require.Equal(t, 2*MaxPrealloc+1, s.AllocSize())

	s.ShrinkToFit()
	s.MakeRoom(16)
	// Past the cap, growth is +MaxPrealloc, not doubling.
	require.Equal(t, MaxPrealloc+16+MaxPrealloc+1, s.AllocSize())
	require.GreaterOrEqual(t, s.Avail(), 16)
}

func TestIncrLenAfterMakeRoom(t *testing.T) {
	s := New([]byte("ab"))
	s.MakeRoom(3)
	copy(s.buf[s.Len():], "cde")
	s.IncrLen(3)
	require.Equal(t, "abcde", s.String())
	require.Equal(t, byte(0), s.buf[s.Len()])

	s.IncrLen(-4)
	require.Equal(t, "a", s.String())

	require.Panics(t, func() { s.IncrLen(-2) })
}

func TestClearKeepsCapacity(t *testing.T) {
	s := New([]byte("payload"))
	alloc := s.AllocSize()
	s.Clear()
	require.Equal(t, 0, s.Len())
	require.Equal(t, alloc, s.AllocSize())
}

func TestShrinkToFit(t *testing.T) {
	s := Empty()
	s.AppendString("xyz")
	require.Greater(t, s.Avail(), 0)
	s.ShrinkToFit()
	require.Equal(t, 0, s.Avail())
	require.Equal(t, "xyz", s.String())
}

func TestGrowZero(t *testing.T) {
	s := New([]byte("ab"))
	s.GrowZero(5)
	require.Equal(t, 5, s.Len())
	require.Equal(t, []byte{'a', 'b', 0, 0, 0}, s.Bytes())

	s.GrowZero(2) // shorter target is a no-op
	require.Equal(t, 5, s.Len())
}

func TestTrim(t *testing.T) {
	tests := []struct {
		in     string
		cutset string
		want   string
	}{
		{"xxhelloxx", "x", "hello"},
		{"  spaced  ", " ", "spaced"},
		{"abc", "xyz", "abc"},
		{"aaaa", "a", ""},
		{"", "a", ""},
		{"-!- core -!-", "-! ", "core"},
	}
	for _, tt := range tests {
		s := New([]byte(tt.in))
		s.Trim(tt.cutset)
		require.Equal(t, tt.want, s.String(), "Trim(%q, %q)", tt.in, tt.cutset)
		require.Equal(t, byte(0), s.buf[s.Len()])
	}
}

func TestRange(t *testing.T) {
	tests := []struct {
		start, end int
		want       string
	}{
		{0, -1, "hello"},
		{1, -1, "ello"},
		{1, 3, "ell"},
		{-3, -1, "llo"},
		{0, 0, "h"},
		{4, 1, ""},
		{7, 9, ""},
		{0, 100, "hello"},
	}
	for _, tt := range tests {
		s := New([]byte("hello"))
		s.Range(tt.start, tt.end)
		require.Equal(t, tt.want, s.String(), "Range(%d, %d)", tt.start, tt.end)
	}
}

func TestCompare(t *testing.T) {
	require.Equal(t, 0, New([]byte("abc")).Compare(New([]byte("abc"))))
	require.Equal(t, -1, New([]byte("abc")).Compare(New([]byte("abd"))))
	require.Equal(t, 1, New([]byte("abd")).Compare(New([]byte("abc"))))
	require.Equal(t, -1, New([]byte("ab")).Compare(New([]byte("abc"))))
	require.Equal(t, 1, New([]byte("abc")).Compare(New([]byte("ab"))))
}

func TestCaseMapping(t *testing.T) {
	s := New([]byte("Hello, World! 123"))
	s.ToLower()
	require.Equal(t, "hello, world! 123", s.String())
	s.ToUpper()
	require.Equal(t, "HELLO, WORLD! 123", s.String())
}

func TestMapChars(t *testing.T) {
	s := New([]byte("hello"))
	s.MapChars("ho", "01")
	require.Equal(t, "0ell1", s.String())

	require.Panics(t, func() { s.MapChars("ab", "x") })
}

func TestCopyBytes(t *testing.T) {
	s := New([]byte("short"))
	s.CopyBytes([]byte("a considerably longer payload"))
	require.Equal(t, "a considerably longer payload", s.String())

	s.CopyBytes([]byte("tiny"))
	require.Equal(t, "tiny", s.String())
	require.Equal(t, byte(0), s.buf[s.Len()])
}

func TestDupIsIndependent(t *testing.T) {
	s := New([]byte("orig"))
	d := s.Dup()
	d.AppendString("inal")
	require.Equal(t, "orig", s.String())
	require.Equal(t, "original", d.String())
}

func TestJoin(t *testing.T) {
	parts := []*DString{New([]byte("a")), New([]byte("b")), New([]byte("c"))}
	require.Equal(t, "a,b,c", Join(parts, []byte(",")).String())
	require.Equal(t, "", Join(nil, []byte(",")).String())
}

func TestSplitLen(t *testing.T) {
	got := SplitLen([]byte("a,b,,c"), []byte(","))
	require.Len(t, got, 4)
	require.Equal(t, "a", got[0].String())
	require.Equal(t, "b", got[1].String())
	require.Equal(t, "", got[2].String())
	require.Equal(t, "c", got[3].String())

	require.Nil(t, SplitLen([]byte("abc"), nil))

	got = SplitLen([]byte("no-sep"), []byte("|"))
	require.Len(t, got, 1)
	require.Equal(t, "no-sep", got[0].String())
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line string
		want []string
		ok   bool
	}{
		{`set key value`, []string{"set", "key", "value"}, true},
		{`set "a value" x`, []string{"set", "a value", "x"}, true},
		{`get 'single quoted'`, []string{"get", "single quoted"}, true},
		{`echo "tab\there"`, []string{"echo", "tab\there"}, true},
		{`echo "\x41\x42"`, []string{"echo", "AB"}, true},
		{`'it\'s'`, []string{"it's"}, true},
		{`   `, nil, true},
		{``, nil, true},
		{`bad "unterminated`, nil, false},
		{`bad 'unterminated`, nil, false},
		{`bad "quote"trailer`, nil, false},
	}
	for _, tt := range tests {
		args, ok := SplitArgs(tt.line)
		require.Equal(t, tt.ok, ok, "SplitArgs(%q)", tt.line)
		if !ok {
			continue
		}
		var got []string
		for _, a := range args {
			got = append(got, a.String())
		}
		require.Equal(t, tt.want, got, "SplitArgs(%q)", tt.line)
	}
}

func TestAppendFormat(t *testing.T) {
	s := New([]byte("n="))
	s.AppendFormat("%d/%s", 42, "x")
	require.Equal(t, "n=42/x", s.String())
}

func TestAppendRepr(t *testing.T) {
	s := Empty()
	s.AppendRepr([]byte("a\"b\\c\n\x01"))
	require.Equal(t, `"a\"b\\c\n\x01"`, s.String())
}

func TestRelease(t *testing.T) {
	s := New([]byte("x"))
	s.Release()
	require.Equal(t, 0, s.Len())
	require.Nil(t, s.buf)
}
