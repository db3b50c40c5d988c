// Package qlist implements a space-efficient list for long sequences: a
// doubly-linked chain of packed-list nodes.
//
// Short lists stay in a single packed node and keep the packed list's
// cache behavior; long lists spread across nodes so inserts never shift
// more than one node's bytes. Nodes deeper than the configured depth
// from both ends are held compressed and are decompressed transparently
// when read through. A node that does not shrink under its codec is kept
// plain.
package qlist

import (
	"github.com/cinnabarkv/cinnabarkv/internal/compression"
	"github.com/cinnabarkv/cinnabarkv/internal/logging"
	"github.com/cinnabarkv/cinnabarkv/zlist"
)

const (
	// DefaultFill bounds entries per node.
	DefaultFill = 128

	// nodeSizeLimit bounds a node's blob regardless of fill.
	nodeSizeLimit = 8192
)

// Codec selects the node compression algorithm.
type Codec uint8

const (
	// CodecSnappy is the default node codec.
	CodecSnappy Codec = iota
	// CodecLZ4 trades a little ratio for speed.
	CodecLZ4
	// CodecZstd trades speed for ratio.
	CodecZstd
)

func (c Codec) blockType() compression.Type {
	switch c {
	case CodecLZ4:
		return compression.LZ4
	case CodecZstd:
		return compression.Zstd
	default:
		return compression.Snappy
	}
}

// node is one chain link: either a plain packed list or its compressed
// frame, never both.
type node struct {
	prev, next *node
	zl         *zlist.ZList
	compressed []byte
	count      int
}

func (n *node) plain() bool { return n.zl != nil }

// QList is a compressed list of packed-list nodes. Create instances with
// New.
type QList struct {
	head, tail *node
	count      int // total entries
	nodes      int
	fill       int
	depth      int // nodes kept plain at each end; 0 disables compression
	codec      Codec
	logger     logging.Logger
}

// New creates an empty list. fill bounds entries per node (DefaultFill
// when <= 0); depth is the number of nodes kept uncompressed at each end,
// with 0 disabling node compression entirely.
func New(fill, depth int) *QList {
	if fill <= 0 {
		fill = DefaultFill
	}
	return &QList{fill: fill, depth: depth, logger: logging.Discard}
}

// SetCodec selects the compression codec for interior nodes.
func (q *QList) SetCodec(c Codec) { q.codec = c }

// SetLogger routes compression diagnostics to l.
func (q *QList) SetLogger(l logging.Logger) {
	if l == nil {
		l = logging.Discard
	}
	q.logger = l
}

// Len returns the total number of entries. O(1).
func (q *QList) Len() int { return q.count }

// NodeCount returns the number of chain nodes. O(1).
func (q *QList) NodeCount() int { return q.nodes }

// decompress restores a node's packed list in place.
func (q *QList) decompress(n *node) {
	if n.plain() {
		return
	}
	raw, err := compression.DecodeBlock(n.compressed)
	if err != nil {
		// A node that cannot decode is unrecoverable state corruption.
		panic("qlist: corrupt compressed node: " + err.Error())
	}
	n.zl = zlist.FromBytes(raw)
	n.compressed = nil
}

// compress frames a node's packed list with the configured codec. Nodes
// that do not shrink stay plain.
func (q *QList) compress(n *node) {
	if !n.plain() {
		return
	}
	block, applied, err := compression.EncodeBlock(q.codec.blockType(), n.zl.Bytes())
	if err != nil {
		q.logger.Warnf(logging.NSQList+"compress failed, keeping node plain: %v", err)
		return
	}
	if !applied {
		return
	}
	n.compressed = block
	n.zl = nil
}

// adjustCompression re-establishes the depth rule: the first and last
// depth nodes plain, everything between compressed. A push or pop moves
// each window by at most one node, so decompressing the windows and
// compressing the two nodes just past them keeps the whole chain
// conforming without walking it.
func (q *QList) adjustCompression() {
	if q.depth == 0 {
		return
	}

	f, b := q.head, q.tail
	for i := 0; i < q.depth; i++ {
		if f == nil || b == nil {
			return
		}
		q.decompress(f)
		q.decompress(b)
		f, b = f.next, b.prev
	}
	if q.nodes <= 2*q.depth {
		return
	}
	q.compress(f)
	q.compress(b)
}

// nodeFull reports whether another entry may not be added to n.
func (q *QList) nodeFull(n *node) bool {
	return n.count >= q.fill || n.zl.BlobLen() >= nodeSizeLimit
}

// PushHead prepends an entry.
func (q *QList) PushHead(b []byte) {
	n := q.head
	if n != nil {
		q.decompress(n)
	}
	if n == nil || q.nodeFull(n) {
		n = &node{zl: zlist.New(), next: q.head}
		if q.head != nil {
			q.head.prev = n
		} else {
			q.tail = n
		}
		q.head = n
		q.nodes++
	}
	n.zl.Push(zlist.Head, b)
	n.count++
	q.count++
	q.adjustCompression()
}

// PushTail appends an entry.
func (q *QList) PushTail(b []byte) {
	n := q.tail
	if n != nil {
		q.decompress(n)
	}
	if n == nil || q.nodeFull(n) {
		n = &node{zl: zlist.New(), prev: q.tail}
		if q.tail != nil {
			q.tail.next = n
		} else {
			q.head = n
		}
		q.tail = n
		q.nodes++
	}
	n.zl.Push(zlist.Tail, b)
	n.count++
	q.count++
	q.adjustCompression()
}

// removeNode unlinks an emptied node.
func (q *QList) removeNode(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		q.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		q.tail = n.prev
	}
	n.prev, n.next, n.zl, n.compressed = nil, nil, nil, nil
	q.nodes--
}

// pop removes and returns the entry at the given end.
func (q *QList) pop(where zlist.Where) (zlist.Value, bool) {
	var n *node
	if where == zlist.Head {
		n = q.head
	} else {
		n = q.tail
	}
	if n == nil {
		return zlist.Value{}, false
	}
	q.decompress(n)

	idx := 0
	if where == zlist.Tail {
		idx = -1
	}
	p, ok := n.zl.Index(idx)
	if !ok {
		return zlist.Value{}, false
	}
	v, _ := n.zl.Get(p)
	v = detach(v)

	n.zl.Delete(p)
	n.count--
	q.count--
	if n.count == 0 {
		q.removeNode(n)
	}
	q.adjustCompression()
	return v, true
}

// PopHead removes and returns the first entry.
func (q *QList) PopHead() (zlist.Value, bool) { return q.pop(zlist.Head) }

// PopTail removes and returns the last entry.
func (q *QList) PopTail() (zlist.Value, bool) { return q.pop(zlist.Tail) }

// Index returns the entry at position i, negative indices counting from
// the tail. O(nodes) plus one node decode.
func (q *QList) Index(i int) (zlist.Value, bool) {
	var n *node
	var within int

	if i >= 0 {
		if i >= q.count {
			return zlist.Value{}, false
		}
		n = q.head
		for n != nil && i >= n.count {
			i -= n.count
			n = n.next
		}
		within = i
	} else {
		i = (-i) - 1
		if i >= q.count {
			return zlist.Value{}, false
		}
		n = q.tail
		for n != nil && i >= n.count {
			i -= n.count
			n = n.prev
		}
		if n != nil {
			within = n.count - 1 - i
		}
	}
	if n == nil {
		return zlist.Value{}, false
	}

	wasPlain := n.plain()
	q.decompress(n)
	p, ok := n.zl.Index(within)
	if !ok {
		return zlist.Value{}, false
	}
	v, _ := n.zl.Get(p)
	v = detach(v)
	if !wasPlain {
		q.compress(n)
	}
	return v, true
}

// Each calls fn for every entry front to back until fn returns false.
// Interior nodes are decompressed for the visit and recompressed after.
func (q *QList) Each(fn func(v zlist.Value) bool) {
	for n := q.head; n != nil; n = n.next {
		wasPlain := n.plain()
		q.decompress(n)

		p, ok := n.zl.Index(0)
		for ok {
			v, _ := n.zl.Get(p)
			if !fn(detach(v)) {
				if !wasPlain {
					q.compress(n)
				}
				return
			}
			p, ok = n.zl.Next(p)
		}

		if !wasPlain {
			q.compress(n)
		}
	}
}

// detach copies a value out of its blob so the caller's view survives
// recompression and mutation.
func detach(v zlist.Value) zlist.Value {
	if !v.IsInt {
		v.Bytes = append([]byte(nil), v.Bytes...)
	}
	return v
}
