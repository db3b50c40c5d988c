// Package cinnabarkv is the core in-memory container library for a
// key/value database.
//
// The module is a family of compact, cache-friendly containers:
//
//   - dstring: a length-tracked, append-efficient byte buffer with
//     explicit free-space accounting.
//   - dlist: a doubly-linked list with per-list dup/free/match hooks.
//   - iset: a sorted, duplicate-free integer set stored as a single
//     blob with an adaptive element width.
//   - zlist: a packed dual-ended sequence that stores small strings and
//     integers in one allocation with variable-length entry headers.
//   - htab: a chained hash table whose growth is amortized across
//     operations by incremental rehashing.
//   - qlist: a linked list of packed-list nodes with transparent node
//     compression, for long sequences.
//
// The packed blobs (zlist, iset) are bit-compatible with the Redis 3.0
// on-wire encodings; surrounding layers may persist and exchange them
// directly.
//
// All containers are single-threaded: no operation locks, suspends, or
// yields, and instances must not be shared across goroutines without
// external synchronization.
package cinnabarkv
