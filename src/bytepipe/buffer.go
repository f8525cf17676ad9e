package bytepipe

import (
	"bytes"
)

// Buffer is an immutable view of the unread bytes in a pipe. The bytes may
// span multiple non-contiguous segments; no copy is made until the caller
// asks for one.
type Buffer struct {
	segs [][]byte
	n    int
}

func (b Buffer) Len() int { return b.n }

func (b Buffer) IsEmpty() bool { return b.n == 0 }

// Segments returns the underlying byte segments in stream order. The
// segments are valid until the reader advances.
func (b Buffer) Segments() [][]byte { return b.segs }

// IndexByte returns the offset of the first occurrence of c at or after
// from, or -1 if c does not occur.
func (b Buffer) IndexByte(c byte, from int) int {
	if from < 0 {
		from = 0
	}
	off := 0
	for _, s := range b.segs {
		if from >= off+len(s) {
			off += len(s)
			continue
		}
		start := 0
		if from > off {
			start = from - off
		}
		if i := bytes.IndexByte(s[start:], c); i >= 0 {
			return off + start + i
		}
		off += len(s)
	}
	return -1
}

// CopyRange copies the bytes in [i, j) into a fresh slice.
func (b Buffer) CopyRange(i, j int) []byte {
	if i < 0 || j < i || j > b.n {
		panic("bytepipe: CopyRange out of bounds")
	}
	out := make([]byte, j-i)
	pos, off, n := i, 0, 0
	for _, s := range b.segs {
		end := off + len(s)
		if pos >= end {
			off = end
			continue
		}
		m := copy(out[n:], s[pos-off:])
		n += m
		pos += m
		off = end
		if n == len(out) {
			break
		}
	}
	return out
}
