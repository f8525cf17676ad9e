// Package goid identifies the calling goroutine.
//
// The runtime does not expose goroutine ids on purpose; the event loop only
// needs them to answer "am I on the worker?", never to coordinate between
// goroutines. The id is parsed out of the stack trace header, which is the
// only stable place the runtime prints it.
package goid

import (
	"bytes"
	"runtime"
	"strconv"
)

var prefix = []byte("goroutine ")

// Current returns the id of the calling goroutine, as printed by the runtime
// in stack traces. It returns 0 if the header cannot be parsed.
func Current() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], prefix)
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
