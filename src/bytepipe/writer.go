package bytepipe

// Writer is the producer half of a Pipe.
type Writer struct {
	p *Pipe
}

// GetWritableMemory returns a writable region of at least min bytes. The
// caller must Advance past whatever it fills before the next Flush. The
// region stays valid until the next call to GetWritableMemory.
func (w Writer) GetWritableMemory(min int) []byte {
	p := w.p
	if min < 1 {
		min = 1
	}
	if len(p.wbuf) < min {
		n := minAlloc
		for n < min {
			n *= 2
		}
		p.wbuf = make([]byte, n)
	}
	return p.wbuf
}

// Advance marks the first n bytes of the writable region as produced. The
// bytes become visible to the reader at the next Flush.
func (w Writer) Advance(n int) {
	p := w.p
	if n < 0 || n > len(p.wbuf) {
		panic("bytepipe: Advance past writable region")
	}
	if n == 0 {
		return
	}
	p.staged = append(p.staged, p.wbuf[:n])
	p.stagedLen += n
	p.wbuf = p.wbuf[n:]
}

// Flush makes all advanced bytes visible to the reader, firing a parked
// Read. Paused is set when unread bytes now exceed the high-water mark; the
// producer should park itself with AwaitWritable before producing more.
func (w Writer) Flush() FlushResult {
	p := w.p
	if p.stagedLen > 0 && !p.readerDone {
		p.segs = append(p.segs, p.staged...)
		p.length += p.stagedLen
		p.flushed += int64(p.stagedLen)
	}
	p.staged = nil
	p.stagedLen = 0
	p.wakeReader()
	return FlushResult{
		Completed: p.readerDone,
		Paused:    p.length > p.highWater,
	}
}

// AwaitWritable parks fn until the reader drains to the low-water mark or
// below, or completes the pipe. fn runs immediately when neither condition requires
// waiting. At most one continuation may be parked at a time.
func (w Writer) AwaitWritable(fn func(FlushResult)) {
	p := w.p
	if p.length <= p.lowWater || p.readerDone {
		fn(FlushResult{Completed: p.readerDone})
		return
	}
	if p.onWritable != nil {
		panic("bytepipe: AwaitWritable already pending")
	}
	p.onWritable = fn
}

// Complete signals EOF to the reader. Bytes advanced but not flushed are
// discarded. Completing more than once is a no-op.
func (w Writer) Complete() {
	p := w.p
	p.staged = nil
	p.stagedLen = 0
	if !p.writerDone {
		p.writerDone = true
		p.wakeReader()
	}
}
