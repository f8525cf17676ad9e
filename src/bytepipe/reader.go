package bytepipe

// Reader is the consumer half of a Pipe.
type Reader struct {
	p *Pipe
}

// Read fires fn with a view of everything buffered as soon as there are
// unexamined bytes or the writer has completed. fn runs immediately when the
// condition already holds, otherwise it is parked and fired by the producer.
// At most one continuation may be parked at a time; the buffer it receives
// is valid until the next call to AdvanceTo.
//
// A read that observes completion with an empty buffer fires with
// Completed=true and an empty buffer; a read that observes completion with
// bytes still buffered fires with both, and the caller must drain the
// buffer before honoring the completion.
func (r Reader) Read(fn func(ReadResult)) {
	p := r.p
	if p.readerDone {
		fn(ReadResult{Completed: true})
		return
	}
	if p.flushed > p.examined || p.writerDone {
		fn(ReadResult{Buffer: p.snapshot(), Completed: p.writerDone})
		return
	}
	if p.onReadable != nil {
		panic("bytepipe: Read already pending")
	}
	p.onReadable = fn
}

// AdvanceTo releases the first consumed bytes of the last-read buffer and
// records that the reader looked at the first examined bytes. consumed must
// be at most examined; both are offsets into the buffer passed to the last
// Read. A parked Read does not fire until bytes past the examined mark
// arrive or the writer completes.
func (r Reader) AdvanceTo(consumed, examined int) {
	p := r.p
	if consumed < 0 || examined < consumed {
		panic("bytepipe: AdvanceTo offsets out of order")
	}
	if p.readerDone {
		return
	}
	if consumed > p.length || examined > p.length {
		panic("bytepipe: AdvanceTo past buffered data")
	}
	base := p.consumed
	rem := consumed
	for rem > 0 {
		s := p.segs[0]
		if len(s) <= rem {
			rem -= len(s)
			p.segs[0] = nil
			p.segs = p.segs[1:]
		} else {
			p.segs[0] = s[rem:]
			rem = 0
		}
	}
	p.length -= consumed
	p.consumed = base + int64(consumed)
	if e := base + int64(examined); e > p.examined {
		p.examined = e
	}
	if p.examined < p.consumed {
		p.examined = p.consumed
	}
	p.wakeWriter()
}

// Complete signals that the reader is done with the pipe. Buffered bytes are
// dropped and parked continuations fire with Completed set. Completing more
// than once is a no-op.
func (r Reader) Complete() {
	p := r.p
	if p.readerDone {
		return
	}
	p.readerDone = true
	p.segs = nil
	p.length = 0
	p.consumed = p.flushed
	if p.examined < p.consumed {
		p.examined = p.consumed
	}
	p.wakeWriter()
	p.wakeReader()
}
