// Package bytepipe implements a single-producer single-consumer byte pipe
// with flow control.
//
// A Pipe decouples a producing task from a consuming task driven by the same
// scheduler thread. The producer acquires writable memory, advances past
// what it filled, and flushes to make the bytes visible. The consumer reads
// a segmented view of everything buffered, then tells the pipe how much it
// consumed and how far it examined. A parked read does not fire again until
// bytes past the examined mark arrive, or the producer completes.
//
// Waiting is cooperative: Read and AwaitWritable park a continuation which
// the peer half fires. The pipe takes no locks; both halves must be driven
// from the same goroutine.
//
// When the amount of unread data exceeds the high-water mark, Flush reports
// Paused and the producer parks with AwaitWritable until the consumer drains
// to the low-water mark or below.
package bytepipe

const (
	DefaultHighWater = 1 << 16
	DefaultLowWater  = 1 << 15

	minAlloc = 4096
)

// Pipe is a bounded in-process byte stream with a writer half and a reader
// half. Each half must have exactly one owner, and all operations on both
// halves must come from the same goroutine.
type Pipe struct {
	highWater, lowWater int

	segs      [][]byte // flushed, unread; segs[0] may be partially consumed
	length    int      // total unread flushed bytes
	consumed  int64    // stream offset of the first unread byte
	flushed   int64    // stream offset past the last flushed byte
	examined  int64    // stream offset the reader has examined through
	staged    [][]byte // advanced but not yet flushed
	stagedLen int
	wbuf      []byte // outstanding writable region

	writerDone bool
	readerDone bool

	onReadable func(ReadResult)  // parked Read continuation
	onWritable func(FlushResult) // parked AwaitWritable continuation
}

func New() *Pipe {
	return NewWithLimits(DefaultHighWater, DefaultLowWater)
}

func NewWithLimits(highWater, lowWater int) *Pipe {
	if highWater < 1 || lowWater < 0 || lowWater > highWater {
		panic("bytepipe: invalid water marks")
	}
	return &Pipe{
		highWater: highWater,
		lowWater:  lowWater,
	}
}

// Writer returns the producer half of the pipe.
func (p *Pipe) Writer() Writer { return Writer{p} }

// Reader returns the consumer half of the pipe.
func (p *Pipe) Reader() Reader { return Reader{p} }

// wakeReader fires a parked Read if its condition now holds.
func (p *Pipe) wakeReader() {
	if p.onReadable == nil {
		return
	}
	if p.readerDone {
		fn := p.onReadable
		p.onReadable = nil
		fn(ReadResult{Completed: true})
		return
	}
	if p.flushed > p.examined || p.writerDone {
		fn := p.onReadable
		p.onReadable = nil
		fn(ReadResult{Buffer: p.snapshot(), Completed: p.writerDone})
	}
}

// wakeWriter fires a parked AwaitWritable if its condition now holds.
func (p *Pipe) wakeWriter() {
	if p.onWritable == nil {
		return
	}
	if p.length <= p.lowWater || p.readerDone {
		fn := p.onWritable
		p.onWritable = nil
		fn(FlushResult{Completed: p.readerDone})
	}
}

func (p *Pipe) snapshot() Buffer {
	segs := make([][]byte, len(p.segs))
	copy(segs, p.segs)
	return Buffer{segs: segs, n: p.length}
}

// FlushResult is returned by Writer.Flush and passed to AwaitWritable
// continuations.
type FlushResult struct {
	// Completed is set if the reader has completed the pipe; the writer
	// should stop producing.
	Completed bool
	// Paused is set when unread bytes exceed the high-water mark. The
	// producer should park itself with AwaitWritable before producing more.
	Paused bool
}

// ReadResult is passed to Read continuations.
type ReadResult struct {
	Buffer Buffer
	// Completed is set if the writer has completed the pipe. The buffer may
	// still hold bytes flushed before completion; the reader must drain them
	// before acting on Completed.
	Completed bool
}
