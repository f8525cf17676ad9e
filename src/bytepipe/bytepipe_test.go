package bytepipe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	p := New()
	w, r := p.Writer(), p.Reader()

	buf := w.GetWritableMemory(5)
	copy(buf, "hello")
	w.Advance(5)
	res := w.Flush()
	require.False(t, res.Completed)
	require.False(t, res.Paused)

	var got ReadResult
	fired := false
	r.Read(func(rr ReadResult) { got = rr; fired = true })
	require.True(t, fired)
	require.False(t, got.Completed)
	require.Equal(t, 5, got.Buffer.Len())
	require.Equal(t, []byte("hello"), got.Buffer.CopyRange(0, 5))
	r.AdvanceTo(5, 5)
}

func TestReadParksUntilFlush(t *testing.T) {
	p := New()
	w, r := p.Writer(), p.Reader()

	var got ReadResult
	fired := false
	r.Read(func(rr ReadResult) { got = rr; fired = true })
	require.False(t, fired)

	buf := w.GetWritableMemory(1)
	buf[0] = 'x'
	w.Advance(1)
	w.Flush()
	require.True(t, fired)
	require.Equal(t, []byte("x"), got.Buffer.CopyRange(0, 1))
	r.AdvanceTo(1, 1)
}

func TestExaminedSuppressesWakeup(t *testing.T) {
	p := New()
	w, r := p.Writer(), p.Reader()

	buf := w.GetWritableMemory(3)
	copy(buf, "abc")
	w.Advance(3)
	w.Flush()

	fired := false
	r.Read(func(ReadResult) { fired = true })
	require.True(t, fired)
	// consume nothing, examine everything
	r.AdvanceTo(0, 3)

	// no new bytes: a fresh Read must park
	var got ReadResult
	fired = false
	r.Read(func(rr ReadResult) { got = rr; fired = true })
	require.False(t, fired)

	// one more byte: it fires with all four
	buf = w.GetWritableMemory(1)
	buf[0] = 'd'
	w.Advance(1)
	w.Flush()
	require.True(t, fired)
	require.Equal(t, []byte("abcd"), got.Buffer.CopyRange(0, 4))
	r.AdvanceTo(4, 4)
}

func TestCompletedWriterDrains(t *testing.T) {
	p := New()
	w, r := p.Writer(), p.Reader()

	buf := w.GetWritableMemory(4)
	copy(buf, "tail")
	w.Advance(4)
	w.Flush()
	w.Complete()

	// completion does not hide bytes flushed before it
	var got ReadResult
	r.Read(func(rr ReadResult) { got = rr })
	require.True(t, got.Completed)
	require.Equal(t, []byte("tail"), got.Buffer.CopyRange(0, 4))
	r.AdvanceTo(4, 4)

	r.Read(func(rr ReadResult) { got = rr })
	require.True(t, got.Completed)
	require.True(t, got.Buffer.IsEmpty())
}

func TestCompleteFiresParkedRead(t *testing.T) {
	p := New()
	w, r := p.Writer(), p.Reader()

	var got ReadResult
	fired := false
	r.Read(func(rr ReadResult) { got = rr; fired = true })
	require.False(t, fired)
	w.Complete()
	require.True(t, fired)
	require.True(t, got.Completed)
	require.True(t, got.Buffer.IsEmpty())
}

func TestBackpressure(t *testing.T) {
	p := NewWithLimits(8, 4)
	w, r := p.Writer(), p.Reader()

	buf := w.GetWritableMemory(10)
	copy(buf, "0123456789")
	w.Advance(10)
	res := w.Flush()
	require.True(t, res.Paused)

	flushed := false
	w.AwaitWritable(func(FlushResult) { flushed = true })
	require.False(t, flushed)

	var got ReadResult
	r.Read(func(rr ReadResult) { got = rr })
	require.Equal(t, 10, got.Buffer.Len())

	// drain to 9: still above the low-water mark
	r.AdvanceTo(1, 1)
	require.False(t, flushed)

	// drain to 4: at the low-water mark, the writer fires
	r.AdvanceTo(5, 5)
	require.True(t, flushed)
}

func TestReaderCompleteUnblocksWriter(t *testing.T) {
	p := NewWithLimits(8, 4)
	w, r := p.Writer(), p.Reader()

	buf := w.GetWritableMemory(16)
	copy(buf, "0123456789abcdef")
	w.Advance(16)
	res := w.Flush()
	require.True(t, res.Paused)

	var got FlushResult
	fired := false
	w.AwaitWritable(func(fr FlushResult) { got = fr; fired = true })
	require.False(t, fired)

	r.Complete()
	require.True(t, fired)
	require.True(t, got.Completed)

	// double complete is a no-op; further flushes report completion
	r.Complete()
	res = w.Flush()
	require.True(t, res.Completed)
}

func TestSegmentedBuffer(t *testing.T) {
	p := New()
	w, r := p.Writer(), p.Reader()

	for _, part := range []string{"seg1|", "seg2|", "seg3"} {
		buf := w.GetWritableMemory(len(part))
		copy(buf, part)
		w.Advance(len(part))
		w.Flush()
	}
	var got ReadResult
	r.Read(func(rr ReadResult) { got = rr })
	b := got.Buffer
	require.Equal(t, 14, b.Len())
	require.Equal(t, 4, b.IndexByte('|', 0))
	require.Equal(t, 9, b.IndexByte('|', 5))
	require.Equal(t, -1, b.IndexByte('|', 10))
	require.Equal(t, []byte("1|seg2|s"), b.CopyRange(3, 11))
	r.AdvanceTo(14, 14)
}
