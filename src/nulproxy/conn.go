package nulproxy

import (
	"io"
	"net"

	"go.brendoncarroll.net/stdctx/logctx"

	"go.nulproxy.org/nulproxy/src/bytepipe"
)

// readChunk is the minimum writable region requested per socket read.
const readChunk = 4096

// halfCloser is the part of *net.TCPConn used to shut down each direction
// before the socket is closed. Connections that cannot half-close (net.Pipe
// in tests) skip the shutdown step.
type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// pipedConn is one socket of a session plus its two pipes. Three cooperative
// tasks drive it on the event loop's worker: socket to recv pipe, recv pipe
// to the framer, send pipe to socket. Only the blocking socket syscalls run
// off the worker, each on its own goroutine which posts its completion back
// through the loop; every pipe operation and every observer call happens on
// the worker, so the pipes need no locking. Each task triggers session
// disposal when its side of the stream ends.
type pipedConn struct {
	sess *Session
	dir  Direction
	conn net.Conn
	recv *bytepipe.Pipe
	send *bytepipe.Pipe
	mtr  meter
}

func newPipedConn(sess *Session, dir Direction, conn net.Conn) *pipedConn {
	return &pipedConn{
		sess: sess,
		dir:  dir,
		conn: conn,
		recv: bytepipe.New(),
		send: bytepipe.New(),
	}
}

// recvLoop stages a writable region, then hands the blocking socket read to
// its own goroutine. Runs on the worker.
func (c *pipedConn) recvLoop() {
	buf := c.recv.Writer().GetWritableMemory(readChunk)
	go func() {
		n, err := c.conn.Read(buf)
		if serr := c.sess.loop.Schedule(func() { c.recvDone(n, err) }); serr != nil {
			c.sess.Dispose()
		}
	}()
}

// recvDone flushes what the socket read into the recv pipe. On EOF, a socket
// error, or the framer completing the pipe it breaks and triggers session
// disposal. Runs on the worker.
func (c *pipedConn) recvDone(n int, err error) {
	w := c.recv.Writer()
	if n > 0 {
		w.Advance(n)
		c.mtr.Rx(n)
		res := w.Flush()
		if res.Completed {
			c.sess.Dispose()
			return
		}
		if err == nil && res.Paused {
			w.AwaitWritable(func(res bytepipe.FlushResult) {
				if res.Completed {
					c.sess.Dispose()
					return
				}
				c.recvLoop()
			})
			return
		}
	}
	if err != nil {
		if err != io.EOF && !c.sess.tornDown.Load() {
			logctx.Errorf(c.sess.bg, "nulproxy: %v: socket read: %v", c.dir, err)
		}
		w.Complete()
		c.sess.Dispose()
		return
	}
	c.recvLoop()
}

// frameLoop cuts the recv pipe into NUL-terminated messages and hands each
// one to the session's observer, in place, on the worker. A partial trailing
// fragment is held in the pipe until more bytes arrive; if the stream ends
// first, the fragment is never delivered. Completion is honored only after
// every complete frame in the final buffer has been delivered.
func (c *pipedConn) frameLoop() {
	r := c.recv.Reader()
	r.Read(func(res bytepipe.ReadResult) {
		buf := res.Buffer
		consumed := 0
		for {
			idx := buf.IndexByte(0, consumed)
			if idx < 0 {
				break
			}
			msg := string(buf.CopyRange(consumed, idx))
			consumed = idx + 1
			c.sess.deliver(c.dir, msg)
		}
		r.AdvanceTo(consumed, buf.Len())
		if res.Completed {
			r.Complete()
			c.sess.Dispose()
			return
		}
		c.frameLoop()
	})
}

// sendLoop parks on the send pipe; when bytes arrive it hands the blocking
// socket write to its own goroutine. The buffer is not advanced until the
// write completes, so the segments stay valid. Runs on the worker.
func (c *pipedConn) sendLoop() {
	r := c.send.Reader()
	r.Read(func(res bytepipe.ReadResult) {
		if res.Buffer.IsEmpty() {
			if res.Completed {
				r.Complete()
				c.sess.Dispose()
			}
			return
		}
		segs := res.Buffer.Segments()
		go func() {
			written := 0
			var err error
			for _, seg := range segs {
				var n int
				n, err = writeFull(c.conn, seg)
				written += n
				if err != nil {
					break
				}
			}
			if serr := c.sess.loop.Schedule(func() { c.sendDone(written, err, res.Completed) }); serr != nil {
				c.sess.Dispose()
			}
		}()
	})
}

// sendDone advances past what reached the socket. Runs on the worker.
func (c *pipedConn) sendDone(written int, err error, completed bool) {
	r := c.send.Reader()
	if written > 0 {
		c.mtr.Tx(written)
		r.AdvanceTo(written, written)
	}
	if err != nil {
		if !c.sess.tornDown.Load() {
			logctx.Errorf(c.sess.bg, "nulproxy: %v: socket write: %v", c.dir, err)
		}
		c.sess.Dispose()
		return
	}
	if completed {
		r.Complete()
		c.sess.Dispose()
		return
	}
	c.sendLoop()
}

// sendMessage appends payload plus a NUL terminator to the send pipe.
// Callable only from the worker.
func (c *pipedConn) sendMessage(payload []byte) error {
	w := c.send.Writer()
	buf := w.GetWritableMemory(len(payload) + 1)
	copy(buf, payload)
	buf[len(payload)] = 0
	w.Advance(len(payload) + 1)
	res := w.Flush()
	if res.Completed {
		return ErrClosed
	}
	return nil
}

// shutdown closes the socket. Pipes are completed only when called on the
// worker, which owns them; the foreign-thread fallback relies on the socket
// close to unwind the in-flight I/O goroutines.
func (c *pipedConn) shutdown(completePipes bool) {
	if hc, ok := c.conn.(halfCloser); ok {
		hc.CloseRead()
		hc.CloseWrite()
	}
	if completePipes {
		c.recv.Writer().Complete()
		c.recv.Reader().Complete()
		c.send.Writer().Complete()
		c.send.Reader().Complete()
	}
	c.conn.Close()
}

func writeFull(conn net.Conn, b []byte) (int, error) {
	n := 0
	for n < len(b) {
		m, err := conn.Write(b[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
