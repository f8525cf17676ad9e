package nulproxy

import (
	"context"
	"net"
	"sync/atomic"

	"go.nulproxy.org/nulproxy/src/eventloop"
)

// Session is a paired inbound/upstream connection. Messages arriving on
// either socket are framed and handed to the Observer on the event loop's
// worker; the Observer may push messages back into either side with
// SendLocal and SendRemote.
//
// A Session is created by a Proxy and torn down by the first relay task that
// observes EOF or an error on either socket, or by an explicit call to
// Dispose.
type Session struct {
	loop *eventloop.Loop
	obs  Observer
	bg   context.Context

	local  *pipedConn
	remote *pipedConn
	done   chan struct{}

	userToken atomic.Value
	disposed  atomic.Bool
	// tornDown is set by teardown itself, so on the worker it is ordered
	// with message delivery by the loop's FIFO rather than by when Dispose
	// happened to be called.
	tornDown  atomic.Bool
	onDispose func(*Session)
}

func newSession(loop *eventloop.Loop, obs Observer, bg context.Context, localConn, remoteConn net.Conn, onDispose func(*Session)) *Session {
	s := &Session{
		loop:      loop,
		obs:       obs,
		bg:        bg,
		done:      make(chan struct{}),
		onDispose: onDispose,
	}
	s.local = newPipedConn(s, Local, localConn)
	s.remote = newPipedConn(s, Remote, remoteConn)
	// if the loop dies without the proxy tearing sessions down first, the
	// sockets still get closed
	go func() {
		select {
		case <-loop.Context().Done():
			s.Dispose()
		case <-s.done:
		}
	}()
	return s
}

// start runs on the worker. It emits the connected state change and then
// starts the cooperative relay tasks, so no message can be observed before
// the connected event. The framer and sender park on their pipes first; the
// receivers then kick off the socket reads.
func (s *Session) start() {
	if s.disposed.Load() {
		return
	}
	s.obs.OnStateChange(s, true)
	for _, c := range []*pipedConn{s.local, s.remote} {
		c.frameLoop()
		c.sendLoop()
	}
	s.local.recvLoop()
	s.remote.recvLoop()
}

// deliver hands a framed message to the observer. It runs on the worker,
// called from the framer, so the check against teardown is ordered by the
// loop's FIFO: frames delivered before teardown runs are never dropped, and
// nothing is delivered after the disconnected event.
func (s *Session) deliver(dir Direction, msg string) {
	if s.tornDown.Load() {
		return
	}
	switch dir {
	case Local:
		s.obs.OnLocalMessage(s, msg)
	case Remote:
		s.obs.OnRemoteMessage(s, msg)
	}
}

// SendLocal sends msg to the inbound peer. A NUL terminator is appended.
// Send methods are callable only from the worker; calls from any other
// goroutine fail with ErrWrongThread and should be routed through
// Loop.Schedule instead.
func (s *Session) SendLocal(msg string) error {
	return s.send(s.local, []byte(msg))
}

// SendLocalBytes is SendLocal for raw bytes.
func (s *Session) SendLocalBytes(payload []byte) error {
	return s.send(s.local, payload)
}

// SendRemote sends msg to the upstream peer. A NUL terminator is appended.
func (s *Session) SendRemote(msg string) error {
	return s.send(s.remote, []byte(msg))
}

// SendRemoteBytes is SendRemote for raw bytes.
func (s *Session) SendRemoteBytes(payload []byte) error {
	return s.send(s.remote, payload)
}

func (s *Session) send(c *pipedConn, payload []byte) error {
	if !s.loop.IsWorker() {
		return ErrWrongThread
	}
	if s.tornDown.Load() {
		return ErrClosed
	}
	return c.sendMessage(payload)
}

// SetUserToken attaches opaque embedder state to the session.
func (s *Session) SetUserToken(v any) {
	s.userToken.Store(tokenBox{v})
}

// UserToken returns the value set by SetUserToken, or nil.
func (s *Session) UserToken() any {
	if b, ok := s.userToken.Load().(tokenBox); ok {
		return b.v
	}
	return nil
}

type tokenBox struct{ v any }

// LocalAddr returns the address of the inbound peer.
func (s *Session) LocalAddr() net.Addr {
	return s.local.conn.RemoteAddr()
}

// RemoteAddr returns the address of the upstream peer.
func (s *Session) RemoteAddr() net.Addr {
	return s.remote.conn.RemoteAddr()
}

// Stats are cumulative byte counts through a session, per side and flow.
// Rx counts bytes read off that side's socket, Tx bytes written to it.
type Stats struct {
	LocalRx, LocalTx   uint64
	RemoteRx, RemoteTx uint64
}

func (s *Session) Stats() Stats {
	lrx, ltx := s.local.mtr.Totals()
	rrx, rtx := s.remote.mtr.Totals()
	return Stats{LocalRx: lrx, LocalTx: ltx, RemoteRx: rrx, RemoteTx: rtx}
}

// IsDisposed reports whether teardown has begun.
func (s *Session) IsDisposed() bool {
	return s.disposed.Load()
}

// Dispose tears the session down: one disconnected state change, then both
// sockets shut down and all four pipe halves completed. The first caller
// wins; later calls are no-ops. Teardown runs on the worker when possible;
// if the loop is already shutting down it runs on the calling goroutine so
// the sockets are never leaked.
func (s *Session) Dispose() {
	if !s.disposed.CompareAndSwap(false, true) {
		return
	}
	if s.loop.IsWorker() {
		s.teardown()
		return
	}
	if err := s.loop.Schedule(s.teardown); err != nil {
		s.teardown()
	}
}

func (s *Session) teardown() {
	s.tornDown.Store(true)
	s.obs.OnStateChange(s, false)
	// the worker owns the pipes; the foreign-thread fallback only closes
	// the sockets and lets the I/O goroutines unwind
	completePipes := s.loop.IsWorker()
	s.local.shutdown(completePipes)
	s.remote.shutdown(completePipes)
	close(s.done)
	if s.onDispose != nil {
		s.onDispose(s)
	}
}
