package nulproxy

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"go.brendoncarroll.net/stdctx/logctx"

	"go.nulproxy.org/nulproxy/src/eventloop"
)

// Backlog is the listen backlog the proxy wants. Go's net.Listen defers to
// the kernel's somaxconn; the constant documents the intent.
const Backlog = 128

// Params configure a Proxy.
type Params struct {
	// Observer receives all session events on the worker. Required.
	Observer Observer
	// TickPeriod is the longest the worker waits for work before calling
	// OnTick; a tick also follows every drain of queued work. Defaults to
	// eventloop.DefaultTickPeriod. Use Loop().SetTickPeriod(0) to spin.
	TickPeriod time.Duration
	// OnTick, if set, runs on the worker with the milliseconds elapsed since
	// the proxy was constructed.
	OnTick func(elapsedMS int64)
	// OnError, if set, receives panics recovered from embedder callbacks.
	OnError func(error)
	// Background is used for logging. Defaults to context.Background().
	Background context.Context
}

// Proxy accepts inbound TCP connections and pairs each with an upstream
// connection, relaying NUL-terminated messages through the Observer.
type Proxy struct {
	bg   context.Context
	obs  Observer
	loop *eventloop.Loop

	mu        sync.Mutex
	listeners []net.Listener
	sessions  map[*Session]struct{}

	disposeOnce sync.Once
}

func New(params Params) *Proxy {
	if params.Observer == nil {
		panic("nulproxy: Params.Observer is required")
	}
	bg := params.Background
	if bg == nil {
		bg = context.Background()
	}
	p := &Proxy{
		bg:       bg,
		obs:      params.Observer,
		sessions: make(map[*Session]struct{}),
	}
	p.loop = eventloop.New(eventloop.Params{
		TickPeriod: params.TickPeriod,
		OnTick:     params.OnTick,
		OnError:    params.OnError,
		Background: bg,
	})
	return p
}

// Loop exposes the event loop. Embedders use it to schedule work onto the
// worker; sends from foreign goroutines are routed through here.
func (p *Proxy) Loop() *eventloop.Loop {
	return p.loop
}

// Bind starts accepting on localAddr. Every accepted connection is paired
// with a new connection to remoteAddr. It returns the bound address, which
// differs from localAddr when an ephemeral port was requested.
func (p *Proxy) Bind(localAddr, remoteAddr string) (net.Addr, error) {
	var l net.Listener
	mk := func() (err error) {
		lc := net.ListenConfig{}
		l, err = lc.Listen(p.loop.Context(), "tcp", localAddr)
		return err
	}
	// the listener is created on the worker so it is consistently owned there
	if p.loop.IsWorker() {
		if err := mk(); err != nil {
			return nil, err
		}
	} else {
		errs := make(chan error, 1)
		if err := p.loop.Schedule(func() { errs <- mk() }); err != nil {
			return nil, err
		}
		if err := <-errs; err != nil {
			return nil, err
		}
	}
	p.mu.Lock()
	p.listeners = append(p.listeners, l)
	p.mu.Unlock()
	// cancellation closes the listening socket even if Dispose is bypassed
	go func() {
		<-p.loop.Context().Done()
		l.Close()
	}()
	go p.acceptLoop(l, remoteAddr)
	return l.Addr(), nil
}

// ListenAddrs returns the addresses the proxy is currently bound to.
func (p *Proxy) ListenAddrs() (ret []net.Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range p.listeners {
		ret = append(ret, l.Addr())
	}
	return ret
}

func (p *Proxy) acceptLoop(l net.Listener, remoteAddr string) {
	ctx := p.loop.Context()
	bo := backoff.Backoff{Min: 10 * time.Millisecond, Max: time.Second}
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logctx.Errorf(p.bg, "nulproxy: accept: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(bo.Duration()):
			}
			continue
		}
		bo.Reset()
		go p.startSession(ctx, conn, remoteAddr)
	}
}

// startSession dials upstream for an accepted connection and hands the pair
// to the worker. A failure here disposes only the nascent session.
func (p *Proxy) startSession(ctx context.Context, local net.Conn, remoteAddr string) {
	d := net.Dialer{}
	remote, err := d.DialContext(ctx, "tcp", remoteAddr)
	if err != nil {
		logctx.Errorf(p.bg, "nulproxy: dial %s: %v", remoteAddr, err)
		local.Close()
		return
	}
	s := newSession(p.loop, p.obs, p.bg, local, remote, p.dropSession)
	p.mu.Lock()
	p.sessions[s] = struct{}{}
	p.mu.Unlock()
	if err := p.loop.Schedule(s.start); err != nil {
		s.Dispose()
	}
}

func (p *Proxy) dropSession(s *Session) {
	p.mu.Lock()
	delete(p.sessions, s)
	p.mu.Unlock()
}

// Sessions returns a snapshot of the live sessions.
func (p *Proxy) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	ret := make([]*Session, 0, len(p.sessions))
	for s := range p.sessions {
		ret = append(ret, s)
	}
	return ret
}

// Dispose closes the listeners, tears down every live session, and stops the
// event loop. It is idempotent and safe to call from any goroutine,
// including the worker.
func (p *Proxy) Dispose() {
	p.disposeOnce.Do(func() {
		p.mu.Lock()
		ls := p.listeners
		p.listeners = nil
		p.mu.Unlock()
		for _, l := range ls {
			l.Close()
		}
		for _, s := range p.Sessions() {
			s.Dispose()
		}
		p.loop.Dispose()
	})
}
