// Package eventloop runs a single worker goroutine which executes a FIFO of
// work items and emits a periodic tick.
//
// The worker is the execution context for every callback in the proxy:
// message observers, state-change observers, tick handlers. Work scheduled
// from the worker runs strictly after the current item, in the order
// scheduled; work scheduled from other goroutines interleaves arbitrarily
// with worker-posted items, and the combined stream is drained FIFO.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.brendoncarroll.net/stdctx/logctx"

	"go.nulproxy.org/nulproxy/src/internal/goid"
)

// ErrShuttingDown is returned by Schedule once Dispose has been called.
var ErrShuttingDown = errors.New("event loop is shutting down")

func IsErrShuttingDown(err error) bool {
	return errors.Is(err, ErrShuttingDown)
}

// DefaultTickPeriod is the longest the worker waits for work before firing a
// tick, unless configured otherwise.
const DefaultTickPeriod = time.Millisecond

const (
	stateRunning = iota
	stateDisposing
	stateDisposed
)

// Params configure a Loop.
type Params struct {
	// TickPeriod is the longest the worker waits for work before firing a
	// tick; a tick also follows every drain of queued work, so ticks can come
	// closer together under load. Zero means DefaultTickPeriod; use
	// SetTickPeriod(0) to spin.
	TickPeriod time.Duration
	// OnTick, if set, runs on the worker with the elapsed milliseconds since
	// the loop was constructed. Elapsed values are monotonically
	// non-decreasing.
	OnTick func(elapsedMS int64)
	// OnError, if set, receives panics recovered from work items and the
	// tick handler. The loop keeps running after reporting.
	OnError func(err error)
	// Background is used for logging. Defaults to context.Background().
	Background context.Context
}

// Loop owns the worker goroutine. All methods are safe to call from any
// goroutine.
type Loop struct {
	onTick  func(int64)
	onError func(error)
	bg      context.Context

	tickPeriod atomic.Int64 // nanoseconds
	start      time.Time

	mu    sync.Mutex
	queue []func()
	state int32
	wake  chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	workerID atomic.Uint64
	done     chan struct{}

	disposeOnce sync.Once
}

// New constructs a Loop and starts its worker.
func New(params Params) *Loop {
	bg := params.Background
	if bg == nil {
		bg = context.Background()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		onTick:  params.OnTick,
		onError: params.OnError,
		bg:      bg,
		start:   time.Now(),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	period := params.TickPeriod
	if period == 0 {
		period = DefaultTickPeriod
	}
	l.tickPeriod.Store(int64(period))
	go l.run()
	return l
}

// Schedule enqueues fn to run on the worker. It fails with ErrShuttingDown
// once the loop has begun disposing.
func (l *Loop) Schedule(fn func()) error {
	l.mu.Lock()
	if l.state != stateRunning {
		l.mu.Unlock()
		return ErrShuttingDown
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// IsWorker reports whether the caller is running on the loop's worker.
func (l *Loop) IsWorker() bool {
	return goid.Current() == l.workerID.Load()
}

// Context is cancelled when the loop begins disposing. Socket operations
// driven by the loop take their lifetime from it.
func (l *Loop) Context() context.Context {
	return l.ctx
}

// TickPeriod returns the longest the worker waits for work before ticking.
func (l *Loop) TickPeriod() time.Duration {
	return time.Duration(l.tickPeriod.Load())
}

// SetTickPeriod changes the longest the worker waits for work before
// ticking. Zero means spin.
func (l *Loop) SetTickPeriod(d time.Duration) {
	if d < 0 {
		d = 0
	}
	l.tickPeriod.Store(int64(d))
}

// Elapsed returns the time since the loop was constructed.
func (l *Loop) Elapsed() time.Duration {
	return time.Since(l.start)
}

// Done is closed when the worker has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Dispose stops the loop: the queue closes to new work, the loop context is
// cancelled, and already queued items are drained before the worker exits.
// Dispose is idempotent. When called from the worker itself, the join is
// deferred to another goroutine and Dispose returns immediately; otherwise
// it returns after the worker has exited.
func (l *Loop) Dispose() {
	l.disposeOnce.Do(func() {
		l.mu.Lock()
		l.state = stateDisposing
		l.mu.Unlock()
		l.cancel()
		select {
		case l.wake <- struct{}{}:
		default:
		}
		finish := func() {
			<-l.done
			l.mu.Lock()
			l.state = stateDisposed
			l.mu.Unlock()
		}
		if l.IsWorker() {
			// the worker cannot wait for itself
			go finish()
		} else {
			finish()
		}
	})
}

func (l *Loop) run() {
	l.workerID.Store(goid.Current())
	defer close(l.done)
	timer := time.NewTimer(l.TickPeriod())
	defer timer.Stop()
	for {
		period := l.TickPeriod()
		if period > 0 {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(period)
			select {
			case <-l.wake:
			case <-timer.C:
			case <-l.ctx.Done():
			}
		} else {
			select {
			case <-l.wake:
			default:
			}
		}
		l.drain()
		if l.ctx.Err() != nil {
			// the queue closed before cancellation became observable here;
			// pick up anything that slipped in between the drain and this
			// check, then exit
			l.drain()
			return
		}
		l.fireTick()
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()
		l.invoke(fn)
	}
}

func (l *Loop) invoke(fn func()) {
	defer l.recoverPanic("work item")
	fn()
}

func (l *Loop) fireTick() {
	if l.onTick == nil {
		return
	}
	defer l.recoverPanic("tick")
	l.onTick(l.Elapsed().Milliseconds())
}

func (l *Loop) recoverPanic(what string) {
	if r := recover(); r != nil {
		err, ok := r.(error)
		if !ok {
			err = fmt.Errorf("panic in %s: %v", what, r)
		}
		logctx.Errorf(l.bg, "eventloop: recovered panic in %s: %v", what, r)
		if l.onError != nil {
			l.onError(err)
		}
	}
}
