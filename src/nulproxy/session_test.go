package nulproxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"go.nulproxy.org/nulproxy/src/eventloop"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type obsEvent struct {
	kind      string // "local", "remote", "state"
	msg       string
	connected bool
	onWorker  bool
	sess      *Session
}

type recObserver struct {
	events chan obsEvent
}

func newRecObserver() *recObserver {
	return &recObserver{events: make(chan obsEvent, 128)}
}

func (o *recObserver) OnLocalMessage(s *Session, msg string) {
	o.events <- obsEvent{kind: "local", msg: msg, onWorker: s.loop.IsWorker(), sess: s}
}

func (o *recObserver) OnRemoteMessage(s *Session, msg string) {
	o.events <- obsEvent{kind: "remote", msg: msg, onWorker: s.loop.IsWorker(), sess: s}
}

func (o *recObserver) OnStateChange(s *Session, connected bool) {
	o.events <- obsEvent{kind: "state", connected: connected, onWorker: s.loop.IsWorker(), sess: s}
}

func (o *recObserver) next(t *testing.T) obsEvent {
	t.Helper()
	select {
	case ev := <-o.events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for observer event")
		return obsEvent{}
	}
}

func (o *recObserver) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case ev := <-o.events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(d):
	}
}

// newTestSession wires a session to two in-memory connections. lp and rp are
// the test's handles on the inbound and upstream peers.
func newTestSession(t *testing.T, obs Observer) (s *Session, lp, rp net.Conn, loop *eventloop.Loop) {
	loop = eventloop.New(eventloop.Params{})
	t.Cleanup(loop.Dispose)
	lc, lp := net.Pipe()
	rc, rp := net.Pipe()
	t.Cleanup(func() { lp.Close(); rp.Close() })
	s = newSession(loop, obs, context.Background(), lc, rc, nil)
	t.Cleanup(s.Dispose)
	require.NoError(t, loop.Schedule(s.start))
	return s, lp, rp, loop
}

func TestConnectThenLocalMessage(t *testing.T) {
	obs := newRecObserver()
	_, lp, _, _ := newTestSession(t, obs)

	go lp.Write([]byte("HELLO\x00"))

	ev := obs.next(t)
	require.Equal(t, "state", ev.kind)
	require.True(t, ev.connected)
	require.True(t, ev.onWorker)

	ev = obs.next(t)
	require.Equal(t, "local", ev.kind)
	require.Equal(t, "HELLO", ev.msg)
	require.True(t, ev.onWorker)
}

func TestSplitAndCoalescedMessages(t *testing.T) {
	obs := newRecObserver()
	_, lp, _, _ := newTestSession(t, obs)
	require.True(t, obs.next(t).connected)

	done := make(chan struct{})
	go func() {
		defer close(done)
		lp.Write([]byte("AB"))
		lp.Write([]byte("C\x00DE\x00"))
	}()

	ev := obs.next(t)
	require.Equal(t, "local", ev.kind)
	require.Equal(t, "ABC", ev.msg)
	ev = obs.next(t)
	require.Equal(t, "local", ev.kind)
	require.Equal(t, "DE", ev.msg)
	<-done
}

func TestEmptyRemoteMessage(t *testing.T) {
	obs := newRecObserver()
	_, _, rp, _ := newTestSession(t, obs)
	require.True(t, obs.next(t).connected)

	go rp.Write([]byte{0})
	ev := obs.next(t)
	require.Equal(t, "remote", ev.kind)
	require.Equal(t, "", ev.msg)
}

func TestSendAppendsNUL(t *testing.T) {
	obs := newRecObserver()
	s, lp, _, loop := newTestSession(t, obs)
	require.True(t, obs.next(t).connected)

	errs := make(chan error, 1)
	require.NoError(t, loop.Schedule(func() {
		errs <- s.SendLocal("PING")
	}))

	buf := make([]byte, 16)
	lp.SetReadDeadline(time.Now().Add(3 * time.Second))
	n, err := lp.Read(buf)
	require.NoError(t, err)
	require.NoError(t, <-errs)
	require.Equal(t, []byte("PING\x00"), buf[:n])
}

func TestSendWrongThread(t *testing.T) {
	obs := newRecObserver()
	s, _, _, _ := newTestSession(t, obs)
	require.True(t, obs.next(t).connected)

	err := s.SendRemote("nope")
	require.True(t, IsErrWrongThread(err))
	err = s.SendLocalBytes([]byte("nope"))
	require.True(t, IsErrWrongThread(err))
}

func TestRelayLocalToRemote(t *testing.T) {
	obs := newRecObserver()
	relay := relayRecorder{rec: obs}
	_, lp, rp, _ := newTestSession(t, relay)
	require.True(t, obs.next(t).connected)

	go lp.Write([]byte("PING\x00"))

	buf := make([]byte, 16)
	rp.SetReadDeadline(time.Now().Add(3 * time.Second))
	n, err := rp.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte("PING\x00"), buf[:n])
}

// relayRecorder forwards like Relay but still records state changes.
type relayRecorder struct {
	rec *recObserver
}

func (r relayRecorder) OnLocalMessage(s *Session, msg string)  { _ = s.SendRemote(msg) }
func (r relayRecorder) OnRemoteMessage(s *Session, msg string) { _ = s.SendLocal(msg) }
func (r relayRecorder) OnStateChange(s *Session, connected bool) {
	r.rec.OnStateChange(s, connected)
}

func TestPartialFragmentNotDelivered(t *testing.T) {
	obs := newRecObserver()
	_, lp, _, _ := newTestSession(t, obs)
	require.True(t, obs.next(t).connected)

	go func() {
		lp.Write([]byte("PART"))
		lp.Close()
	}()

	ev := obs.next(t)
	require.Equal(t, "state", ev.kind)
	require.False(t, ev.connected)
	obs.expectNone(t, 50*time.Millisecond)
}

func TestDisposeOnce(t *testing.T) {
	obs := newRecObserver()
	s, _, _, loop := newTestSession(t, obs)
	require.True(t, obs.next(t).connected)

	s.Dispose()
	s.Dispose()
	ev := obs.next(t)
	require.Equal(t, "state", ev.kind)
	require.False(t, ev.connected)
	require.True(t, s.IsDisposed())
	obs.expectNone(t, 50*time.Millisecond)

	errs := make(chan error, 1)
	require.NoError(t, loop.Schedule(func() {
		errs <- s.SendLocal("late")
	}))
	require.True(t, IsErrClosed(<-errs))
}

func TestStats(t *testing.T) {
	obs := newRecObserver()
	relay := relayRecorder{rec: obs}
	s, lp, rp, _ := newTestSession(t, relay)
	require.True(t, obs.next(t).connected)

	go lp.Write([]byte("PING\x00"))
	buf := make([]byte, 16)
	rp.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, err := rp.Read(buf)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st := s.Stats()
		return st.LocalRx == 5 && st.RemoteTx == 5
	}, 3*time.Second, 10*time.Millisecond)
}

func TestUserToken(t *testing.T) {
	obs := newRecObserver()
	s, _, _, _ := newTestSession(t, obs)
	require.True(t, obs.next(t).connected)

	require.Nil(t, s.UserToken())
	s.SetUserToken(42)
	require.Equal(t, 42, s.UserToken())
}

func TestDirectionString(t *testing.T) {
	require.Equal(t, "local", Local.String())
	require.Equal(t, "remote", Remote.String())
	require.Equal(t, "unknown", Direction(9).String())
}
