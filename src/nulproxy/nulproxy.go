// Package nulproxy implements a transparent TCP proxy for NUL-terminated
// ASCII message streams.
//
// A Proxy listens on a local endpoint; each inbound connection is paired
// with an upstream connection to a fixed remote endpoint. Bytes flowing in
// either direction are cut into messages on NUL boundaries and handed to an
// Observer, which may push messages back into either side. All Observer
// callbacks run on the event loop's worker goroutine, so observers never
// need their own synchronization.
package nulproxy

// Direction tags the two sides of a session.
type Direction uint8

const (
	// Local is the inbound peer, the one the acceptor accepted.
	Local Direction = iota
	// Remote is the upstream peer, the one the acceptor dialed.
	Remote
)

func (d Direction) String() string {
	switch d {
	case Local:
		return "local"
	case Remote:
		return "remote"
	default:
		return "unknown"
	}
}

// Observer receives session events. All methods are invoked on the event
// loop's worker goroutine: a connected state change before any message for
// that session, messages in arrival order per direction, and at most one
// disconnected state change after the last message.
type Observer interface {
	// OnLocalMessage is called with each complete message received from the
	// inbound peer. The trailing NUL is stripped.
	OnLocalMessage(s *Session, msg string)
	// OnRemoteMessage is called with each complete message received from the
	// upstream peer. The trailing NUL is stripped.
	OnRemoteMessage(s *Session, msg string)
	// OnStateChange is called with connected=true when the session starts
	// running and connected=false exactly once when it is torn down.
	OnStateChange(s *Session, connected bool)
}

// Relay is an Observer which forwards every message to the opposite peer
// unchanged, making the proxy transparent. Send failures are not reported
// here; they surface through session disposal.
type Relay struct{}

func (Relay) OnLocalMessage(s *Session, msg string)  { _ = s.SendRemote(msg) }
func (Relay) OnRemoteMessage(s *Session, msg string) { _ = s.SendLocal(msg) }
func (Relay) OnStateChange(s *Session, connected bool) {}
