// Package relay implements the per-socket state machine at the heart of
// the tunnel.
//
// An Endpoint buffers writes issued before its socket exists, forwards
// received bytes to its paired endpoint, and runs a multi-step close
// that waits for unflushed output and tolerates the errors a racing
// peer produces.  Endpoints are not safe for concurrent use: every
// method must be called from the goroutine that drives the Scheduler.
package relay

import "time"

// State is an endpoint's position in its lifecycle.  It only moves
// forward.
type State int

const (
	Unconnected State = iota
	Connected
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role says which side of a tunnel pair an endpoint serves.
type Role int

const (
	// RoleClient is the accepted, client-facing socket.
	RoleClient Role = iota
	// RoleDestination is the dialed, destination-facing socket.
	RoleDestination
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "destination"
}

// Transport is a live socket as the endpoint sees it.
type Transport interface {
	// Send queues p for writing and never blocks.  The transport takes
	// ownership of p.
	Send(p []byte)
	// IsClosing reports whether a close has started.
	IsClosing() bool
	// PendingOutbound is the number of bytes accepted by Send that have
	// not reached the kernel yet.
	PendingOutbound() int
	// Close closes the socket once pending output is written.
	Close() error
	// Abort closes the socket now, discarding pending output.
	Abort()
	// IsSecure reports whether the socket carries TLS.
	IsSecure() bool
	// ShutdownSecure sends TLS close_notify and closes the socket.
	ShutdownSecure() error
	// PeerAddr returns the remote host and port.
	PeerAddr() (string, int)
}

// Scheduler runs deferred work on the endpoint's goroutine.
type Scheduler interface {
	Post(fn func()) bool
	AfterFunc(d time.Duration, fn func()) func() bool
}

// DataSink consumes bytes received by an endpoint that has no peer.
type DataSink interface {
	HandleData(e *Endpoint, p []byte)
}

// DataSinkFunc adapts a function to DataSink.
type DataSinkFunc func(e *Endpoint, p []byte)

// HandleData calls f(e, p).
func (f DataSinkFunc) HandleData(e *Endpoint, p []byte) { f(e, p) }
