// Package transport connects sockets to the reactor.
//
// A Handle owns one net.Conn: a reader goroutine and a writer goroutine
// do the blocking I/O and post every event (data, EOF, loss) to the
// reactor, where the relay endpoint handles it.  Dialers produce the
// destination-side connections: plain TCP, TLS, through a SOCKS5 proxy,
// or through an SSH jump host.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound network connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}

// Poster queues a callback on the reactor.
type Poster interface {
	Post(fn func()) bool
}

// Protocol receives a Handle's events.  Every method is invoked on the
// reactor goroutine, in the order the events happened.
type Protocol interface {
	// ConnectionMade is the first event.
	ConnectionMade(h *Handle)
	// DataReceived delivers bytes read from the socket.  p is owned by
	// the callee.
	DataReceived(p []byte)
	// EOFReceived reports a clean read EOF.  Returning true closes the
	// handle once pending output is written.
	EOFReceived() bool
	// ConnectionLost is the last event.  cause is nil for an orderly
	// close.
	ConnectionLost(cause error)
}
