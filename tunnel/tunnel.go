// Package tunnel carries destination connections through an SSH jump
// host using golang.org/x/crypto/ssh.
package tunnel

import (
	"context"
	"net"
)

// Tunnel is a long-lived channel to a gateway that can open TCP
// connections on the caller's behalf.
type Tunnel interface {
	// Connect establishes the session with the gateway.
	Connect(ctx context.Context) error

	// Dial opens a connection to address as seen from the gateway.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	Close() error

	// IsAlive reports whether the gateway session is still up.
	IsAlive() bool
}
