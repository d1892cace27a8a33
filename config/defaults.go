package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// Every tuneable default lives here so CLI flags, the environment
// overlay and New agree.

const (
	// DefaultRemoteHost is the destination when none is given.
	DefaultRemoteHost = "localhost"

	// DefaultBindHost is the local listening address.
	DefaultBindHost = "127.0.0.1"

	// DefaultSSHPort is the standard SSH port for --via.
	DefaultSSHPort = 22

	// DefaultDialTimeout bounds one destination dial attempt including
	// the TLS handshake.
	DefaultDialTimeout = 10 * time.Second

	// DefaultDialRetries is the number of extra attempts after a
	// transient dial failure.
	DefaultDialRetries = 2

	// DefaultHandshakeTimeout bounds the inbound TLS handshake in wrap
	// mode.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultDrainInterval is the delay between checks of an endpoint's
	// outbound buffer while it shuts down.
	DefaultDrainInterval = 100 * time.Millisecond

	// DefaultMaxDrainAttempts caps those checks before the connection
	// is forced closed.
	DefaultMaxDrainAttempts = 50

	// DefaultCascadeDelay is how long a lost connection waits before
	// shutting down its peer.
	DefaultCascadeDelay = 100 * time.Millisecond

	// DefaultGracePeriod is how long Serve waits for open pairs after
	// the listener stops.
	DefaultGracePeriod = 5 * time.Second

	// DefaultSSHKeepAlive is the jump-host keepalive interval.
	DefaultSSHKeepAlive = 30 * time.Second
)
