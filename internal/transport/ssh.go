package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"gostunnel/internal/metrics"
	"gostunnel/tunnel"
	"gostunnel/util"
)

// SSHDialer reaches destinations through an SSH jump host.  The tunnel
// is connected on the first Dial and reconnected on a later Dial if the
// jump host dropped it.
type SSHDialer struct {
	tunnel  tunnel.Tunnel
	config  *tunnel.SSHConfig
	logger  *util.Logger
	metrics *metrics.Collector

	mu        sync.Mutex
	connected bool
}

// NewSSHDialer creates a dialer that forwards connections through an
// SSH tunnel.  The tunnel is not connected until the first Dial.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger, m *metrics.Collector) *SSHDialer {
	return &SSHDialer{
		tunnel:  tunnel.NewSSHTunnel(cfg, logger),
		config:  cfg,
		logger:  logger,
		metrics: m,
	}
}

// connect establishes the SSH tunnel unless a live one exists.
func (d *SSHDialer) connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected && d.tunnel.IsAlive() {
		return nil
	}
	if d.connected {
		d.logger.Warn("jump host %s dropped the tunnel; reconnecting", d.config.Host)
		d.tunnel.Close() //nolint:errcheck
		d.connected = false
		d.metrics.TunnelReconnect()
	}

	d.logger.Verbose("establishing SSH tunnel to %s@%s:%d",
		d.config.User, d.config.Host, d.config.Port)

	if err := d.tunnel.Connect(ctx); err != nil {
		return fmt.Errorf("jump host: %w", err)
	}

	d.connected = true
	d.logger.Verbose("SSH tunnel established")
	return nil
}

// Dial connects to address from the jump host.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	return d.tunnel.Dial(ctx, network, address)
}

// Close tears down the underlying SSH tunnel.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		d.connected = false
		return d.tunnel.Close()
	}
	return nil
}
