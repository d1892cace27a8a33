// Package metrics provides lock-free counters describing a running
// tunnel listener: pairs, bytes relayed each way, dial and handshake
// failures, and how often the close protocol had to wait or give up.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/sizestr"
)

// Collector tracks runtime metrics for one listener.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	pairsActive       atomic.Int64
	pairsTotal        atomic.Int64
	bytesUpstream     atomic.Int64 // client -> destination
	bytesDownstream   atomic.Int64 // destination -> client
	bytesDiscarded    atomic.Int64
	dialFailures      atomic.Int64
	handshakeFailures atomic.Int64
	drainRetries      atomic.Int64
	forcedCloses      atomic.Int64
	tunnelReconnects  atomic.Int64
	errorsTotal       atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Pair metrics ─────────────────────────────────────────────────────

// PairOpened increments both the active and total pair counters.
func (c *Collector) PairOpened() {
	if c == nil {
		return
	}
	c.pairsActive.Add(1)
	c.pairsTotal.Add(1)
}

// PairClosed decrements the active pair counter.
func (c *Collector) PairClosed() {
	if c == nil {
		return
	}
	c.pairsActive.Add(-1)
}

// ActivePairs returns the number of pairs not yet fully closed.
func (c *Collector) ActivePairs() int64 {
	if c == nil {
		return 0
	}
	return c.pairsActive.Load()
}

// TotalPairs returns the lifetime pair count.
func (c *Collector) TotalPairs() int64 {
	if c == nil {
		return 0
	}
	return c.pairsTotal.Load()
}

// ── Byte metrics ─────────────────────────────────────────────────────

// Upstream records n bytes forwarded from a client to its destination.
func (c *Collector) Upstream(n int) {
	if c == nil {
		return
	}
	c.bytesUpstream.Add(int64(n))
}

// Downstream records n bytes forwarded from a destination to its client.
func (c *Collector) Downstream(n int) {
	if c == nil {
		return
	}
	c.bytesDownstream.Add(int64(n))
}

// Discarded records n bytes dropped because the receiving peer had
// already closed.
func (c *Collector) Discarded(n int) {
	if c == nil {
		return
	}
	c.bytesDiscarded.Add(int64(n))
}

// BytesUpstream returns total client -> destination bytes.
func (c *Collector) BytesUpstream() int64 {
	if c == nil {
		return 0
	}
	return c.bytesUpstream.Load()
}

// BytesDownstream returns total destination -> client bytes.
func (c *Collector) BytesDownstream() int64 {
	if c == nil {
		return 0
	}
	return c.bytesDownstream.Load()
}

// BytesDiscarded returns total bytes dropped for closed peers.
func (c *Collector) BytesDiscarded() int64 {
	if c == nil {
		return 0
	}
	return c.bytesDiscarded.Load()
}

// ── Failure metrics ──────────────────────────────────────────────────

// DialFailed records a destination dial that gave up.
func (c *Collector) DialFailed() {
	if c == nil {
		return
	}
	c.dialFailures.Add(1)
}

// DialFailures returns the number of failed destination dials.
func (c *Collector) DialFailures() int64 {
	if c == nil {
		return 0
	}
	return c.dialFailures.Load()
}

// HandshakeFailed records an inbound TLS handshake that failed.
func (c *Collector) HandshakeFailed() {
	if c == nil {
		return
	}
	c.handshakeFailures.Add(1)
}

// HandshakeFailures returns the number of failed inbound handshakes.
func (c *Collector) HandshakeFailures() int64 {
	if c == nil {
		return 0
	}
	return c.handshakeFailures.Load()
}

// DrainRetry records one deferred shutdown caused by unflushed output.
func (c *Collector) DrainRetry() {
	if c == nil {
		return
	}
	c.drainRetries.Add(1)
}

// DrainRetries returns the number of deferred shutdowns.
func (c *Collector) DrainRetries() int64 {
	if c == nil {
		return 0
	}
	return c.drainRetries.Load()
}

// ForcedClose records a transport aborted after its output never drained.
func (c *Collector) ForcedClose() {
	if c == nil {
		return
	}
	c.forcedCloses.Add(1)
}

// ForcedCloses returns the number of aborted transports.
func (c *Collector) ForcedCloses() int64 {
	if c == nil {
		return 0
	}
	return c.forcedCloses.Load()
}

// TunnelReconnect records an SSH jump-host reconnection.
func (c *Collector) TunnelReconnect() {
	if c == nil {
		return
	}
	c.tunnelReconnects.Add(1)
}

// TunnelReconnects returns the total tunnel reconnection count.
func (c *Collector) TunnelReconnects() int64 {
	if c == nil {
		return 0
	}
	return c.tunnelReconnects.Load()
}

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	PairsActive       int64  `json:"pairs_active"`
	PairsTotal        int64  `json:"pairs_total"`
	BytesUpstream     int64  `json:"bytes_upstream"`
	BytesDownstream   int64  `json:"bytes_downstream"`
	BytesDiscarded    int64  `json:"bytes_discarded"`
	DialFailures      int64  `json:"dial_failures"`
	HandshakeFailures int64  `json:"handshake_failures"`
	DrainRetries      int64  `json:"drain_retries"`
	ForcedCloses      int64  `json:"forced_closes"`
	TunnelReconnects  int64  `json:"tunnel_reconnects"`
	ErrorsTotal       int64  `json:"errors_total"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		PairsActive:       c.pairsActive.Load(),
		PairsTotal:        c.pairsTotal.Load(),
		BytesUpstream:     c.bytesUpstream.Load(),
		BytesDownstream:   c.bytesDownstream.Load(),
		BytesDiscarded:    c.bytesDiscarded.Load(),
		DialFailures:      c.dialFailures.Load(),
		HandshakeFailures: c.handshakeFailures.Load(),
		DrainRetries:      c.drainRetries.Load(),
		ForcedCloses:      c.forcedCloses.Load(),
		TunnelReconnects:  c.tunnelReconnects.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// Summary renders the snapshot as one log line with human-readable
// byte counts.
func (c *Collector) Summary() string {
	s := c.Snapshot()
	return fmt.Sprintf("pairs %d active / %d total, up %s, down %s, discarded %s, dial failures %d, forced closes %d",
		s.PairsActive, s.PairsTotal,
		sizestr.ToString(s.BytesUpstream),
		sizestr.ToString(s.BytesDownstream),
		sizestr.ToString(s.BytesDiscarded),
		s.DialFailures, s.ForcedCloses)
}
