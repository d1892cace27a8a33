package relay

import (
	"fmt"
	"sync/atomic"
	"time"

	ncerr "gostunnel/internal/errors"
	"gostunnel/internal/metrics"
	"gostunnel/internal/retry"
	"gostunnel/util"
)

const (
	// DefaultDrainInterval is the wait between checks of a transport
	// that still has unflushed output.
	DefaultDrainInterval = 100 * time.Millisecond
	// DefaultMaxDrainAttempts bounds those checks before the transport
	// is aborted.
	DefaultMaxDrainAttempts = 50
	// DefaultCascadeDelay separates a lost connection from the shutdown
	// of its peer.
	DefaultCascadeDelay = 100 * time.Millisecond
)

var placeholderSeq atomic.Uint64

// Options configures an Endpoint.
type Options struct {
	Role Role
	// FlushOnConnect flushes queued output as soon as the transport
	// arrives.  Destination endpoints leave it off and flush when their
	// peer is told they are ready.
	FlushOnConnect bool
	Scheduler      Scheduler
	Sink           DataSink
	Logger         *util.Logger
	Metrics        *metrics.Collector
	// Drain is the schedule for re-checking unflushed output during
	// shutdown.  Its MaxAttempts bounds the wait.
	Drain        *retry.Backoff
	CascadeDelay time.Duration
	// OnClosed runs once, when the endpoint reaches Closed.
	OnClosed func(*Endpoint)
}

// Endpoint is one socket's half of a relay.
type Endpoint struct {
	role      Role
	flush     bool
	sched     Scheduler
	sink      DataSink
	baseLog   *util.Logger
	log       *util.Logger
	metrics   *metrics.Collector
	drain     *retry.Backoff
	cascade   time.Duration
	onClosed  func(*Endpoint)
	origin    string
	peer      *Endpoint
	transport Transport
	pending   [][]byte
	state     State

	drainAttempts int
	stopDrain     func() bool
}

// NewEndpoint returns an Unconnected endpoint.
func NewEndpoint(opts Options) *Endpoint {
	log := opts.Logger
	if log == nil {
		log = util.Discard()
	}
	drain := opts.Drain
	if drain == nil {
		drain = retry.Fixed(DefaultDrainInterval, DefaultMaxDrainAttempts)
	}
	cascade := opts.CascadeDelay
	if cascade <= 0 {
		cascade = DefaultCascadeDelay
	}

	e := &Endpoint{
		role:     opts.Role,
		flush:    opts.FlushOnConnect,
		sched:    opts.Scheduler,
		sink:     opts.Sink,
		metrics:  opts.Metrics,
		drain:    drain,
		cascade:  cascade,
		onClosed: opts.OnClosed,
		origin:   fmt.Sprintf("unallocated-%d", placeholderSeq.Add(1)),
	}
	e.baseLog = log.With("role", opts.Role)
	e.log = e.baseLog.With("origin", e.origin)
	return e
}

// Link pairs a and b.  Each forwards what it receives to the other and
// cascades its shutdown to the other.
func Link(a, b *Endpoint) {
	if a.peer != nil || b.peer != nil {
		panic("relay: endpoint already paired")
	}
	a.peer = b
	b.peer = a
}

// ── accessors ────────────────────────────────────────────────────────

func (e *Endpoint) Role() Role { return e.role }

func (e *Endpoint) State() State { return e.state }

// Origin is the peer's host:port, or a placeholder before connecting.
func (e *Endpoint) Origin() string { return e.origin }

func (e *Endpoint) Peer() *Endpoint { return e.peer }

// Logger returns the endpoint's logger, carrying role and origin fields.
func (e *Endpoint) Logger() *util.Logger { return e.log }

// IsClosed reports whether the endpoint is closing or closed.
func (e *Endpoint) IsClosed() bool { return e.state >= Closing }

// Queued returns the number of bytes waiting for a transport.
func (e *Endpoint) Queued() int {
	n := 0
	for _, c := range e.pending {
		n += len(c)
	}
	return n
}

// ── lifecycle events ─────────────────────────────────────────────────

// OnConnected hands the endpoint its transport.  It is called once.
func (e *Endpoint) OnConnected(t Transport) {
	if e.transport != nil {
		e.log.Error("second transport offered; keeping the first")
		return
	}
	e.transport = t

	host, port := t.PeerAddr()
	e.origin = util.FormatAddr(host, port)
	e.log = e.baseLog.With("origin", e.origin)

	if e.state >= Closing {
		if e.state == Closing && len(e.pending) > 0 {
			e.log.Debug("transport arrived after shutdown; flushing %d queued bytes first", e.Queued())
			e.Write(nil)
			_ = e.Shutdown()
			return
		}
		e.log.Debug("transport arrived after shutdown; closing it")
		e.closeTransport()
		return
	}

	e.state = Connected
	e.log.Info("connected")

	queued := len(e.pending)
	if queued > 0 && e.flush {
		e.Write(nil)
	}
	if e.peer != nil {
		e.peer.OnPeerReady(queued)
	}
}

// OnPeerReady is called by the peer once its transport exists.  queued
// is the number of chunks the peer was holding for that transport.
func (e *Endpoint) OnPeerReady(queued int) {
	if queued > 0 && e.peer != nil {
		e.log.Debug("peer ready with %d queued chunks; flushing", queued)
		e.peer.Write(nil)
	}
}

// Write sends p, or queues it until the transport exists.  Queued
// chunks always go out first, in order, as one send.  An empty p only
// flushes.
func (e *Endpoint) Write(p []byte) {
	if e.transport == nil {
		if len(p) == 0 {
			return
		}
		if e.state >= Closing {
			e.log.Debug("dropping %d bytes: closed before connecting", len(p))
			e.metrics.Discarded(len(p))
			return
		}
		e.log.Debug("queuing %d bytes for later", len(p))
		e.pending = append(e.pending, p)
		return
	}

	if len(e.pending) > 0 {
		buf := make([]byte, 0, e.Queued())
		for _, c := range e.pending {
			buf = append(buf, c...)
		}
		e.pending = nil
		e.transport.Send(buf)
	}
	if len(p) > 0 {
		e.transport.Send(p)
	}
}

// OnDataReceived forwards p to the peer, or to the sink when there is
// no peer.  Bytes for a peer that is already closing are dropped.
func (e *Endpoint) OnDataReceived(p []byte) {
	if e.peer == nil {
		if e.sink != nil {
			e.sink.HandleData(e, p)
			return
		}
		e.log.Debug("no peer or sink; dropping %d bytes", len(p))
		e.metrics.Discarded(len(p))
		return
	}

	if e.peer.IsClosed() {
		e.log.Debug("lost %d bytes: peer %s is %s", len(p), e.peer.origin, e.peer.state)
		e.metrics.Discarded(len(p))
		return
	}

	e.peer.Write(p)
	if e.role == RoleClient {
		e.metrics.Upstream(len(p))
	} else {
		e.metrics.Downstream(len(p))
	}
}

// OnRemoteEOF reports whether the endpoint should close in response to
// a read EOF.  Half-open connections are not kept.
func (e *Endpoint) OnRemoteEOF() bool {
	e.log.Debug("received EOF; already closing: %v", e.IsClosed())
	return !e.IsClosed()
}

// OnPeerLost is called when the transport is gone.  A nil cause means
// an orderly close.  The peer is shut down after the cascade delay.
func (e *Endpoint) OnPeerLost(cause error) {
	if cause != nil && !util.IsHarmless(cause) {
		e.log.Info("closed due to %v", cause)
	} else if cause != nil {
		e.log.Info("closed by peer (%v)", cause)
	} else {
		e.log.Info("closed normally")
	}

	if e.stopDrain != nil {
		e.stopDrain()
		e.stopDrain = nil
	}
	e.markClosed()

	if e.peer != nil && !e.peer.IsClosed() {
		e.log.Debug("asking peer %s to close", e.peer.origin)
		e.schedulePeerShutdown()
	}
}

// ── shutdown ─────────────────────────────────────────────────────────

// Shutdown closes the endpoint.  It is idempotent.  Without a transport
// queued output is kept and the endpoint stays Closing until
// OnConnected flushes it or Abandon drops it.  While the transport
// still holds unflushed output the close is retried on the drain
// schedule; when that runs out the transport is aborted and
// ErrDrainTimeout returned.  Failures other than the expected races are
// logged and returned.
func (e *Endpoint) Shutdown() error {
	e.log.Debug("shutdown called in state %s", e.state)
	prev := e.state
	if e.state < Closing {
		e.state = Closing
	}

	if prev == Closed {
		e.log.Debug("closed already")
		return nil
	}

	if e.transport == nil {
		if len(e.pending) > 0 {
			e.log.Debug("holding %d queued bytes until the transport arrives", e.Queued())
			return nil
		}
		e.log.Debug("closed before a transport was attached")
		e.markClosedBeforeConnect()
		return nil
	}

	if e.transport.IsClosing() {
		e.log.Debug("transport already closing")
		return nil
	}

	if n := e.transport.PendingOutbound(); n > 0 {
		return e.deferShutdown(n)
	}
	e.drainAttempts = 0

	if e.transport.IsSecure() {
		if err := e.transport.ShutdownSecure(); err != nil {
			if !ncerr.IsExpectedSecureShutdown(err) {
				host, port := e.transport.PeerAddr()
				e.log.Error("unexpected failure shutting down TLS: %v", err)
				e.metrics.RecordError(err.Error())
				return ncerr.Wrap("shutdown", util.FormatAddr(host, port), err)
			}
			e.log.Debug("TLS shutdown raced the peer: %v", err)
		}
	}

	return e.closeTransport()
}

// Abandon gives up on an endpoint whose transport will never arrive.
// Queued output is discarded and the endpoint is Closed.  An endpoint
// that already has a transport is shut down normally instead.
func (e *Endpoint) Abandon() error {
	if e.transport != nil {
		return e.Shutdown()
	}
	if e.state == Closed {
		return nil
	}
	if n := e.Queued(); n > 0 {
		e.log.Debug("discarding %d queued bytes: no transport", n)
		e.metrics.Discarded(n)
	}
	e.state = Closing
	e.markClosedBeforeConnect()
	return nil
}

func (e *Endpoint) markClosedBeforeConnect() {
	e.pending = nil
	e.markClosed()
	if e.peer != nil && !e.peer.IsClosed() {
		e.schedulePeerShutdown()
	}
}

func (e *Endpoint) deferShutdown(pending int) error {
	if e.stopDrain != nil {
		e.log.Debug("drain check already scheduled")
		return nil
	}

	e.drainAttempts++
	if e.drain.Exhausted(e.drainAttempts) {
		host, port := e.transport.PeerAddr()
		e.log.Error("%d bytes still unflushed after %d checks; aborting", pending, e.drainAttempts)
		e.metrics.ForcedClose()
		e.metrics.Discarded(pending)
		e.transport.Abort()
		e.markClosed()
		return ncerr.Wrap("shutdown", util.FormatAddr(host, port),
			fmt.Errorf("%w: %d bytes after %d checks", ncerr.ErrDrainTimeout, pending, e.drainAttempts))
	}

	delay := e.drain.Delay(e.drainAttempts)
	e.log.Debug("%d bytes still unflushed; retrying shutdown in %v", pending, delay)
	e.metrics.DrainRetry()
	e.stopDrain = e.sched.AfterFunc(delay, func() {
		e.stopDrain = nil
		_ = e.Shutdown()
	})
	return nil
}

func (e *Endpoint) closeTransport() error {
	if err := e.transport.Close(); err != nil {
		if !ncerr.IsAlreadyClosed(err) {
			host, port := e.transport.PeerAddr()
			e.log.Error("unexpected failure closing transport: %v", err)
			e.metrics.RecordError(err.Error())
			return ncerr.Wrap("close", util.FormatAddr(host, port), err)
		}
		e.log.Debug("transport was already closed")
	} else {
		e.log.Debug("close successful")
	}
	e.markClosed()
	return nil
}

func (e *Endpoint) schedulePeerShutdown() {
	peer := e.peer
	e.sched.AfterFunc(e.cascade, func() { _ = peer.Shutdown() })
}

func (e *Endpoint) markClosed() {
	if e.state == Closed {
		return
	}
	e.state = Closed
	if e.onClosed != nil {
		e.onClosed(e)
	}
}
