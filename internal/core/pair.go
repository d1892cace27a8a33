package core

import (
	"context"
	"errors"
	"net"

	"gostunnel/internal/metrics"
	"gostunnel/internal/reactor"
	"gostunnel/internal/relay"
	"gostunnel/internal/retry"
	"gostunnel/internal/transport"
	"gostunnel/util"
)

type dialResult struct {
	conn net.Conn
	err  error
}

// Pair binds the client-facing endpoint of one accepted connection to
// the destination-facing endpoint of its outbound dial.  It refers to
// its Listener only by key.  All methods run on the reactor goroutine.
type Pair struct {
	id       uint64
	listener ListenerKey
	loop     *reactor.Loop
	log      *util.Logger
	metrics  *metrics.Collector
	bwLimit  int64

	client     *relay.Endpoint
	dest       *relay.Endpoint
	clientConn *transport.Handle
	destConn   *transport.Handle

	dial       chan dialResult
	dialCancel context.CancelFunc
	done       bool
	slots      chan struct{}
}

func newPair(l *Listener, id uint64, conn net.Conn) *Pair {
	p := &Pair{
		id:       id,
		listener: l.key,
		loop:     l.loop,
		log:      l.log.With("pair", id),
		metrics:  l.metrics,
		bwLimit:  l.opts.BandwidthLimit,
		slots:    l.slots,
	}

	drain := retry.Fixed(l.opts.DrainInterval, l.opts.MaxDrainAttempts)
	endpoint := func(role relay.Role) *relay.Endpoint {
		return relay.NewEndpoint(relay.Options{
			Role:           role,
			FlushOnConnect: role == relay.RoleClient,
			Scheduler:      l.loop,
			Logger:         p.log,
			Metrics:        l.metrics,
			Drain:          drain,
			CascadeDelay:   l.opts.CascadeDelay,
			OnClosed:       p.endpointClosed,
		})
	}
	p.client = endpoint(relay.RoleClient)
	p.dest = endpoint(relay.RoleDestination)
	relay.Link(p.client, p.dest)
	return p
}

// ID returns the pair's sequence number within its Listener.
func (p *Pair) ID() uint64 { return p.id }

// Client returns the client-facing endpoint.
func (p *Pair) Client() *relay.Endpoint { return p.client }

// Destination returns the destination-facing endpoint.
func (p *Pair) Destination() *relay.Endpoint { return p.dest }

// start attaches the accepted connection.  The client endpoint's
// connection event starts the dial.
func (p *Pair) start(conn net.Conn) {
	p.clientConn = p.newHandle(conn, p.client, p.startDial)
	p.clientConn.Start()
}

func (p *Pair) newHandle(conn net.Conn, ep *relay.Endpoint, connected func()) *transport.Handle {
	return transport.NewHandle(conn, p.loop, &endpointProtocol{ep: ep, connected: connected},
		transport.HandleOptions{
			Limiter: transport.NewLimiter(p.bwLimit),
			Logger:  ep.Logger(),
		})
}

// startDial begins the outbound connection without waiting for it.
// The result arrives on p.dial and is handled by dialFinished.
func (p *Pair) startDial() {
	if p.client.IsClosed() {
		return
	}
	l, ok := lookupListener(p.listener)
	if !ok || l.isClosed() {
		p.log.Critical("listener is gone; closing client")
		p.shutdown(p.client)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.dialCancel = cancel
	p.dial = make(chan dialResult, 1)
	log := p.dest.Logger()
	log.Debug("contacting %s:%d", l.opts.DestHost, l.opts.DestPort)

	go func() {
		conn, err := l.dialDestination(ctx, log)
		p.dial <- dialResult{conn, err}
		if !p.loop.Post(p.dialFinished) {
			if r := <-p.dial; r.conn != nil {
				r.conn.Close()
			}
		}
	}()
}

func (p *Pair) dialFinished() {
	r := <-p.dial
	p.dialCancel()

	if r.err != nil {
		if !p.done && !errors.Is(r.err, context.Canceled) {
			p.metrics.DialFailed()
			p.metrics.RecordError(r.err.Error())
			p.dest.Logger().Warn("cannot reach destination: %v", r.err)
		}
		if err := p.dest.Abandon(); err != nil {
			p.metrics.RecordError(err.Error())
		}
		p.shutdown(p.client)
		return
	}
	// A Closing destination may still hold client bytes; the handle
	// flushes them before closing.
	if p.done || p.dest.State() == relay.Closed {
		r.conn.Close()
		return
	}

	p.destConn = p.newHandle(r.conn, p.dest, nil)
	p.destConn.Start()
}

// listenerGone is called when the Listener stops.
func (p *Pair) listenerGone() {
	if p.dialCancel != nil {
		p.dialCancel()
	}
	p.shutdown(p.client)
}

func (p *Pair) shutdown(ep *relay.Endpoint) {
	if err := ep.Shutdown(); err != nil {
		p.metrics.RecordError(err.Error())
	}
}

// abort drops both connections without draining.
func (p *Pair) abort() {
	if p.dialCancel != nil {
		p.dialCancel()
	}
	for _, h := range []*transport.Handle{p.clientConn, p.destConn} {
		if h != nil {
			h.Abort()
		}
	}
	if p.destConn == nil {
		_ = p.dest.Abandon()
	}
}

// endpointClosed retires the pair once both endpoints are Closed.
func (p *Pair) endpointClosed(*relay.Endpoint) {
	if p.done || p.client.State() != relay.Closed || p.dest.State() != relay.Closed {
		return
	}
	p.done = true
	if p.dialCancel != nil {
		p.dialCancel()
	}
	if l, ok := lookupListener(p.listener); ok {
		l.removePair(p.id)
	}
	if p.slots != nil {
		<-p.slots
	}
	p.metrics.PairClosed()
	p.log.Debug("pair closed")
}

// endpointProtocol delivers Handle events to a relay endpoint.
type endpointProtocol struct {
	ep        *relay.Endpoint
	connected func()
}

func (e *endpointProtocol) ConnectionMade(h *transport.Handle) {
	e.ep.OnConnected(h)
	if e.connected != nil {
		e.connected()
	}
}

func (e *endpointProtocol) DataReceived(p []byte) { e.ep.OnDataReceived(p) }

func (e *endpointProtocol) EOFReceived() bool { return e.ep.OnRemoteEOF() }

func (e *endpointProtocol) ConnectionLost(cause error) { e.ep.OnPeerLost(cause) }
