package core

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"gostunnel/config"
	ncerr "gostunnel/internal/errors"
	"gostunnel/internal/metrics"
	"gostunnel/internal/reactor"
	"gostunnel/internal/retry"
	"gostunnel/internal/transport"
	"gostunnel/util"
)

// Options configures a Listener.
type Options struct {
	// Mode selects which leg is TLS.
	Mode config.Mode

	BindHost string
	Port     int // 0 picks an ephemeral port
	DestHost string
	DestPort int

	// Upstream opens the raw destination connection: TCP, SOCKS5 or an
	// SSH jump host.  In strip mode the Listener layers TLS on top.
	Upstream transport.Dialer

	// ClientTLS is the base config for the destination leg in strip
	// mode.  OverrideServerName and ServerName follow the semantics of
	// transport.TLSDialer.
	ClientTLS          *tls.Config
	OverrideServerName bool
	ServerName         string

	// ServerTLS terminates inbound TLS in wrap mode.
	ServerTLS *tls.Config

	DialTimeout      time.Duration
	DialRetries      int
	HandshakeTimeout time.Duration
	DrainInterval    time.Duration
	MaxDrainAttempts int
	CascadeDelay     time.Duration
	GracePeriod      time.Duration
	BandwidthLimit   int64
	MaxConnections   int
	StatsInterval    time.Duration

	// Breaker guards the destination.  Nil uses the default breaker.
	Breaker *retry.CircuitBreakerConfig

	Logger  *util.Logger
	Metrics *metrics.Collector
}

func (o *Options) withDefaults() {
	if o.BindHost == "" {
		o.BindHost = config.DefaultBindHost
	}
	if o.DestHost == "" {
		o.DestHost = config.DefaultRemoteHost
	}
	if o.Upstream == nil {
		o.Upstream = &transport.TCPDialer{}
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = config.DefaultDialTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = config.DefaultHandshakeTimeout
	}
	if o.DrainInterval <= 0 {
		o.DrainInterval = config.DefaultDrainInterval
	}
	if o.MaxDrainAttempts <= 0 {
		o.MaxDrainAttempts = config.DefaultMaxDrainAttempts
	}
	if o.CascadeDelay <= 0 {
		o.CascadeDelay = config.DefaultCascadeDelay
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = config.DefaultGracePeriod
	}
	if o.Logger == nil {
		o.Logger = util.Discard()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
}

// Listener owns the bound socket, the reactor and every Pair it
// created.  The pairs map is only touched on the reactor goroutine.
type Listener struct {
	key     ListenerKey
	opts    Options
	ln      net.Listener
	loop    *reactor.Loop
	dialer  transport.Dialer
	dialing *retry.Backoff
	breaker *retry.CircuitBreaker
	log     *util.Logger
	metrics *metrics.Collector
	slots   chan struct{}

	pairs     map[uint64]*Pair
	lastPair  uint64
	drained   chan struct{}
	drainOnce sync.Once

	closed  atomic.Bool
	serving atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
}

// Bind validates opts and binds the listening socket.  The effective
// port is available from Port as soon as Bind returns.
func Bind(opts Options) (*Listener, error) {
	opts.withDefaults()

	switch opts.Mode {
	case config.ModeStrip:
	case config.ModeWrap:
		if opts.ServerTLS == nil {
			return nil, &ncerr.ConfigError{Field: "cert", Message: "wrap mode requires a server certificate"}
		}
	default:
		return nil, &ncerr.ConfigError{Field: "mode", Value: string(opts.Mode), Message: "must be strip or wrap"}
	}
	if opts.Port < 0 || opts.Port > 65535 {
		return nil, &ncerr.ConfigError{Field: "local-port", Value: opts.Port, Message: "out of range 0-65535"}
	}
	if opts.DestPort < 1 || opts.DestPort > 65535 {
		return nil, &ncerr.ConfigError{Field: "remote-port", Value: opts.DestPort, Message: "out of range 1-65535"}
	}

	addr := util.FormatAddr(opts.BindHost, opts.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, ncerr.Wrap("listen", addr, err)
	}

	l := &Listener{
		opts:    opts,
		ln:      ln,
		metrics: opts.Metrics,
		pairs:   make(map[uint64]*Pair),
		drained: make(chan struct{}),
	}
	l.key = register(l)
	l.log = opts.Logger.With("listener", l.Addr().String())
	l.loop = reactor.New(l.log)

	breaker := retry.DefaultCircuitBreakerConfig()
	if opts.Breaker != nil {
		cfg := *opts.Breaker
		breaker = &cfg
	}
	if breaker.OnStateChange == nil {
		breaker.OnStateChange = func(from, to retry.State) {
			l.log.Warn("destination circuit %s -> %s", from, to)
		}
	}
	l.breaker = retry.NewCircuitBreaker(breaker)

	l.dialer = opts.Upstream
	if opts.Mode.OutboundTLS() {
		l.dialer = &transport.TLSDialer{
			Inner:              opts.Upstream,
			Config:             opts.ClientTLS,
			OverrideServerName: opts.OverrideServerName,
			ServerName:         opts.ServerName,
			HandshakeTimeout:   opts.HandshakeTimeout,
		}
	}

	l.dialing = retry.DefaultBackoff()
	l.dialing.MaxAttempts = opts.DialRetries + 1

	if opts.MaxConnections > 0 {
		l.slots = make(chan struct{}, opts.MaxConnections)
	}
	return l, nil
}

// Port returns the bound port.
func (l *Listener) Port() int {
	_, port := util.SplitAddr(l.ln.Addr().String())
	return port
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Key returns the registry key pairs use to find this Listener.
func (l *Listener) Key() ListenerKey { return l.key }

// Metrics returns the collector shared by every pair.
func (l *Listener) Metrics() *metrics.Collector { return l.metrics }

// ActivePairs returns the number of pairs not yet fully closed.  It is
// only meaningful while Serve runs.
func (l *Listener) ActivePairs() int {
	n := 0
	if !l.loop.Call(func() { n = len(l.pairs) }) {
		return 0
	}
	return n
}

func (l *Listener) isClosed() bool { return l.closed.Load() }

// Close stops a serving Listener.  A Listener that never served just
// releases its socket.
func (l *Listener) Close() error {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
		return nil
	}
	if l.closed.Swap(true) {
		return nil
	}
	unregister(l.key)
	return l.ln.Close()
}

// Serve accepts connections until ctx is done or Close is called.  On
// the way out it shuts every pair down, waits up to the grace period
// for them to finish, then stops the reactor.
func (l *Listener) Serve(ctx context.Context) error {
	if !l.serving.CompareAndSwap(false, true) {
		return errors.New("listener: Serve called twice")
	}
	if l.isClosed() {
		return ncerr.ErrListenerClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()

	l.log.Info("%s: forwarding to %s", l.opts.Mode, util.FormatAddr(l.opts.DestHost, l.opts.DestPort))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.loop.Run(context.Background())
	})
	g.Go(func() error {
		// The socket may be closed without ctx, e.g. by Close racing Serve.
		defer cancel()
		return l.acceptLoop(gctx)
	})
	if l.opts.StatsInterval > 0 {
		g.Go(func() error {
			l.reportStats(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		l.stop()
		return nil
	})

	err := g.Wait()
	unregister(l.key)
	if cerr := l.dialer.Close(); cerr != nil {
		l.log.Debug("closing dialer: %v", cerr)
	}
	l.log.Verbose("%s", l.metrics.Summary())
	return err
}

// stop runs once Serve's context is done.
func (l *Listener) stop() {
	l.closed.Store(true)
	l.ln.Close()

	l.loop.Post(l.shutdownPairs)

	timer := time.NewTimer(l.opts.GracePeriod)
	defer timer.Stop()
	select {
	case <-l.drained:
	case <-timer.C:
		l.loop.Call(func() {
			if len(l.pairs) > 0 {
				l.log.Warn("%d pairs still open after %v; aborting", len(l.pairs), l.opts.GracePeriod)
			}
			for _, p := range l.pairs {
				p.abort()
			}
		})
	}
	l.loop.Stop()
}

// ── accept path ──────────────────────────────────────────────────────

func (l *Listener) acceptLoop(ctx context.Context) error {
	for {
		if !l.acquire(ctx) {
			return nil
		}
		conn, err := l.ln.Accept()
		if err != nil {
			l.release()
			if l.isClosed() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if ncerr.IsTemporary(err) {
				l.log.Warn("accept: %v", err)
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return ncerr.Wrap("accept", l.Addr().String(), err)
		}

		l.log.Debug("connection from %s", conn.RemoteAddr())
		if l.opts.ServerTLS != nil && l.opts.Mode.InboundTLS() {
			go l.handshake(ctx, conn)
			continue
		}
		l.deliver(conn)
	}
}

// handshake completes the inbound TLS handshake off the reactor.
func (l *Listener) handshake(ctx context.Context, conn net.Conn) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.HandshakeTimeout)
	defer cancel()

	tc := tls.Server(conn, l.opts.ServerTLS)
	if err := tc.HandshakeContext(ctx); err != nil {
		l.metrics.HandshakeFailed()
		l.log.Verbose("tls handshake from %s failed: %v", conn.RemoteAddr(), err)
		conn.Close()
		l.release()
		return
	}
	l.deliver(tc)
}

func (l *Listener) deliver(conn net.Conn) {
	if !l.loop.Post(func() { l.addPair(conn) }) {
		conn.Close()
		l.release()
	}
}

func (l *Listener) acquire(ctx context.Context) bool {
	if l.slots == nil {
		return ctx.Err() == nil
	}
	select {
	case l.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *Listener) release() {
	if l.slots != nil {
		<-l.slots
	}
}

// ── pair bookkeeping (reactor goroutine) ─────────────────────────────

func (l *Listener) addPair(conn net.Conn) {
	if l.isClosed() {
		conn.Close()
		l.release()
		return
	}
	l.lastPair++
	p := newPair(l, l.lastPair, conn)
	l.pairs[p.id] = p
	l.metrics.PairOpened()
	p.start(conn)
}

func (l *Listener) removePair(id uint64) {
	if _, ok := l.pairs[id]; !ok {
		return
	}
	delete(l.pairs, id)
	l.checkDrained()
}

func (l *Listener) shutdownPairs() {
	if len(l.pairs) > 0 {
		l.log.Verbose("closing %d open pairs", len(l.pairs))
	}
	for _, p := range l.pairs {
		p.listenerGone()
	}
	l.checkDrained()
}

func (l *Listener) checkDrained() {
	if l.isClosed() && len(l.pairs) == 0 {
		l.drainOnce.Do(func() { close(l.drained) })
	}
}

// ── destination dial (dial goroutine) ────────────────────────────────

// dialDestination connects to the destination, retrying transient
// failures.  Certificate errors and an open circuit end it at once.
func (l *Listener) dialDestination(ctx context.Context, log *util.Logger) (net.Conn, error) {
	addr := util.FormatAddr(l.opts.DestHost, l.opts.DestPort)

	var conn net.Conn
	err := l.dialing.Do(ctx, func(attempt int) error {
		var c net.Conn
		err := l.breaker.Execute(func() error {
			dctx, cancel := context.WithTimeout(ctx, l.opts.DialTimeout)
			defer cancel()
			var err error
			c, err = l.dialer.Dial(dctx, "tcp", addr)
			return err
		})
		if ctx.Err() != nil {
			if c != nil {
				c.Close()
			}
			return retry.Permanent(ctx.Err())
		}
		if err != nil {
			log.Debug("dial %s attempt %d: %v", addr, attempt, err)
			// Only transient network failures are worth another try.
			if errors.Is(err, ncerr.ErrCircuitOpen) || ncerr.IsCertificateError(err) || !ncerr.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, ncerr.Wrap("dial", addr, err)
	}
	return conn, nil
}

func (l *Listener) reportStats(ctx context.Context) {
	ticker := time.NewTicker(l.opts.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.log.Verbose("stats: %s, destination circuit %s", l.metrics.Summary(), l.breaker.CurrentState())
		}
	}
}
