package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/time/rate"

	ncerr "gostunnel/internal/errors"
	"gostunnel/util"
)

// HandleOptions configures a Handle.
type HandleOptions struct {
	// Limiter, when set, throttles reads.  Its burst must be at least
	// util.DefaultBufSize.
	Limiter *rate.Limiter
	Logger  *util.Logger
}

// Handle is a live socket driven by two goroutines.  Send, Close and
// the other relay.Transport methods never block on the network.
type Handle struct {
	conn    net.Conn
	loop    Poster
	proto   Protocol
	limiter *rate.Limiter
	log     *util.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	cond     *sync.Cond
	queue    [][]byte
	pending  int
	closing  bool
	finished bool
	cause    error

	finishOnce sync.Once
	closed     chan struct{}
	started    bool
}

// NewHandle wraps conn.  Nothing happens until Start.
func NewHandle(conn net.Conn, loop Poster, proto Protocol, opts HandleOptions) *Handle {
	log := opts.Logger
	if log == nil {
		log = util.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		conn:    conn,
		loop:    loop,
		proto:   proto,
		limiter: opts.Limiter,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		closed:  make(chan struct{}),
	}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// NewLimiter returns a limiter for bytesPerSec, or nil when the rate is
// not positive.
func NewLimiter(bytesPerSec int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := int(bytesPerSec)
	if burst < util.DefaultBufSize {
		burst = util.DefaultBufSize
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// Start delivers ConnectionMade and begins I/O.  It must be called on
// the reactor goroutine, once.
func (h *Handle) Start() {
	if h.started {
		return
	}
	h.started = true
	h.proto.ConnectionMade(h)
	go h.readLoop()
	go h.writeLoop()
}

// Conn returns the wrapped connection.
func (h *Handle) Conn() net.Conn { return h.conn }

// ── relay.Transport ──────────────────────────────────────────────────

// Send queues p for the writer goroutine.  Bytes sent after Close are
// dropped.
func (h *Handle) Send(p []byte) {
	if len(p) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing || h.finished {
		return
	}
	h.queue = append(h.queue, p)
	h.pending += len(p)
	h.cond.Signal()
}

// IsClosing reports whether Close, Abort or a socket error has started
// tearing the handle down.
func (h *Handle) IsClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing || h.finished
}

// PendingOutbound returns queued plus in-flight bytes.
func (h *Handle) PendingOutbound() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending
}

// Close closes the socket after pending output is written.  Closing an
// already closed handle returns net.ErrClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closing || h.finished {
		h.mu.Unlock()
		return net.ErrClosed
	}
	h.closing = true
	idle := h.pending == 0
	h.cond.Broadcast()
	h.mu.Unlock()

	if idle {
		return h.finish(nil)
	}
	return nil
}

// Abort closes the socket now and discards pending output.
func (h *Handle) Abort() {
	_ = h.finish(nil)
}

// IsSecure reports whether the socket is a TLS connection.
func (h *Handle) IsSecure() bool {
	_, ok := h.conn.(*tls.Conn)
	return ok
}

// ShutdownSecure sends TLS close_notify and then closes the socket.
// ErrNotConnected is returned when the handshake never completed.  The
// caller must not have output pending.
func (h *Handle) ShutdownSecure() error {
	tc, ok := h.conn.(*tls.Conn)
	if !ok {
		return h.finish(nil)
	}
	if !tc.ConnectionState().HandshakeComplete {
		_ = h.finish(nil)
		return ncerr.ErrNotConnected
	}

	err := tc.CloseWrite()
	if cerr := h.finish(nil); err == nil && cerr != nil && !ncerr.IsAlreadyClosed(cerr) {
		err = cerr
	}
	return err
}

// PeerAddr returns the remote host and port.
func (h *Handle) PeerAddr() (string, int) {
	addr := h.conn.RemoteAddr()
	if addr == nil {
		return "", 0
	}
	return util.SplitAddr(addr.String())
}

// ── goroutines ───────────────────────────────────────────────────────

func (h *Handle) readLoop() {
	buf := util.GetBuf()
	defer util.PutBuf(buf)

	for {
		n, err := h.conn.Read(*buf)
		if n > 0 {
			if h.limiter != nil {
				_ = h.limiter.WaitN(h.ctx, n)
			}
			chunk := util.CopyChunk((*buf)[:n])
			h.loop.Post(func() { h.proto.DataReceived(chunk) })
		}
		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) {
			h.log.Debug("read EOF")
			h.loop.Post(func() {
				if h.proto.EOFReceived() {
					_ = h.Close()
				}
			})
		} else {
			_ = h.finish(err)
		}
		break
	}

	<-h.closed
	h.loop.Post(func() { h.proto.ConnectionLost(h.cause) })
}

func (h *Handle) writeLoop() {
	for {
		h.mu.Lock()
		for len(h.queue) == 0 && !h.closing && !h.finished {
			h.cond.Wait()
		}
		if h.finished {
			h.mu.Unlock()
			return
		}
		if len(h.queue) == 0 {
			// closing with nothing left to write
			h.mu.Unlock()
			_ = h.finish(nil)
			return
		}
		bufs := net.Buffers(h.queue)
		h.queue = nil
		h.mu.Unlock()

		n, err := bufs.WriteTo(h.conn)

		h.mu.Lock()
		if !h.finished {
			h.pending -= int(n)
		}
		h.mu.Unlock()

		if err != nil {
			_ = h.finish(err)
			return
		}
	}
}

// finish closes the socket exactly once and records why.  Later calls
// return net.ErrClosed.
func (h *Handle) finish(cause error) error {
	err := net.ErrClosed
	h.finishOnce.Do(func() {
		h.mu.Lock()
		h.finished = true
		h.closing = true
		h.queue = nil
		h.pending = 0
		if cause != nil && !errors.Is(cause, net.ErrClosed) {
			h.cause = cause
		}
		h.cond.Broadcast()
		h.mu.Unlock()

		h.cancel()
		err = rawConn(h.conn).Close()
		close(h.closed)
	})
	return err
}

// rawConn skips the TLS layer so closing never blocks on a close_notify
// write.  ShutdownSecure sends close_notify explicitly.
func rawConn(c net.Conn) net.Conn {
	if tc, ok := c.(*tls.Conn); ok {
		return tc.NetConn()
	}
	return c
}
