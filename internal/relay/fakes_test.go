package relay

import (
	"bytes"
	"time"
)

// fakeTransport records what an endpoint does to its socket.
type fakeTransport struct {
	sent        [][]byte
	pending     int
	closing     bool
	closeCalls  int
	closeErr    error
	secure      bool
	secureCalls int
	secureErr   error
	aborted     bool
	host        string
	port        int
}

func newFakeTransport(host string, port int) *fakeTransport {
	return &fakeTransport{host: host, port: port}
}

func (f *fakeTransport) Send(p []byte) {
	f.sent = append(f.sent, append([]byte(nil), p...))
}

func (f *fakeTransport) IsClosing() bool      { return f.closing }
func (f *fakeTransport) PendingOutbound() int { return f.pending }
func (f *fakeTransport) IsSecure() bool       { return f.secure }
func (f *fakeTransport) PeerAddr() (string, int) {
	return f.host, f.port
}

func (f *fakeTransport) Close() error {
	f.closeCalls++
	if f.closeErr != nil {
		return f.closeErr
	}
	f.closing = true
	return nil
}

func (f *fakeTransport) Abort() {
	f.aborted = true
	f.closing = true
}

func (f *fakeTransport) ShutdownSecure() error {
	f.secureCalls++
	return f.secureErr
}

func (f *fakeTransport) wire() []byte { return bytes.Join(f.sent, nil) }

// manualScheduler holds timers until the test fires them.
type manualScheduler struct {
	timers []*manualTimer
	posted []func()
}

type manualTimer struct {
	d         time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

func (s *manualScheduler) Post(fn func()) bool {
	s.posted = append(s.posted, fn)
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) func() bool {
	t := &manualTimer{d: d, fn: fn}
	s.timers = append(s.timers, t)
	return func() bool {
		if t.fired || t.cancelled {
			return false
		}
		t.cancelled = true
		return true
	}
}

// armed returns the timers that have neither fired nor been cancelled.
func (s *manualScheduler) armed() []*manualTimer {
	var out []*manualTimer
	for _, t := range s.timers {
		if !t.fired && !t.cancelled {
			out = append(out, t)
		}
	}
	return out
}

// fire runs every armed timer once, including ones armed while firing
// only on the next call.
func (s *manualScheduler) fire() int {
	due := s.armed()
	for _, t := range due {
		t.fired = true
		t.fn()
	}
	return len(due)
}
