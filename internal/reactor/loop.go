// Package reactor runs callbacks one at a time on a single goroutine.
//
// Every relay endpoint callback (connection made, data received,
// connection lost, shutdown retries) is posted here, so endpoint state
// is only ever touched from one goroutine and needs no locks.  Socket
// I/O happens on per-connection goroutines that post their results.
package reactor

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"gostunnel/util"
)

// Loop is an unbounded FIFO of callbacks drained by Run.
type Loop struct {
	log *util.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New returns a loop that is not yet running.  Callbacks posted before
// Run are kept and executed once it starts.
func New(log *util.Logger) *Loop {
	if log == nil {
		log = util.Discard()
	}
	return &Loop{
		log:  log,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Post enqueues fn without blocking.  It returns false once the loop
// has been stopped, in which case fn will never run.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// AfterFunc posts fn after d.  The returned function cancels the timer
// and reports whether it did so before fn was posted.
func (l *Loop) AfterFunc(d time.Duration, fn func()) func() bool {
	t := time.AfterFunc(d, func() { l.Post(fn) })
	return t.Stop
}

// Call posts fn and waits for it to finish.  It must not be used from
// inside a callback.  The result is false if fn never ran.
func (l *Loop) Call(fn func()) bool {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

// Run executes callbacks until ctx is done or Stop is called.  Work
// already queued when the loop stops is executed before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		if batch := l.take(); len(batch) > 0 {
			for _, fn := range batch {
				l.invoke(fn)
			}
			continue
		}

		select {
		case <-l.wake:
		case <-l.stop:
			l.drain()
			return nil
		case <-ctx.Done():
			l.drain()
			return nil
		}
	}
}

// Stop makes Run return after the current batch.  Safe to call more
// than once and from any goroutine, including a callback.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) take() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.queue
	l.queue = nil
	return batch
}

func (l *Loop) drain() {
	l.mu.Lock()
	l.stopped = true
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range batch {
		l.invoke(fn)
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("reactor: callback panicked: %v", r)
			l.log.Debug("reactor: %s", debug.Stack())
		}
	}()
	fn()
}
