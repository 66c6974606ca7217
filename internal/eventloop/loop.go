// Package eventloop runs posted work on a single goroutine in FIFO order.
package eventloop

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/pslog"
)

// ErrStopped is returned when work is posted after the loop stopped.
var ErrStopped = errors.New("event loop stopped")

// Loop is a single-consumer work queue. Posting never blocks the caller.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
	done    chan struct{}
	log     pslog.Logger
}

// New constructs a loop. Call Run to start draining it.
func New(logger pslog.Logger) *Loop {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	l := &Loop{
		done: make(chan struct{}),
		log:  logger,
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Start runs the loop on its own goroutine until ctx is done or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	go l.Run(ctx)
}

// Run drains the queue on the calling goroutine until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	stopWatch := context.AfterFunc(ctx, l.Stop)
	defer stopWatch()
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.stopped {
			l.queue = nil
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()
		l.run(fn)
	}
}

// Post enqueues fn.
func (l *Loop) Post(fn func()) error {
	if fn == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return ErrStopped
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	return nil
}

// Do posts fn and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop discards queued work and ends Run. Safe to call more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("event loop task panicked", "panic", r)
		}
	}()
	fn()
}
