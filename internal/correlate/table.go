// Package correlate tracks asynchronous requests awaiting a matching response.
package correlate

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pkt.systems/mdsurface/schema"
)

// DefaultTimeout bounds how long a pending operation may wait for its response.
const DefaultTimeout = 30 * time.Second

var fallbackSeq atomic.Uint64

// NewID returns an identifier unique for the lifetime of the process. It uses a
// random UUID and falls back to a counter plus timestamp if the random source fails.
func NewID() schema.RequestID {
	id, err := uuid.NewRandom()
	if err == nil {
		return schema.RequestID(id.String())
	}
	seq := fallbackSeq.Add(1)
	return schema.RequestID("req-" + strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(seq, 36))
}

// Pending is one outstanding correlated operation.
type Pending[T any] struct {
	id      schema.RequestID
	created time.Time
	done    chan struct{}
	once    sync.Once
	value   T
	err     error
	timer   *time.Timer
}

// ID returns the request id.
func (p *Pending[T]) ID() schema.RequestID {
	return p.id
}

// Created returns when the operation was registered.
func (p *Pending[T]) Created() time.Time {
	return p.created
}

// Done is closed once the operation settles.
func (p *Pending[T]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the operation settles or ctx is done. Cancelling ctx does
// not remove the entry; the table still settles it later.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (p *Pending[T]) settle(value T, err error) {
	p.once.Do(func() {
		p.value = value
		p.err = err
		close(p.done)
	})
}

// Table maps request ids to pending operations, each independently timed.
type Table[T any] struct {
	mu      sync.Mutex
	timeout time.Duration
	pending map[schema.RequestID]*Pending[T]
	closed  error
	now     func() time.Time
}

// New constructs a table. A non-positive timeout uses DefaultTimeout.
func New[T any](timeout time.Duration) *Table[T] {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Table[T]{
		timeout: timeout,
		pending: make(map[schema.RequestID]*Pending[T]),
		now:     time.Now,
	}
}

// Timeout returns the per-operation timeout.
func (t *Table[T]) Timeout() time.Duration {
	return t.timeout
}

// Register adds a pending operation for id and arms its timeout.
func (t *Table[T]) Register(id schema.RequestID) (*Pending[T], error) {
	if id == "" {
		return nil, schema.ErrMissingRequestID
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed != nil {
		return nil, t.closed
	}
	if _, ok := t.pending[id]; ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrDuplicateRequestID, id)
	}
	p := &Pending[T]{
		id:      id,
		created: t.now(),
		done:    make(chan struct{}),
	}
	p.timer = time.AfterFunc(t.timeout, func() { t.expire(p) })
	t.pending[id] = p
	return p, nil
}

// Resolve settles id with value. Unknown ids are ignored; a response may arrive
// after the timeout already fired.
func (t *Table[T]) Resolve(id schema.RequestID, value T) bool {
	p := t.take(id)
	if p == nil {
		return false
	}
	p.settle(value, nil)
	return true
}

// Reject settles id with err. Unknown ids are ignored.
func (t *Table[T]) Reject(id schema.RequestID, err error) bool {
	p := t.take(id)
	if p == nil {
		return false
	}
	var zero T
	p.settle(zero, err)
	return true
}

// CancelAll rejects every pending operation with schema.ErrSessionClosed and
// refuses new registrations. Calling it again is a no-op.
func (t *Table[T]) CancelAll(reason string) {
	t.mu.Lock()
	if t.closed != nil {
		t.mu.Unlock()
		return
	}
	t.closed = schema.ErrSessionClosed
	if reason != "" {
		t.closed = fmt.Errorf("%w: %s", schema.ErrSessionClosed, reason)
	}
	closed := t.closed
	pending := t.pending
	t.pending = make(map[schema.RequestID]*Pending[T])
	t.mu.Unlock()

	var zero T
	for _, p := range pending {
		p.timer.Stop()
		p.settle(zero, closed)
	}
}

// Len returns the number of pending operations.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *Table[T]) take(id schema.RequestID) *Pending[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[id]
	if !ok {
		return nil
	}
	delete(t.pending, id)
	p.timer.Stop()
	return p
}

func (t *Table[T]) expire(p *Pending[T]) {
	t.mu.Lock()
	current, ok := t.pending[p.id]
	if !ok || current != p {
		t.mu.Unlock()
		return
	}
	delete(t.pending, p.id)
	t.mu.Unlock()
	var zero T
	p.settle(zero, fmt.Errorf("%w after %s", schema.ErrOperationTimedOut, t.timeout))
}
