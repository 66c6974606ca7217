package outline

import (
	"sync"
	"time"
)

// FrameInterval approximates one rendering frame.
const FrameInterval = 16 * time.Millisecond

// FrameSource runs fn on the next frame and returns a cancel func.
type FrameSource interface {
	RequestFrame(fn func()) (cancel func())
}

// TimerFrames schedules frames with a timer and hands the callback to Post,
// which should run it on the owning event loop.
type TimerFrames struct {
	Interval time.Duration
	Post     func(func()) error
}

// RequestFrame implements FrameSource.
func (f TimerFrames) RequestFrame(fn func()) func() {
	interval := f.Interval
	if interval <= 0 {
		interval = FrameInterval
	}
	timer := time.AfterFunc(interval, func() {
		if f.Post == nil {
			fn()
			return
		}
		_ = f.Post(fn)
	})
	return func() { timer.Stop() }
}

// Throttle coalesces requests so at most one pass is pending. A request that
// arrives before the pending pass ran cancels and replaces it.
type Throttle struct {
	mu      sync.Mutex
	frames  FrameSource
	gen     uint64
	ranGen  uint64
	cancel  func()
	stopped bool
}

// NewThrottle constructs a throttle over frames.
func NewThrottle(frames FrameSource) *Throttle {
	return &Throttle{frames: frames}
}

// Schedule replaces any pending pass with fn.
func (t *Throttle) Schedule(fn func()) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.gen++
	gen := t.gen
	t.mu.Unlock()

	cancel := t.frames.RequestFrame(func() {
		t.mu.Lock()
		if t.stopped || gen != t.gen {
			t.mu.Unlock()
			return
		}
		t.cancel = nil
		t.ranGen = gen
		t.mu.Unlock()
		fn()
	})

	t.mu.Lock()
	if gen == t.gen && t.ranGen != gen && !t.stopped {
		t.cancel = cancel
	} else {
		cancel()
	}
	t.mu.Unlock()
}

// Pending reports whether a pass is scheduled and not yet run.
func (t *Throttle) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Stop cancels the pending pass and ignores later requests.
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}
