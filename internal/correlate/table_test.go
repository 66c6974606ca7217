package correlate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pkt.systems/mdsurface/schema"
)

func TestResolveSettlesPending(t *testing.T) {
	table := New[string](time.Second)
	p, err := table.Register("r1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !table.Resolve("r1", "assets/a.png") {
		t.Fatalf("expected resolve to find the entry")
	}
	got, err := p.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got != "assets/a.png" {
		t.Fatalf("unexpected value %q", got)
	}
	if table.Len() != 0 {
		t.Fatalf("expected table to be empty")
	}
}

func TestRejectSettlesPending(t *testing.T) {
	table := New[string](time.Second)
	p, _ := table.Register("r1")
	boom := errors.New("boom")
	table.Reject("r1", boom)
	if _, err := p.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRegisterRejectsDuplicateAndEmpty(t *testing.T) {
	table := New[string](time.Second)
	defer table.CancelAll("")
	if _, err := table.Register("r1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := table.Register("r1"); !errors.Is(err, schema.ErrDuplicateRequestID) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := table.Register(""); !errors.Is(err, schema.ErrMissingRequestID) {
		t.Fatalf("expected missing id error, got %v", err)
	}
}

func TestTimeoutRejectsAndLateResolveIsNoop(t *testing.T) {
	table := New[string](20 * time.Millisecond)
	p, err := table.Register("r1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for timeout")
	}
	if _, err := p.Wait(context.Background()); !errors.Is(err, schema.ErrOperationTimedOut) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if table.Resolve("r1", "late") {
		t.Fatalf("expected late resolve to be ignored")
	}
	if table.Reject("r1", errors.New("late")) {
		t.Fatalf("expected late reject to be ignored")
	}
}

func TestCancelAllIsIdempotent(t *testing.T) {
	table := New[string](time.Minute)
	a, _ := table.Register("a")
	b, _ := table.Register("b")
	table.CancelAll("surface disposed")
	table.CancelAll("again")
	for _, p := range []*Pending[string]{a, b} {
		if _, err := p.Wait(context.Background()); !errors.Is(err, schema.ErrSessionClosed) {
			t.Fatalf("expected session closed, got %v", err)
		}
	}
	if _, err := table.Register("c"); !errors.Is(err, schema.ErrSessionClosed) {
		t.Fatalf("expected register after close to fail, got %v", err)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	table := New[string](time.Minute)
	defer table.CancelAll("")
	p, _ := table.Register("r1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("expected entry to stay pending")
	}
}

func TestConcurrentOperationsAreIndependent(t *testing.T) {
	table := New[int](time.Second)
	const n = 64
	ids := make([]schema.RequestID, n)
	pending := make([]*Pending[int], n)
	for i := range ids {
		ids[i] = NewID()
		p, err := table.Register(ids[i])
		if err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
		pending[i] = p
	}
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			table.Resolve(ids[i], i)
		}(i)
	}
	wg.Wait()
	for i, p := range pending {
		got, err := p.Wait(context.Background())
		if err != nil || got != i {
			t.Fatalf("pending %d: got %d, %v", i, got, err)
		}
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[schema.RequestID]struct{})
	for i := 0; i < 1000; i++ {
		id := NewID()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}
