package infra

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"document-gateway/middleware/ratelimit/domain"
)

// janela longa: nos testes o reset é disparado à mão com g.reset().
const manualWindow = time.Hour

func newManualGate(t *testing.T, capacity int) *WindowGate {
	t.Helper()
	g, err := NewWindowGate(manualWindow, capacity)
	if err != nil {
		t.Fatalf("NewWindowGate: %v", err)
	}
	t.Cleanup(g.Shutdown)
	return g
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waiting(g *WindowGate) func() bool {
	return func() bool { return g.Snapshot().Waiting > 0 }
}

func TestNewWindowGate_RejectsInvalidConfiguration(t *testing.T) {
	cases := []struct {
		name     string
		window   time.Duration
		capacity int
	}{
		{"zero capacity", time.Second, 0},
		{"negative capacity", time.Second, -1},
		{"zero window", 0, 1},
		{"negative window", -time.Second, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, err := NewWindowGate(tc.window, tc.capacity)
			if !errors.Is(err, domain.ErrInvalidConfiguration) {
				t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
			}
			if g != nil {
				t.Fatalf("expected nil gate on invalid configuration")
			}
		})
	}

	g, err := NewWindowGate(time.Second, 1)
	if err != nil {
		t.Fatalf("expected capacity=1 to be valid, got %v", err)
	}
	g.Shutdown()
}

func TestWindowGate_FastPathThenBlocks(t *testing.T) {
	g := newManualGate(t, 3)

	for i := 0; i < 3; i++ {
		if err := g.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if got := g.Snapshot().Available; got != 0 {
		t.Fatalf("expected 0 available, got %d", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := g.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected 4th acquire to block until deadline, got %v", err)
	}
	if got := g.Snapshot().Waiting; got != 0 {
		t.Fatalf("expected timed-out caller to leave the queue, %d still waiting", got)
	}
}

func TestWindowGate_AdmitsAtMostCapacityPerWindow(t *testing.T) {
	g := newManualGate(t, 3)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Acquire(context.Background()); err == nil {
				admitted.Add(1)
			}
		}()
	}

	waitFor(t, "7 callers queued", func() bool { return g.Snapshot().Waiting == 7 })
	if got := admitted.Load(); got != 3 {
		t.Fatalf("expected 3 admitted in first window, got %d", got)
	}

	for _, want := range []int32{6, 9, 10} {
		g.reset()
		waitFor(t, "next batch", func() bool { return admitted.Load() == want })
		// nada além do lote da janela entra
		time.Sleep(10 * time.Millisecond)
		if got := admitted.Load(); got != want {
			t.Fatalf("expected %d admitted after reset, got %d", want, got)
		}
	}

	wg.Wait()
	if got := g.Snapshot().Available; got != 2 {
		t.Fatalf("expected 2 leftover slots in last window, got %d", got)
	}
}

func TestWindowGate_FIFOOrder(t *testing.T) {
	g := newManualGate(t, 1)
	if err := g.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	order := make(chan int, 5)
	for i := 0; i < 5; i++ {
		go func() {
			if err := g.Acquire(context.Background()); err == nil {
				order <- i
			}
		}()
		want := i + 1
		waitFor(t, "caller queued", func() bool { return g.Snapshot().Waiting == want })
	}

	for want := 0; want < 5; want++ {
		g.reset()
		select {
		case got := <-order:
			if got != want {
				t.Fatalf("expected caller %d admitted, got %d", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for caller %d", want)
		}
	}
}

func TestWindowGate_NoCarryOver(t *testing.T) {
	g := newManualGate(t, 3)

	if err := g.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	g.reset()

	if got := g.Snapshot().Available; got != 3 {
		t.Fatalf("expected window to start with capacity 3, got %d", got)
	}
	for i := 0; i < 3; i++ {
		if err := g.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Acquire(ctx); err == nil {
		t.Fatalf("expected 4th acquire in the same window to block")
	}
}

func TestWindowGate_NewcomerDoesNotOvertakeQueue(t *testing.T) {
	g := newManualGate(t, 2)
	for i := 0; i < 2; i++ {
		_ = g.Acquire(context.Background())
	}

	admitted := make(chan int, 3)
	for i := 0; i < 3; i++ {
		go func() {
			if err := g.Acquire(context.Background()); err == nil {
				admitted <- i
			}
		}()
		want := i + 1
		waitFor(t, "caller queued", func() bool { return g.Snapshot().Waiting == want })
	}

	g.reset()
	first := map[int]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-admitted:
			first[id] = true
		case <-time.After(time.Second):
			t.Fatal("timeout waiting first batch")
		}
	}
	if !first[0] || !first[1] {
		t.Fatalf("expected callers 0 and 1 in first batch, got %v", first)
	}

	// caller 2 ainda espera; quem chega agora vai para trás dele
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected newcomer to queue behind earlier waiter, got %v", err)
	}

	g.reset()
	select {
	case id := <-admitted:
		if id != 2 {
			t.Fatalf("expected caller 2, got %d", id)
		}
	case <-time.After(time.Second):
		t.Fatal("earlier waiter was not admitted")
	}
	if got := g.Snapshot().Available; got != 1 {
		t.Fatalf("expected 1 slot left after admitting the earlier waiter, got %d", got)
	}
}

func TestWindowGate_CancelledWaiterWithdraws(t *testing.T) {
	g := newManualGate(t, 1)
	_ = g.Acquire(context.Background())

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() { errA <- g.Acquire(ctxA) }()
	waitFor(t, "A queued", waiting(g))

	errB := make(chan error, 1)
	go func() { errB <- g.Acquire(context.Background()) }()
	waitFor(t, "B queued", func() bool { return g.Snapshot().Waiting == 2 })

	cancelA()
	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled for A, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("A did not return after cancel")
	}
	if got := g.Snapshot().Waiting; got != 1 {
		t.Fatalf("expected only B waiting, got %d", got)
	}

	g.reset()
	select {
	case err := <-errB:
		if err != nil {
			t.Fatalf("expected B admitted, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("B was not admitted after reset")
	}
	if got := g.Snapshot().Available; got != 0 {
		t.Fatalf("expected the single slot consumed by B, got %d available", got)
	}
}

func enqueueRaw(g *WindowGate) *waiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	w := &waiter{ready: make(chan struct{})}
	w.elem = g.queue.PushBack(w)
	return w
}

func TestWindowGate_WithdrawAfterAdmissionReturnsSlot(t *testing.T) {
	g := newManualGate(t, 1)
	_ = g.Acquire(context.Background())

	// A recebe a vaga no reset, mas desiste antes de usá-la
	a := enqueueRaw(g)
	errB := make(chan error, 1)
	go func() { errB <- g.Acquire(context.Background()) }()
	waitFor(t, "B queued", func() bool { return g.Snapshot().Waiting == 2 })

	g.reset()
	select {
	case <-a.ready:
	default:
		t.Fatal("expected A admitted by reset")
	}

	g.withdraw(a)
	select {
	case err := <-errB:
		if err != nil {
			t.Fatalf("expected B to receive A's slot, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("slot withdrawn by A was not handed to B")
	}
	if got := g.Snapshot().Available; got != 0 {
		t.Fatalf("expected 0 available, got %d", got)
	}
}

func TestWindowGate_WithdrawAfterNextWindowDoesNotRefund(t *testing.T) {
	g := newManualGate(t, 2)
	_ = g.Acquire(context.Background())
	_ = g.Acquire(context.Background())

	a := enqueueRaw(g)
	g.reset()
	g.reset()

	g.withdraw(a)
	if got := g.Snapshot().Available; got != 2 {
		t.Fatalf("stale slot must not be refunded into a new window, got %d available", got)
	}
}

func TestWindowGate_AlreadyCancelledContext(t *testing.T) {
	g := newManualGate(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := g.Snapshot().Available; got != 1 {
		t.Fatalf("cancelled caller must not consume a slot, got %d available", got)
	}
}

func TestWindowGate_ShutdownReleasesWaiters(t *testing.T) {
	g, err := NewWindowGate(manualWindow, 1)
	if err != nil {
		t.Fatal(err)
	}
	_ = g.Acquire(context.Background())

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() { errs <- g.Acquire(context.Background()) }()
	}
	waitFor(t, "3 queued", func() bool { return g.Snapshot().Waiting == 3 })

	g.Shutdown()

	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			if !errors.Is(err, domain.ErrGateClosed) {
				t.Fatalf("expected ErrGateClosed, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("waiter hung after shutdown")
		}
	}

	done := make(chan error, 1)
	go func() { done <- g.Acquire(context.Background()) }()
	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrGateClosed) {
			t.Fatalf("expected ErrGateClosed after shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("acquire after shutdown did not fail fast")
	}

	if !g.Snapshot().Closed {
		t.Fatal("expected snapshot to report closed")
	}
}

func TestWindowGate_ShutdownIsIdempotent(t *testing.T) {
	g, err := NewWindowGate(10*time.Millisecond, 2)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		g.Shutdown()
		g.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("double shutdown hung")
	}

	// ticker parado: nenhum reset depois do shutdown
	gen := g.Snapshot().Generation
	time.Sleep(30 * time.Millisecond)
	if got := g.Snapshot().Generation; got != gen {
		t.Fatalf("expected no resets after shutdown, generation %d -> %d", gen, got)
	}
}

func TestWindowGate_TickerBatchesAdmissions(t *testing.T) {
	const window = 50 * time.Millisecond
	start := time.Now()
	g, err := NewWindowGate(window, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Shutdown()

	var mu sync.Mutex
	var at []time.Duration
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Acquire(context.Background()); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			at = append(at, time.Since(start))
			mu.Unlock()
		}()
	}

	finished := make(chan struct{})
	go func() { wg.Wait(); close(finished) }()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("callers were not admitted within 5s")
	}

	sort.Slice(at, func(i, j int) bool { return at[i] < at[j] })
	if len(at) != 10 {
		t.Fatalf("expected 10 admissions, got %d", len(at))
	}
	// lotes de 3: [0..2] imediatos, [3..5] após 1 janela, [6..8] após 2, [9] após 3
	for i, d := range at {
		minWindows := time.Duration(i / 3)
		if d < minWindows*window {
			t.Fatalf("admission %d at %s, before window boundary %s", i, d, minWindows*window)
		}
	}
}

func TestWindowGate_FirstResetAfterOneWindow(t *testing.T) {
	const window = 60 * time.Millisecond
	start := time.Now()
	g, err := NewWindowGate(window, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Shutdown()

	if got := g.Snapshot().Generation; got != 0 {
		t.Fatalf("expected no reset at construction, generation=%d", got)
	}

	var resetAt time.Duration
	waitFor(t, "first reset", func() bool {
		if g.Snapshot().Generation >= 1 {
			resetAt = time.Since(start)
			return true
		}
		return false
	})
	if resetAt < window {
		t.Fatalf("first reset after %s, expected at least one window (%s)", resetAt, window)
	}
}

func BenchmarkWindowGate_AcquireFastPath(b *testing.B) {
	g, err := NewWindowGate(manualWindow, 1<<30)
	if err != nil {
		b.Fatal(err)
	}
	defer g.Shutdown()

	ctx := context.Background()
	for b.Loop() {
		_ = g.Acquire(ctx)
	}
}
