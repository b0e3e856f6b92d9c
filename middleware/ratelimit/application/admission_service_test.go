package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"document-gateway/middleware/ratelimit/domain"
)

type fakeGate struct {
	err     error
	block   bool
	calls   int
	mu      sync.Mutex
	stopped bool
}

func (g *fakeGate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return g.err
}

func (g *fakeGate) Shutdown() { g.stopped = true }

type recordingStats struct {
	mu     sync.Mutex
	events []domain.StatsEvent
	err    error
}

func (r *recordingStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func TestAdmissionService_AdmitsWhenNoGate(t *testing.T) {
	adm, err := AdmissionService{}.Admit(context.Background(), "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adm.Outcome != domain.OutcomeAdmitted {
		t.Fatalf("expected admitted, got %s", adm.Outcome)
	}
}

func TestAdmissionService_RecordsAdmission(t *testing.T) {
	gate := &fakeGate{}
	stats := &recordingStats{}
	svc := AdmissionService{Gate: gate, Stats: stats, Name: "crpt"}

	adm, err := svc.Admit(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adm.Outcome != domain.OutcomeAdmitted {
		t.Fatalf("expected admitted, got %s", adm.Outcome)
	}
	if gate.calls != 1 {
		t.Fatalf("expected exactly one Acquire, got %d", gate.calls)
	}
	if len(stats.events) != 1 {
		t.Fatalf("expected 1 stats event, got %d", len(stats.events))
	}
	ev := stats.events[0]
	if ev.Gate != "crpt" || ev.Stage != domain.StageGate || ev.Key != "client-1" || ev.Outcome != domain.OutcomeAdmitted || ev.At.IsZero() {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestAdmissionService_UsesTimeout(t *testing.T) {
	stats := &recordingStats{}
	svc := AdmissionService{Gate: &fakeGate{block: true}, Stats: stats, AcquireTimeout: 10 * time.Millisecond}

	adm, err := svc.Admit(context.Background(), "k")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if adm.Outcome != domain.OutcomeTimeout {
		t.Fatalf("expected timeout outcome, got %s", adm.Outcome)
	}
	if adm.Waited < 10*time.Millisecond {
		t.Fatalf("expected wait >= timeout, got %s", adm.Waited)
	}
	// o evento é gravado mesmo com o ctx do acquire expirado
	if len(stats.events) != 1 {
		t.Fatalf("expected timeout to be recorded, got %d events", len(stats.events))
	}
}

func TestAdmissionService_ClassifiesOutcomes(t *testing.T) {
	cases := []struct {
		err  error
		want domain.Outcome
	}{
		{domain.ErrGateClosed, domain.OutcomeClosed},
		{context.Canceled, domain.OutcomeCancelled},
		{context.DeadlineExceeded, domain.OutcomeTimeout},
	}
	for _, tc := range cases {
		svc := AdmissionService{Gate: &fakeGate{err: tc.err}}
		adm, err := svc.Admit(context.Background(), "k")
		if !errors.Is(err, tc.err) {
			t.Fatalf("expected error %v to pass through, got %v", tc.err, err)
		}
		if adm.Outcome != tc.want {
			t.Fatalf("err %v: expected %s, got %s", tc.err, tc.want, adm.Outcome)
		}
	}
}

func TestAdmissionService_StatsErrorDoesNotFailAdmission(t *testing.T) {
	svc := AdmissionService{Gate: &fakeGate{}, Stats: &recordingStats{err: errors.New("redis down")}}
	if _, err := svc.Admit(context.Background(), "k"); err != nil {
		t.Fatalf("stats failure must not surface to the caller, got %v", err)
	}
}

func TestAdmissionService_ActsAsGate(t *testing.T) {
	gate := &fakeGate{}
	stats := &recordingStats{}
	var g domain.Gate = AdmissionService{Gate: gate, Stats: stats, Name: "crpt"}

	ctx := domain.WithKey(context.Background(), "client-9")
	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats.events) != 1 || stats.events[0].Key != "client-9" {
		t.Fatalf("expected event keyed by context key, got %+v", stats.events)
	}

	g.Shutdown()
	if !gate.stopped {
		t.Fatal("expected Shutdown to reach the wrapped gate")
	}
}
