package infra

import (
	"context"
	"sync"
	"time"

	"document-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// ClientBuckets mantém um token bucket (x/time/rate) por cliente. Um cliente
// visto pela primeira vez começa com o balde cheio; clientes parados por mais
// de idleTTL são descartados pela varredura.
type ClientBuckets struct {
	limit rate.Limit
	burst int

	idleTTL    time.Duration
	sweepEvery time.Duration
	maxClients int

	mu      sync.Mutex
	buckets map[domain.Key]*bucket
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

type BucketOption func(*ClientBuckets)

func WithIdleTTL(d time.Duration) BucketOption {
	return func(b *ClientBuckets) { b.idleTTL = d }
}

// WithSweepEvery define o intervalo do janitor. 0 desliga.
func WithSweepEvery(d time.Duration) BucketOption {
	return func(b *ClientBuckets) { b.sweepEvery = d }
}

// WithMaxClients limita quantos clientes ficam em memória. Quando cheio, o
// cliente parado há mais tempo sai para dar lugar ao novo.
func WithMaxClients(n int) BucketOption {
	return func(b *ClientBuckets) { b.maxClients = n }
}

func NewClientBuckets(rps float64, burst int, opts ...BucketOption) *ClientBuckets {
	b := &ClientBuckets{
		limit:      rate.Limit(rps),
		burst:      burst,
		idleTTL:    15 * time.Minute,
		sweepEvery: 2 * time.Minute,
		buckets:    make(map[domain.Key]*bucket),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ domain.ClientLimiter = (*ClientBuckets)(nil)

func (b *ClientBuckets) RPS() float64 { return float64(b.limit) }
func (b *ClientBuckets) Burst() int   { return b.burst }

func (b *ClientBuckets) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buckets)
}

// Decide consome um token do cliente. Sem token, a reserva é desfeita e o
// atraso dela vira o RetryAfter da decisão.
func (b *ClientBuckets) Decide(key domain.Key, now time.Time) domain.Decision {
	lim := b.limiter(key, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		// burst 0: o cliente nunca passa
		return domain.Decision{}
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return domain.Decision{Allowed: true}
	}
	r.CancelAt(now)
	return domain.Decision{RetryAfter: delay}
}

func (b *ClientBuckets) limiter(key domain.Key, now time.Time) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	if bk, ok := b.buckets[key]; ok {
		bk.seen = now
		return bk.lim
	}

	if b.maxClients > 0 && len(b.buckets) >= b.maxClients {
		b.evictOldestLocked()
	}
	bk := &bucket{lim: rate.NewLimiter(b.limit, b.burst), seen: now}
	b.buckets[key] = bk
	return bk.lim
}

func (b *ClientBuckets) evictOldestLocked() {
	var (
		oldest domain.Key
		at     time.Time
		found  bool
	)
	for k, bk := range b.buckets {
		if !found || bk.seen.Before(at) {
			oldest, at, found = k, bk.seen, true
		}
	}
	if found {
		delete(b.buckets, oldest)
	}
}

// Sweep remove clientes sem requisição desde now-idleTTL e retorna quantos saíram.
func (b *ClientBuckets) Sweep(now time.Time) int {
	cutoff := now.Add(-b.idleTTL)

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for k, bk := range b.buckets {
		if bk.seen.Before(cutoff) {
			delete(b.buckets, k)
			removed++
		}
	}
	return removed
}

// StartJanitor varre clientes parados a cada sweepEvery até ctx encerrar.
func (b *ClientBuckets) StartJanitor(ctx context.Context) {
	if b.sweepEvery <= 0 {
		return
	}

	t := time.NewTicker(b.sweepEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				b.Sweep(now)
			}
		}
	}()
}
