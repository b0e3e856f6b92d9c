package infra

import (
	"context"
	"maps"
	"sync"
	"time"

	"document-gateway/middleware/ratelimit/domain"
)

// Counters agrega eventos por resultado.
type Counters struct {
	Passed    int64                    `json:"passed"`
	Rejected  int64                    `json:"rejected"`
	ByOutcome map[domain.Outcome]int64 `json:"by_outcome,omitempty"`
	// Waited soma o tempo que os chamadores passaram bloqueados no gate.
	Waited time.Duration `json:"waited_ns"`
}

func (c *Counters) add(ev domain.StatsEvent) {
	c.addN(ev.Outcome, 1)
	c.Waited += ev.Waited
}

func (c *Counters) addN(o domain.Outcome, n int64) {
	if c.ByOutcome == nil {
		c.ByOutcome = make(map[domain.Outcome]int64)
	}
	if o.Passed() {
		c.Passed += n
	} else {
		c.Rejected += n
	}
	c.ByOutcome[o] += n
}

func (c Counters) clone() Counters {
	c.ByOutcome = maps.Clone(c.ByOutcome)
	return c
}

func cloneCounters(m map[string]Counters) map[string]Counters {
	out := make(map[string]Counters, len(m))
	for k, v := range m {
		out[k] = v.clone()
	}
	return out
}

func addTo(m map[string]Counters, k string, ev domain.StatsEvent) {
	c := m[k]
	c.add(ev)
	m[k] = c
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes, para o demo e para o /stats de uma réplica.
//
// Os totais são por Stage: uma requisição que passa pelo rate limit, pelo pool
// e pelo gate conta uma vez em cada etapa, nunca três vezes no mesmo contador.
// Por cliente e por rota contam só as decisões do rate limit.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu      sync.Mutex
	byStage map[domain.Stage]Counters
	byGate  map[string]Counters
	byPool  map[string]Counters
	byRoute map[string]Counters
	byKey   map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byStage: make(map[domain.Stage]Counters),
		byGate:  make(map[string]Counters),
		byPool:  make(map[string]Counters),
		byRoute: make(map[string]Counters),
		byKey:   make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stage := ev.EffectiveStage()
	c := s.byStage[stage]
	c.add(ev)
	s.byStage[stage] = c

	switch stage {
	case domain.StageGate:
		addTo(s.byGate, ev.Gate, ev)
	case domain.StageInflight:
		addTo(s.byPool, ev.Pool, ev)
	default:
		if ev.Method != "" || ev.Path != "" {
			addTo(s.byRoute, ev.Method+" "+ev.Path, ev)
		}
		if s.trackKeys && ev.Key != "" {
			addTo(s.byKey, string(ev.Key), ev)
		}
	}
	return nil
}

// Stage devolve os contadores de uma etapa.
func (s *MemoryStatsStore) Stage(stage domain.Stage) Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byStage[stage].clone()
}

func (s *MemoryStatsStore) ByStage() map[domain.Stage]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Stage]Counters, len(s.byStage))
	for k, v := range s.byStage {
		out[k] = v.clone()
	}
	return out
}

func (s *MemoryStatsStore) ByGate() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCounters(s.byGate)
}

func (s *MemoryStatsStore) ByPool() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCounters(s.byPool)
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCounters(s.byRoute)
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCounters(s.byKey)
}
