package application

import (
	"context"
	"log/slog"
	"time"

	"document-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService limita quantas submissões ficam em andamento ao mesmo tempo.
// É independente do gate: o gate conta admissões por janela, aqui a vaga volta
// quando a submissão termina.
type ConcurrencyService struct {
	Pool domain.SlotPool
	// AcquireTimeout <= 0 espera até o ctx do chamador encerrar.
	AcquireTimeout time.Duration
	Stats          domain.StatsStore
	// Name identifica o pool nas estatísticas.
	Name   string
	Logger *slog.Logger
}

// Acquire espera uma vaga. Sem vaga dentro do prazo, retorna o erro do ctx
// (context.DeadlineExceeded quando foi o AcquireTimeout) e release nil.
func (s ConcurrencyService) Acquire(ctx context.Context, key domain.Key) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	start := time.Now()
	release, err := s.Pool.Acquire(acqCtx)
	waited := time.Since(start)

	outcome := classify(err)
	log := logger(s.Logger)
	if err != nil {
		log.Warn("no submission slot", "pool", s.Name, "key", key, "outcome", outcome,
			"waited", waited, "in_use", s.Pool.InUse(), "size", s.Pool.Size())
	}
	recordStats(ctx, s.Stats, log, domain.StatsEvent{
		Key:     key,
		Stage:   domain.StageInflight,
		Pool:    s.Name,
		Outcome: outcome,
		Waited:  waited,
		At:      time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return release, nil
}
