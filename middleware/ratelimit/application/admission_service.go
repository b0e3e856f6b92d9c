package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"document-gateway/middleware/ratelimit/domain"
)

// AdmissionService envolve um domain.Gate: aplica o timeout de espera do chamador,
// mede quanto tempo ele ficou bloqueado e registra o resultado, sem saber nada
// sobre HTTP.
type AdmissionService struct {
	Gate  domain.Gate
	Stats domain.StatsStore
	// Name identifica o gate nas estatísticas e logs.
	Name string
	// AcquireTimeout <= 0 espera indefinidamente (até ctx cancelar).
	AcquireTimeout time.Duration
	Logger         *slog.Logger
}

// Admission descreve uma tentativa de passar pelo gate.
type Admission struct {
	Outcome domain.Outcome
	Waited  time.Duration
}

var _ domain.Gate = AdmissionService{}

// Acquire permite usar o serviço no lugar do próprio gate; a chave do cliente
// vem de domain.KeyFromContext.
func (s AdmissionService) Acquire(ctx context.Context) error {
	_, err := s.Admit(ctx, domain.KeyFromContext(ctx))
	return err
}

func (s AdmissionService) Shutdown() {
	if s.Gate != nil {
		s.Gate.Shutdown()
	}
}

// Admit bloqueia até o gate admitir o chamador. O erro do gate volta sem
// alteração (domain.ErrGateClosed, context.DeadlineExceeded, context.Canceled).
func (s AdmissionService) Admit(ctx context.Context, key domain.Key) (Admission, error) {
	if s.Gate == nil {
		return Admission{Outcome: domain.OutcomeAdmitted}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	start := time.Now()
	err := s.Gate.Acquire(acqCtx)
	adm := Admission{Outcome: classify(err), Waited: time.Since(start)}

	s.record(ctx, key, adm)
	return adm, err
}

func classify(err error) domain.Outcome {
	switch {
	case err == nil:
		return domain.OutcomeAdmitted
	case errors.Is(err, domain.ErrGateClosed):
		return domain.OutcomeClosed
	case errors.Is(err, context.DeadlineExceeded):
		return domain.OutcomeTimeout
	default:
		return domain.OutcomeCancelled
	}
}

func (s AdmissionService) record(ctx context.Context, key domain.Key, adm Admission) {
	log := logger(s.Logger)

	attrs := []any{"gate", s.Name, "outcome", adm.Outcome, "waited", adm.Waited}
	if adm.Outcome.Passed() {
		log.Debug("gate admission", attrs...)
	} else {
		log.Warn("gate admission failed", attrs...)
	}

	recordStats(ctx, s.Stats, log, domain.StatsEvent{
		Key:     key,
		Stage:   domain.StageGate,
		Gate:    s.Name,
		Outcome: adm.Outcome,
		Waited:  adm.Waited,
		At:      time.Now(),
	})
}

// recordStats é best-effort: não usa o ctx do chamador, que pode já ter
// expirado, e só loga a falha.
func recordStats(ctx context.Context, stats domain.StatsStore, log *slog.Logger, ev domain.StatsEvent) {
	if stats == nil {
		return
	}
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := stats.Record(recCtx, ev); err != nil {
		log.Warn("stats record failed", "stage", ev.EffectiveStage(), "key", ev.Key, "err", err)
	}
}
