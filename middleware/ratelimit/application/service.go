package application

import (
	"context"
	"log/slog"
	"time"

	"document-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de rate limit por cliente na entrada do gateway.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Limiter domain.ClientLimiter
	Stats   domain.StatsStore
	// RetryAfter é usado quando o limiter nega sem saber quanto falta.
	RetryAfter time.Duration
	Logger     *slog.Logger
}

// Request é o mínimo que o Service precisa saber de uma requisição.
type Request struct {
	Key    domain.Key
	Method string
	Path   string
}

func (s Service) Decide(ctx context.Context, req Request) domain.Decision {
	now := time.Now()
	dec := s.decide(req.Key, now)

	if !dec.Allowed {
		logger(s.Logger).Debug("client rate limited", "key", req.Key, "retry_after", dec.RetryAfter)
	}
	recordStats(ctx, s.Stats, logger(s.Logger), domain.StatsEvent{
		Key:     req.Key,
		Stage:   domain.StageRate,
		Outcome: dec.Outcome(),
		Method:  req.Method,
		Path:    req.Path,
		At:      now,
	})
	return dec
}

func (s Service) decide(key domain.Key, now time.Time) domain.Decision {
	if s.Limiter == nil {
		return domain.Decision{Allowed: true}
	}

	dec := s.Limiter.Decide(key, now)
	if !dec.Allowed && dec.RetryAfter <= 0 {
		dec.RetryAfter = s.RetryAfter
		if dec.RetryAfter <= 0 {
			dec.RetryAfter = time.Second
		}
	}
	return dec
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
