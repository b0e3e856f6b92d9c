package ratelimit

import (
	"log/slog"
	"net/http"
	"time"

	"document-gateway/middleware/ratelimit/application"
	"document-gateway/middleware/ratelimit/domain"
	"document-gateway/middleware/ratelimit/infra"
)

// InFlightPool é o nome do pool de submissões nas estatísticas.
const InFlightPool = "inflight"

// ConcurrencyOptions limita quantas requisições ficam presas no gateway ao mesmo
// tempo (muitas delas podem estar esperando a próxima janela do gate).
type ConcurrencyOptions struct {
	// Pool já criado (ex: com gauges registrados). Se nil, é criado com Max vagas.
	Pool           domain.SlotPool
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// RetryAfter, se > 0, vai no header da rejeição.
	RetryAfter time.Duration
	Stats      domain.StatsStore
	Logger     *slog.Logger
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	pool := opts.Pool
	if pool == nil {
		pool = infra.NewSlotPool(opts.Max)
	}
	if pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	svc := application.ConcurrencyService{
		Pool:           pool,
		AcquireTimeout: opts.AcquireTimeout,
		Stats:          opts.Stats,
		Name:           InFlightPool,
		Logger:         opts.Logger,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context(), domain.KeyFromContext(r.Context()))
			if err != nil {
				if r.Context().Err() != nil {
					return // cliente desistiu
				}
				if opts.RetryAfter > 0 {
					w.Header().Set("Retry-After", formatSeconds(opts.RetryAfter))
				}
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
