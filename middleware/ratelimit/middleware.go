package ratelimit

import (
	"log/slog"
	"net/http"
	"time"

	"document-gateway/middleware/ratelimit/application"
	"document-gateway/middleware/ratelimit/domain"
)

// Options configura o rate limit por cliente na entrada do gateway. Ele corta
// clientes abusivos antes que ocupem lugar na fila do gate da API remota.
type Options struct {
	Limiter            domain.ClientLimiter
	Stats              domain.StatsStore
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	RejectStatus       int
	// RetryAfter é o fallback quando o limiter não informa quanto falta.
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	Logger              *slog.Logger
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

// Middleware rejeita com RejectStatus (429) e Retry-After quando o cliente
// estourou seu limite. Se passa, a chave do cliente segue no contexto
// (domain.KeyFromContext) para as estatísticas do gate.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}

	svc := application.Service{
		Limiter:    opts.Limiter,
		Stats:      opts.Stats,
		RetryAfter: opts.RetryAfter,
		Logger:     opts.Logger,
	}
	info, hasInfo := opts.Limiter.(rateInfo)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := domain.Key(opts.KeyFn(r))

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", string(key))
				if hasInfo {
					w.Header().Set("X-RateLimit-RPS", formatFloat(info.RPS()))
					w.Header().Set("X-RateLimit-Burst", formatInt(info.Burst()))
				}
			}

			dec := svc.Decide(r.Context(), application.Request{
				Key:    key,
				Method: r.Method,
				Path:   r.URL.Path,
			})
			if !dec.Allowed {
				w.Header().Set("Retry-After", formatSeconds(dec.RetryAfter))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r.WithContext(domain.WithKey(r.Context(), key)))
		})
	}
}
