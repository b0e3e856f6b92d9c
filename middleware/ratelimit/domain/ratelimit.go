package domain

import "time"

// Key identifica o cliente (IP, API key, usuário).
type Key string

// ClientLimiter é o rate limit por cliente na entrada do gateway. Ao contrário
// do Gate, não espera: o cliente passa agora ou recebe quanto falta para passar.
type ClientLimiter interface {
	Decide(key Key, now time.Time) Decision
}

type Decision struct {
	Allowed bool
	// RetryAfter é quanto falta para o cliente ter um token de novo.
	// Zero quando Allowed ou quando o limiter não sabe estimar.
	RetryAfter time.Duration
}

func (d Decision) Outcome() Outcome {
	if d.Allowed {
		return OutcomeAllowed
	}
	return OutcomeDenied
}
