package domain

import (
	"context"
	"time"
)

// Outcome é o resultado de uma tentativa de admissão.
type Outcome string

const (
	OutcomeAllowed   Outcome = "allowed"
	OutcomeDenied    Outcome = "denied"
	OutcomeAdmitted  Outcome = "admitted"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeClosed    Outcome = "closed"
)

// Passed diz se o chamador pôde seguir adiante.
func (o Outcome) Passed() bool {
	return o == OutcomeAllowed || o == OutcomeAdmitted
}

// Stage é a etapa do caminho da requisição que gerou o evento. Uma requisição
// gera no máximo um evento por etapa, então contadores devem ser separados por
// Stage para não contar a mesma requisição várias vezes.
type Stage string

const (
	StageRate     Stage = "rate"     // rate limit por cliente
	StageInflight Stage = "inflight" // pool de envios simultâneos
	StageGate     Stage = "gate"     // gate de janela fixa
)

// StatsEvent representa um evento de decisão: do rate limit por cliente
// (allowed/denied), do pool de envios ou do gate (admitted/timeout/...).
//
// Method/Path são strings genéricas; Gate e Pool são o nome de quem gerou o evento.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Key     Key
	Stage   Stage
	Gate    string
	Pool    string
	Outcome Outcome

	Method string
	Path   string

	// Waited é quanto tempo o chamador ficou bloqueado no gate ou no pool.
	Waited time.Duration

	At time.Time
}

// EffectiveStage devolve Stage, ou deduz pela origem quando não foi preenchido.
func (ev StatsEvent) EffectiveStage() Stage {
	switch {
	case ev.Stage != "":
		return ev.Stage
	case ev.Gate != "":
		return StageGate
	case ev.Pool != "":
		return StageInflight
	default:
		return StageRate
	}
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// Quem chama deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
