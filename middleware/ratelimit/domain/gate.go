package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfiguration é retornado na construção quando capacidade ou janela <= 0.
	ErrInvalidConfiguration = errors.New("ratelimit: invalid gate configuration")

	// ErrGateClosed é retornado por Acquire depois de Shutdown, inclusive para quem
	// já estava esperando na fila.
	ErrGateClosed = errors.New("ratelimit: gate closed")
)

// Gate limita quantas vezes por janela fixa um chamador pode prosseguir.
//
// Acquire bloqueia até existir uma vaga na janela atual (ou até o ctx encerrar).
// Não existe release: a vaga consumida só volta no próximo reset da janela,
// mesmo que o trabalho do chamador falhe.
type Gate interface {
	Acquire(ctx context.Context) error
	Shutdown()
}

// GateConfig descreve um gate de janela fixa: no máximo Capacity admissões por Window.
type GateConfig struct {
	Window   time.Duration
	Capacity int
}

func (c GateConfig) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be > 0, got %d", ErrInvalidConfiguration, c.Capacity)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be > 0, got %s", ErrInvalidConfiguration, c.Window)
	}
	return nil
}
