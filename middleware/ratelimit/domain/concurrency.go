package domain

import "context"

// SlotPool limita quantas submissões ficam em andamento ao mesmo tempo.
// Diferente do Gate, a vaga volta quando o chamador chama release.
type SlotPool interface {
	// Acquire bloqueia até haver vaga ou até ctx encerrar (retorna ctx.Err()).
	// Chamadas extras de release não fazem nada.
	Acquire(ctx context.Context) (release func(), err error)
	InUse() int
	Size() int
}
