package infra

import (
	"context"
	"sync"

	"document-gateway/middleware/ratelimit/domain"
)

// slotPool é um semáforo em channel: cada vaga ocupada é um item no buffer.
type slotPool struct {
	sem chan struct{}
}

// NewSlotPool cria um pool com `size` vagas. size <= 0 devolve nil (sem limite).
func NewSlotPool(size int) domain.SlotPool {
	if size <= 0 {
		return nil
	}
	return &slotPool{sem: make(chan struct{}, size)}
}

func (p *slotPool) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { <-p.sem }) }, nil
}

func (p *slotPool) InUse() int { return len(p.sem) }
func (p *slotPool) Size() int  { return cap(p.sem) }
