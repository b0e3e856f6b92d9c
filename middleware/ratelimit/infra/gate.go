package infra

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"document-gateway/middleware/ratelimit/domain"
)

// WindowGate é um gate de janela fixa: no máximo `capacity` admissões entre dois
// resets consecutivos. Um ticker recarrega as vagas para `capacity` a cada `window`
// (sem acumular sobra da janela anterior) e entrega as vagas novas para quem está
// na fila, na ordem de chegada.
//
// Não há release. Uma vaga consumida só volta no próximo reset.
type WindowGate struct {
	window   time.Duration
	capacity int
	name     string
	logger   *slog.Logger

	mu         sync.Mutex
	available  int
	generation uint64
	queue      *list.List // *waiter, ordem de chegada
	closed     bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type waiter struct {
	ready chan struct{} // fechado quando admitido ou quando o gate fecha
	err   error
	gen   uint64
	elem  *list.Element
}

// GateSnapshot é uma leitura consistente do estado do gate.
type GateSnapshot struct {
	Capacity   int    `json:"capacity"`
	Available  int    `json:"available"`
	Waiting    int    `json:"waiting"`
	Generation uint64 `json:"generation"`
	Closed     bool   `json:"closed"`
}

type GateOption func(*WindowGate)

// WithGateName define o nome usado em logs e estatísticas.
func WithGateName(name string) GateOption {
	return func(g *WindowGate) { g.name = name }
}

func WithGateLogger(l *slog.Logger) GateOption {
	return func(g *WindowGate) {
		if l != nil {
			g.logger = l
		}
	}
}

var _ domain.Gate = (*WindowGate)(nil)

// NewWindowGate cria o gate e inicia o ticker de reset. O primeiro reset acontece
// uma janela inteira depois da construção.
//
// Retorna domain.ErrInvalidConfiguration se capacity <= 0 ou window <= 0.
func NewWindowGate(window time.Duration, capacity int, opts ...GateOption) (*WindowGate, error) {
	if err := (domain.GateConfig{Window: window, Capacity: capacity}).Validate(); err != nil {
		return nil, err
	}

	g := &WindowGate{
		window:    window,
		capacity:  capacity,
		name:      "default",
		logger:    slog.Default(),
		available: capacity,
		queue:     list.New(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}

	t := time.NewTicker(window)
	g.wg.Add(1)
	go g.run(t)

	return g, nil
}

func (g *WindowGate) Capacity() int         { return g.capacity }
func (g *WindowGate) Window() time.Duration { return g.window }
func (g *WindowGate) Name() string          { return g.name }

func (g *WindowGate) Snapshot() GateSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GateSnapshot{
		Capacity:   g.capacity,
		Available:  g.available,
		Waiting:    g.queue.Len(),
		Generation: g.generation,
		Closed:     g.closed,
	}
}

// Acquire consome uma vaga da janela atual. Se não houver vaga (ou se já existe
// fila), entra no fim da fila e espera um reset.
//
// O gate não impõe timeout. Quando ctx encerra, o chamador sai da fila e recebe
// ctx.Err(); se um reset já tinha entregue a vaga a ele na mesma janela, a vaga
// volta para a janela e segue para o próximo da fila.
//
// Depois de Shutdown retorna domain.ErrGateClosed.
func (g *WindowGate) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return domain.ErrGateClosed
	}
	if g.available > 0 && g.queue.Len() == 0 {
		g.available--
		g.mu.Unlock()
		return nil
	}
	w := &waiter{ready: make(chan struct{})}
	w.elem = g.queue.PushBack(w)
	g.mu.Unlock()

	select {
	case <-w.ready:
		return w.err
	case <-ctx.Done():
		g.withdraw(w)
		return ctx.Err()
	}
}

// withdraw tira da fila um chamador que desistiu. Se ele já tinha recebido uma
// vaga nesta mesma janela, a vaga é devolvida e repassada ao próximo da fila.
func (g *WindowGate) withdraw(w *waiter) {
	g.mu.Lock()
	defer g.mu.Unlock()

	select {
	case <-w.ready:
		if w.err == nil && !g.closed && w.gen == g.generation {
			g.available++
			g.admitLocked()
		}
	default:
		g.queue.Remove(w.elem)
	}
}

// Shutdown para o ticker e libera toda a fila com domain.ErrGateClosed.
// Pode ser chamado mais de uma vez.
func (g *WindowGate) Shutdown() {
	g.stopOnce.Do(func() {
		close(g.done)

		g.mu.Lock()
		g.closed = true
		released := g.queue.Len()
		for g.queue.Len() > 0 {
			w := g.queue.Remove(g.queue.Front()).(*waiter)
			w.err = domain.ErrGateClosed
			close(w.ready)
		}
		g.mu.Unlock()

		g.wg.Wait()
		g.logger.Debug("gate closed", "gate", g.name, "released_waiters", released)
	})
}

func (g *WindowGate) run(t *time.Ticker) {
	defer g.wg.Done()
	defer t.Stop()
	for {
		select {
		case <-g.done:
			return
		case <-t.C:
			g.reset()
		}
	}
}

// reset inicia uma nova janela: vagas voltam para capacity (sobra descartada)
// e a fila é atendida em ordem enquanto houver vaga.
func (g *WindowGate) reset() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.generation++
	g.available = g.capacity
	admitted := g.admitLocked()
	gen, waiting := g.generation, g.queue.Len()
	g.mu.Unlock()

	g.logger.Debug("gate window reset",
		"gate", g.name,
		"generation", gen,
		"admitted_waiters", admitted,
		"still_waiting", waiting,
	)
}

// admitLocked entrega vagas para a frente da fila. Chamar com g.mu travado.
func (g *WindowGate) admitLocked() int {
	n := 0
	for g.available > 0 {
		front := g.queue.Front()
		if front == nil {
			break
		}
		w := g.queue.Remove(front).(*waiter)
		g.available--
		w.gen = g.generation
		close(w.ready)
		n++
	}
	return n
}
