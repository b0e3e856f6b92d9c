package infra

import (
	"context"

	"document-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusStatsStore expõe os eventos de admissão como métricas Prometheus.
// Key e Path ficam de fora dos labels para não explodir a cardinalidade.
// O label stage separa rate limit, pool e gate: somar sem filtrar por stage
// conta a mesma requisição mais de uma vez.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
	gateWait  *prometheus.HistogramVec
	poolWait  *prometheus.HistogramVec
}

// NewPrometheusStatsStore registra as métricas em reg (use prometheus.NewRegistry()
// em testes para não colidir com o registry global).
func NewPrometheusStatsStore(reg prometheus.Registerer) *PrometheusStatsStore {
	f := promauto.With(reg)
	buckets := prometheus.ExponentialBuckets(0.001, 4, 10) // 1ms a ~4min
	return &PrometheusStatsStore{
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "document_gateway_admissions_total",
				Help: "Total number of admission decisions by stage, source and outcome",
			},
			[]string{"stage", "source", "outcome"},
		),
		gateWait: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "document_gateway_gate_wait_seconds",
				Help:    "Time callers spent blocked in the gate",
				Buckets: buckets,
			},
			[]string{"gate"},
		),
		poolWait: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "document_gateway_inflight_wait_seconds",
				Help:    "Time callers spent waiting for an in-flight slot",
				Buckets: buckets,
			},
			[]string{"pool"},
		),
	}
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	stage := ev.EffectiveStage()
	switch stage {
	case domain.StageGate:
		s.decisions.WithLabelValues(string(stage), ev.Gate, string(ev.Outcome)).Inc()
		s.gateWait.WithLabelValues(ev.Gate).Observe(ev.Waited.Seconds())
	case domain.StageInflight:
		s.decisions.WithLabelValues(string(stage), ev.Pool, string(ev.Outcome)).Inc()
		s.poolWait.WithLabelValues(ev.Pool).Observe(ev.Waited.Seconds())
	default:
		s.decisions.WithLabelValues(string(stage), "", string(ev.Outcome)).Inc()
	}
	return nil
}

// RegisterGateGauges publica vagas livres e fila de espera do gate.
func RegisterGateGauges(reg prometheus.Registerer, g *WindowGate) {
	labels := prometheus.Labels{"gate": g.Name()}
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "document_gateway_gate_available_slots",
		Help:        "Slots left in the current window",
		ConstLabels: labels,
	}, func() float64 { return float64(g.Snapshot().Available) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "document_gateway_gate_waiting",
		Help:        "Callers queued waiting for the next window",
		ConstLabels: labels,
	}, func() float64 { return float64(g.Snapshot().Waiting) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "document_gateway_gate_capacity",
		Help:        "Admissions allowed per window",
		ConstLabels: labels,
	}, func() float64 { return float64(g.Capacity()) })
}

// RegisterPoolGauges publica a ocupação do pool de submissões em andamento.
func RegisterPoolGauges(reg prometheus.Registerer, name string, p domain.SlotPool) {
	labels := prometheus.Labels{"pool": name}
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "document_gateway_inflight",
		Help:        "Submissions currently holding a slot",
		ConstLabels: labels,
	}, func() float64 { return float64(p.InUse()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "document_gateway_inflight_limit",
		Help:        "Maximum submissions in flight",
		ConstLabels: labels,
	}, func() float64 { return float64(p.Size()) })
}

// RegisterClientGauge publica quantos clientes têm bucket em memória.
func RegisterClientGauge(reg prometheus.Registerer, b *ClientBuckets) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "document_gateway_rate_clients",
		Help: "Clients tracked by the inbound rate limit",
	}, func() float64 { return float64(b.Clients()) })
}

// MultiStatsStore repassa o evento para vários stores; devolve o primeiro erro.
type MultiStatsStore []domain.StatsStore

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
