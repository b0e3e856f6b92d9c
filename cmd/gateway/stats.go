package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"document-gateway/middleware/ratelimit/domain"
	"document-gateway/middleware/ratelimit/infra"
)

type statsResponse struct {
	Gate infra.GateSnapshot `json:"gate"`
	// Stages conta cada requisição no máximo uma vez por etapa.
	Stages map[domain.Stage]infra.Counters `json:"stages"`
	ByGate map[string]infra.Counters       `json:"by_gate"`
	ByPool map[string]infra.Counters       `json:"by_pool"`
	// Cluster soma todas as réplicas (só com RATE_STATS_ENABLED).
	Cluster map[string]infra.Counters `json:"cluster,omitempty"`
}

// statsHandler mostra o estado do gate e os contadores desta réplica.
func statsHandler(gate *infra.WindowGate, mem *infra.MemoryStatsStore, rs *infra.RedisStatsStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := statsResponse{
			Gate:   gate.Snapshot(),
			Stages: mem.ByStage(),
			ByGate: mem.ByGate(),
			ByPool: mem.ByPool(),
		}

		if rs != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			resp.Cluster = make(map[string]infra.Counters)
			for _, stage := range []domain.Stage{domain.StageRate, domain.StageInflight, domain.StageGate} {
				c, err := rs.StageCounts(ctx, stage)
				if err != nil {
					logger.Warn("redis stats read failed", "stage", stage, "err", err)
					continue
				}
				resp.Cluster["stage:"+string(stage)] = c
			}
			if c, err := rs.GateCounts(ctx, gate.Name()); err != nil {
				logger.Warn("redis stats read failed", "gate", gate.Name(), "err", err)
			} else {
				resp.Cluster["gate:"+gate.Name()] = c
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}
