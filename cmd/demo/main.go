// demo dispara 10 envios simultâneos contra um gate de 3 documentos a cada 5s,
// com a API remota simulada (2s por chamada), e mostra os lotes saindo por janela.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"sync"
	"time"

	"document-gateway/document"
	"document-gateway/middleware/ratelimit/domain"
	"document-gateway/middleware/ratelimit/application"
	"document-gateway/middleware/ratelimit/infra"
)

func main() {
	window := flag.Duration("window", 5*time.Second, "gate window")
	capacity := flag.Int("capacity", 3, "documents per window")
	workers := flag.Int("workers", 10, "concurrent submissions")
	latency := flag.Duration("latency", 2*time.Second, "simulated API latency")
	runFor := flag.Duration("run", 20*time.Second, "how long to let workers run before shutdown")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	gate, err := infra.NewWindowGate(*window, *capacity, infra.WithGateName("demo"), infra.WithGateLogger(logger))
	if err != nil {
		logger.Error("invalid gate", "err", err)
		os.Exit(1)
	}

	stats := infra.NewMemoryStatsStore()
	client, err := document.NewClient(
		application.AdmissionService{Gate: gate, Stats: stats, Name: "demo", Logger: logger},
		document.WithSimulatedLatency(*latency),
		document.WithLogger(logger),
	)
	if err != nil {
		logger.Error("client", "err", err)
		os.Exit(1)
	}

	doc := document.CreateRequest{
		DocumentFormat:  "JSON",
		ProductDocument: "document body",
		ProductGroup:    "1",
		Signature:       "Sign",
		Type:            "AGGREGATION_DOCUMENT",
	}

	start := time.Now()
	var wg sync.WaitGroup
	for i := 1; i <= *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("sending", "request", i, "at", time.Since(start).Round(time.Millisecond))
			resp, err := client.CreateDocument(context.Background(), doc, "test-signature", "test-group", "test-token")
			if err != nil {
				logger.Warn("request failed", "request", i, "err", err)
				return
			}
			logger.Info("response", "request", i, "at", time.Since(start).Round(time.Millisecond), "body", resp)
		}()
	}

	time.Sleep(*runFor)
	gate.Shutdown()
	wg.Wait()

	total := stats.Stage(domain.StageGate)
	logger.Info("done", "admitted", total.Passed, "rejected", total.Rejected, "waited", total.Waited)
}
