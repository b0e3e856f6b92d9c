package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"document-gateway/document"
	"document-gateway/middleware/ratelimit"
	"document-gateway/middleware/ratelimit/application"
	"document-gateway/middleware/ratelimit/domain"
	"document-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const gateName = "crpt"

func main() {
	cfg, err := readConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.logLevel, cfg.logFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	gate, err := infra.NewWindowGate(cfg.gate.window, cfg.gate.capacity,
		infra.WithGateName(gateName),
		infra.WithGateLogger(logger),
	)
	if err != nil {
		return err
	}
	defer gate.Shutdown()

	reg := prometheus.NewRegistry()
	mem := infra.NewMemoryStatsStore()
	stats := infra.MultiStatsStore{mem}
	if cfg.metrics {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		stats = append(stats, infra.NewPrometheusStatsStore(reg))
		infra.RegisterGateGauges(reg, gate)
	}

	var redisStats *infra.RedisStatsStore
	if cfg.stats.redis {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.stats.redisAddrs,
			Password: cfg.stats.redisPassword,
			DB:       cfg.stats.redisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis stats ping: %w", err)
		}

		redisStats = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.stats.prefix),
			infra.WithStatsTTL(cfg.stats.ttl),
			infra.WithStatsBucket(cfg.stats.bucket),
			infra.WithStatsTrackKeys(cfg.stats.trackKeys),
		)
		stats = append(stats, redisStats)
	}
	var statsStore domain.StatsStore = stats

	admission := application.AdmissionService{
		Gate:           gate,
		Stats:          statsStore,
		Name:           gateName,
		AcquireTimeout: cfg.gate.acquireTimeout,
		Logger:         logger,
	}

	clientOpts := []document.ClientOption{
		document.WithBaseURL(cfg.crpt.baseURL),
		document.WithLogger(logger),
	}
	if cfg.crpt.simulateLatency > 0 {
		clientOpts = append(clientOpts, document.WithSimulatedLatency(cfg.crpt.simulateLatency))
	}
	client, err := document.NewClient(admission, clientOpts...)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	buckets := infra.NewClientBuckets(cfg.rate.rps, cfg.rate.burst, infra.WithMaxClients(cfg.rate.maxClients))
	buckets.StartJanitor(ctx)

	pool := infra.NewSlotPool(cfg.inflight.max)
	if cfg.metrics {
		if pool != nil {
			infra.RegisterPoolGauges(reg, ratelimit.InFlightPool, pool)
		}
		if cfg.rate.enabled {
			infra.RegisterClientGauge(reg, buckets)
		}
	}

	var h http.Handler = document.NewHandler(document.HandlerOptions{
		Creator:    client,
		RetryAfter: cfg.gate.window,
		Logger:     logger,
	})
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Pool:           pool,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.inflight.acquireTimeout,
		RetryAfter:     cfg.gate.window,
		Stats:          statsStore,
		Logger:         logger,
	})(h)
	if cfg.rate.enabled {
		h = ratelimit.Middleware(ratelimit.Options{
			Limiter:             buckets,
			Stats:               statsStore,
			KeyHeader:           cfg.rate.keyHeader,
			TrustXForwardedFor:  cfg.rate.trustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          cfg.rate.retryAfter,
			AddRateLimitHeaders: cfg.rate.addHeaders,
			Logger:              logger,
		})(h)
	}

	mux := http.NewServeMux()
	mux.Handle("/documents", h)
	mux.Handle("/stats", statsHandler(gate, mem, redisStats, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if gate.Snapshot().Closed {
			http.Error(w, "closing", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	if cfg.metrics {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// a escrita espera o gate (até várias janelas) mais a API remota
		WriteTimeout: 0,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// quem ainda está na fila do gate recebe 503 em vez de segurar o shutdown
		gate.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening", "addr", cfg.listenAddr, "upstream", cfg.crpt.baseURL)
	logger.Info("gate", "window", cfg.gate.window, "capacity", cfg.gate.capacity, "acquireTimeout", cfg.gate.acquireTimeout, "simulateLatency", cfg.crpt.simulateLatency)
	logger.Info("rate", "enabled", cfg.rate.enabled, "rps", cfg.rate.rps, "burst", cfg.rate.burst, "keyHeader", cfg.rate.keyHeader, "maxClients", cfg.rate.maxClients, "trustXFF", cfg.rate.trustXFF)
	logger.Info("rate-stats", "enabled", cfg.stats.redis, "redisAddrs", cfg.stats.redisAddrs, "bucket", cfg.stats.bucket, "ttl", cfg.stats.ttl, "trackKeys", cfg.stats.trackKeys)
	logger.Info("concurrency", "max", cfg.inflight.max, "acquireTimeout", cfg.inflight.acquireTimeout)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
