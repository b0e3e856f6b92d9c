package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"document-gateway/document"
	"document-gateway/middleware/ratelimit/domain"
)

type config struct {
	listenAddr string
	logLevel   string
	logFormat  string
	metrics    bool

	gate     gateConfig
	crpt     crptConfig
	rate     rateConfig
	inflight inflightConfig
	stats    statsConfig
}

// gateConfig é o limite da API remota: capacity envios por window.
type gateConfig struct {
	window         time.Duration
	capacity       int
	acquireTimeout time.Duration
}

type crptConfig struct {
	baseURL         string
	simulateLatency time.Duration
}

type rateConfig struct {
	enabled    bool
	rps        float64
	burst      int
	keyHeader  string
	trustXFF   bool
	retryAfter time.Duration
	addHeaders bool
	maxClients int
}

type inflightConfig struct {
	max            int
	acquireTimeout time.Duration
}

type statsConfig struct {
	redis         bool
	redisAddrs    []string
	redisPassword string
	redisDB       int
	prefix        string
	ttl           time.Duration
	bucket        string
	trackKeys     bool
}

func readConfig() (config, error) {
	var env envReader
	str := func(k, def string) string { return envValue(&env, k, def, parseString) }
	num := func(k string, def int) int { return envValue(&env, k, def, strconv.Atoi) }
	flt := func(k string, def float64) float64 { return envValue(&env, k, def, parseFloat) }
	on := func(k string, def bool) bool { return envValue(&env, k, def, strconv.ParseBool) }
	dur := func(k string, def time.Duration) time.Duration { return envValue(&env, k, def, time.ParseDuration) }

	cfg := config{
		listenAddr: str("LISTEN_ADDR", ":8080"),
		logLevel:   str("LOG_LEVEL", "info"),
		logFormat:  str("LOG_FORMAT", "text"),
		metrics:    on("METRICS_ENABLED", true),
		gate: gateConfig{
			window:         dur("GATE_WINDOW", time.Second),
			capacity:       num("GATE_CAPACITY", 10),
			acquireTimeout: dur("GATE_ACQUIRE_TIMEOUT", 0),
		},
		crpt: crptConfig{
			baseURL:         str("CRPT_BASE_URL", document.DefaultBaseURL),
			simulateLatency: dur("SIMULATE_LATENCY", 0),
		},
		rate: rateConfig{
			enabled:    on("RATE_ENABLED", false),
			rps:        flt("RATE_RPS", 10),
			burst:      num("RATE_BURST", 20),
			keyHeader:  str("RATE_KEY_HEADER", ""),
			trustXFF:   on("TRUST_XFF", false),
			retryAfter: dur("RETRY_AFTER", time.Second),
			addHeaders: on("ADD_RATELIMIT_HEADERS", false),
			maxClients: num("RATE_MAX_CLIENTS", 100000),
		},
		inflight: inflightConfig{
			max:            num("CONCURRENCY_MAX", 100),
			acquireTimeout: dur("CONCURRENCY_TIMEOUT", 0),
		},
		stats: statsConfig{
			redis:         on("RATE_STATS_ENABLED", false),
			redisAddrs:    splitList(str("RATE_STATS_REDIS_ADDR", "")),
			redisPassword: str("RATE_STATS_REDIS_PASSWORD", ""),
			redisDB:       num("RATE_STATS_REDIS_DB", 0),
			prefix:        str("RATE_STATS_PREFIX", "docgw:stats"),
			ttl:           dur("RATE_STATS_TTL", 24*time.Hour),
			bucket:        str("RATE_STATS_BUCKET", "minute"),
			trackKeys:     on("RATE_STATS_TRACK_KEYS", false),
		},
	}
	if env.err != nil {
		return config{}, env.err
	}
	return cfg, cfg.validate()
}

func (c config) validate() error {
	if err := (domain.GateConfig{Window: c.gate.window, Capacity: c.gate.capacity}).Validate(); err != nil {
		return err
	}
	if c.stats.redis && len(c.stats.redisAddrs) == 0 {
		return errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	if c.rate.enabled && c.rate.rps <= 0 {
		return errors.New("RATE_RPS must be > 0")
	}
	if c.rate.enabled && c.rate.burst <= 0 {
		return errors.New("RATE_BURST must be > 0")
	}
	if c.inflight.max < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return nil
}

// envReader guarda o primeiro valor malformado; readConfig falha com ele em
// vez de cair silenciosamente no padrão.
type envReader struct {
	err error
}

func envValue[T any](r *envReader, key string, def T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("%s=%q: %w", key, raw, err)
		}
		return def
	}
	return v
}

func parseString(s string) (string, error) { return s, nil }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
