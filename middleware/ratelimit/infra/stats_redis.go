package infra

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"document-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

const waitedField = "waited_ms"

// RedisStatsStore grava contadores de admissão em hashes do Redis, para que
// várias réplicas do gateway somem no mesmo lugar.
//
// Chaves (prefixo padrão "docgw:stats"):
//
//	<prefix>:stage:<stage>                  um campo por outcome + waited_ms
//	<prefix>:gate:<nome>                    idem, por gate
//	<prefix>:pool:<nome>                    idem, por pool de envios
//	<prefix>:minute:<stage>:<YYYYMMDDhhmm>  série por minuto (expira com ttl)
//	<prefix>:route                          campos "<METHOD> <path>:<outcome>" (rate limit)
//	<prefix>:key:<cliente>                  rate limit, só com trackKeys (expira com ttl)
//
// Cada requisição conta no máximo uma vez por stage.
type RedisStatsStore struct {
	rdb redis.UniversalClient

	prefix string
	// ttl vale para a série por minuto e por cliente; stage, gate e pool não expiram.
	ttl       time.Duration
	bucket    string // "minute" (padrão) ou "none"
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

// NewRedisStatsStore aceita qualquer cliente go-redis (single, cluster, sentinel).
func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "docgw:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var errNoOutcome = errors.New("stats event without outcome")

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	if ev.Outcome == "" {
		return errNoOutcome
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := string(ev.Outcome)
	waitedMs := ev.Waited.Milliseconds()

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		count := func(key string, ttl time.Duration) {
			pipe.HIncrBy(ctx, key, outcome, 1)
			if waitedMs > 0 {
				pipe.HIncrBy(ctx, key, waitedField, waitedMs)
			}
			if ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
		}

		stage := ev.EffectiveStage()
		count(s.stageKey(stage), 0)
		if s.bucket == "minute" {
			count(s.prefix+":minute:"+string(stage)+":"+at.UTC().Format("200601021504"), s.ttl)
		}

		switch stage {
		case domain.StageGate:
			count(s.gateKey(ev.Gate), 0)
		case domain.StageInflight:
			count(s.prefix+":pool:"+ev.Pool, 0)
		default:
			if route := strings.TrimSpace(ev.Method + " " + ev.Path); route != "" {
				pipe.HIncrBy(ctx, s.prefix+":route", route+":"+outcome, 1)
			}
			if k := strings.TrimSpace(string(ev.Key)); s.trackKeys && k != "" {
				count(s.prefix+":key:"+k, s.ttl)
			}
		}
		return nil
	})
	return err
}

// StageCounts lê os contadores acumulados de uma etapa (todas as réplicas).
func (s *RedisStatsStore) StageCounts(ctx context.Context, stage domain.Stage) (Counters, error) {
	return s.counts(ctx, s.stageKey(stage))
}

// GateCounts lê os contadores acumulados de um gate.
func (s *RedisStatsStore) GateCounts(ctx context.Context, gate string) (Counters, error) {
	return s.counts(ctx, s.gateKey(gate))
}

func (s *RedisStatsStore) counts(ctx context.Context, key string) (Counters, error) {
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return Counters{}, err
	}

	var c Counters
	for f, v := range fields {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Counters{}, err
		}
		if f == waitedField {
			c.Waited = time.Duration(n) * time.Millisecond
			continue
		}
		c.addN(domain.Outcome(f), n)
	}
	return c, nil
}

func (s *RedisStatsStore) stageKey(stage domain.Stage) string { return s.prefix + ":stage:" + string(stage) }
func (s *RedisStatsStore) gateKey(gate string) string         { return s.prefix + ":gate:" + gate }
