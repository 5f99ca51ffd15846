// Package redis disponibiliza o store de contadores compartilhado baseado em Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/JeanGrijp/identity-gate/internal/core/domain"
	"github.com/JeanGrijp/identity-gate/internal/core/ports"
)

const tracerName = "github.com/JeanGrijp/identity-gate/internal/adapters/storage/redis"

// incrementScript incrementa e define a expiração apenas na criação da chave
// (ou quando ela ficou sem TTL), devolvendo {contagem, pttl}.
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// LatencyObserver recebe a duração de cada chamada ao store.
type LatencyObserver interface {
	ObserveStoreLatency(op string, d time.Duration)
}

type Storage struct {
	client   *redis.Client
	tracer   trace.Tracer
	observer LatencyObserver
	healthy  atomic.Bool
}

var _ ports.CounterStore = (*Storage)(nil)

type Config struct {
	URL         string
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	IOTimeout   time.Duration
	PoolSize    int
	PingTimeout time.Duration
	Observer    LatencyObserver
}

func (cfg Config) options() (*redis.Options, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		if cfg.Addr == "" {
			return nil, fmt.Errorf("redis address is required")
		}
		opts = &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	// Sem retentativas: a falha sobe na hora e a política do limitador decide.
	opts.MaxRetries = -1
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.IOTimeout > 0 {
		opts.ReadTimeout = cfg.IOTimeout
		opts.WriteTimeout = cfg.IOTimeout
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return opts, nil
}

// New abre o pool de conexões e testa a conectividade uma única vez.
// Falha no ping é registrada mas não impede a criação: o pool reconecta sob demanda.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Storage, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Storage{
		client:   redis.NewClient(opts),
		tracer:   otel.Tracer(tracerName),
		observer: cfg.Observer,
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := s.Ping(pingCtx); err != nil {
		logger.Error("redis connection failed", slog.String("addr", opts.Addr), slog.Any("error", err))
	} else {
		s.healthy.Store(true)
		logger.Info("connected to redis", slog.String("addr", opts.Addr))
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	ctx, span := s.start(ctx, "redis.ping", "")
	defer span.End()

	started := time.Now()
	return s.finish(span, "ping", started, s.client.Ping(ctx).Err())
}

func (s *Storage) IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (domain.Counter, error) {
	if ttl < time.Millisecond {
		return domain.Counter{}, fmt.Errorf("%w: ttl must be at least 1ms", domain.ErrInvalidRule)
	}

	ctx, span := s.start(ctx, "redis.increment_with_expiry", key)
	defer span.End()

	started := time.Now()
	values, err := incrementScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Int64Slice()
	if err = s.finish(span, "increment", started, err); err != nil {
		return domain.Counter{}, err
	}
	if len(values) != 2 {
		return domain.Counter{}, fmt.Errorf("%w: unexpected script reply %v", domain.ErrStoreUnavailable, values)
	}

	span.SetAttributes(attribute.Int64("ratelimit.count", values[0]))
	return domain.Counter{Count: values[0], TTL: time.Duration(values[1]) * time.Millisecond}, nil
}

// Monitor testa a conexão a cada interval e registra apenas as transições
// (perda e retorno da conectividade). Retorna quando ctx termina.
func (s *Storage) Monitor(ctx context.Context, interval time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		pingCtx, cancel := context.WithTimeout(ctx, interval)
		err := s.Ping(pingCtx)
		cancel()

		switch {
		case err != nil && s.healthy.CompareAndSwap(true, false):
			logger.Error("redis connection lost", slog.Any("error", err))
		case err == nil && s.healthy.CompareAndSwap(false, true):
			logger.Info("redis connection restored")
		}
	}
}

// Read devolve o valor atual sem alterá-lo. Apenas para diagnóstico.
func (s *Storage) Read(ctx context.Context, key string) (int64, bool, error) {
	ctx, span := s.start(ctx, "redis.read", key)
	defer span.End()

	started := time.Now()
	count, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		_ = s.finish(span, "read", started, nil)
		return 0, false, nil
	}
	if err = s.finish(span, "read", started, err); err != nil {
		return 0, false, err
	}
	return count, true, nil
}

func (s *Storage) start(ctx context.Context, name, key string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("db.system", "redis"))
	if key != "" {
		span.SetAttributes(attribute.String("ratelimit.key", key))
	}
	return ctx, span
}

func (s *Storage) finish(span trace.Span, op string, started time.Time, err error) error {
	if s.observer != nil {
		s.observer.ObserveStoreLatency(op, time.Since(started))
	}
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}
