package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/JeanGrijp/identity-gate/internal/core/domain"
	"github.com/JeanGrijp/identity-gate/internal/core/ports"
)

// windowCounter implementa a contagem por janela fixa compartilhada pelos dois
// limitadores. Toda a serialização entre instâncias fica no store.
type windowCounter struct {
	name       string
	prefix     string
	limit      int64
	window     time.Duration
	store      ports.CounterStore
	rejectText string
	options
}

func (c *windowCounter) key(id domain.Identity) string {
	return c.prefix + ":" + string(id)
}

func (c *windowCounter) check(ctx context.Context, id domain.Identity) domain.Decision {
	now := c.now()
	counter, err := c.store.IncrementWithExpiry(ctx, c.key(id), c.window)
	if err != nil {
		return c.fault(ctx, id, err)
	}

	ttl := counter.TTL
	if ttl <= 0 || ttl > c.window {
		ttl = c.window
	}

	decision := domain.Decision{
		Outcome:  domain.Admit,
		Limiter:  c.name,
		Identity: id,
		Limit:    c.limit,
		Count:    counter.Count,
		ResetAt:  now.Add(ttl),
	}

	if counter.Count > c.limit {
		decision.Outcome = domain.Reject
		record := domain.RejectionRecord{Identity: id, Limiter: c.name, At: now}
		c.logger.WarnContext(ctx, c.rejectText, record.LogAttrs()...)
	}

	c.metrics.Decision(c.name, decision.Outcome)
	return decision
}

func (c *windowCounter) fault(ctx context.Context, id domain.Identity, err error) domain.Decision {
	c.metrics.StoreFault(c.name)

	if c.policy == FailClosed {
		// o log fica a cargo do error handler que recebe a falha
		c.metrics.Decision(c.name, domain.Fault)
		return domain.Decision{Outcome: domain.Fault, Limiter: c.name, Identity: id, Limit: c.limit, Err: err}
	}

	c.logger.ErrorContext(ctx, "rate limiter store unavailable, admitting request",
		slog.String("limiter", c.name),
		slog.String("identity", string(id)),
		slog.Any("error", err),
	)
	c.metrics.Decision(c.name, domain.Admit)
	return domain.Decision{Outcome: domain.Admit, Limiter: c.name, Identity: id, Limit: c.limit, Degraded: true, Err: err}
}
