package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JeanGrijp/identity-gate/internal/core/domain"
	"github.com/JeanGrijp/identity-gate/internal/core/ports"
)

const SensitiveLimiterName = "sensitive"

// FixedWindowLimiter protege o endpoint sensível (cadastro de contas).
type FixedWindowLimiter struct {
	counter windowCounter
	rule    domain.FixedWindowRule
}

var _ ports.Limiter = (*FixedWindowLimiter)(nil)

func NewFixedWindowLimiter(store ports.CounterStore, rule domain.FixedWindowRule, opts ...Option) (*FixedWindowLimiter, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if strings.TrimSpace(rule.KeyPrefix) == "" {
		return nil, fmt.Errorf("%w: key prefix is required", domain.ErrInvalidRule)
	}
	if rule.MaxRequests <= 0 || rule.Window < time.Millisecond {
		return nil, fmt.Errorf("%w: max requests and window must be positive", domain.ErrInvalidRule)
	}

	return &FixedWindowLimiter{
		rule: rule,
		counter: windowCounter{
			name:       SensitiveLimiterName,
			prefix:     rule.KeyPrefix,
			limit:      int64(rule.MaxRequests),
			window:     rule.Window,
			store:      store,
			rejectText: "sensitive endpoint rate limit exceeded",
			options:    buildOptions(opts),
		},
	}, nil
}

func (l *FixedWindowLimiter) Name() string { return SensitiveLimiterName }

func (l *FixedWindowLimiter) Rule() domain.FixedWindowRule { return l.rule }

func (l *FixedWindowLimiter) Key(id domain.Identity) string { return l.counter.key(id) }

func (l *FixedWindowLimiter) Check(ctx context.Context, id domain.Identity) domain.Decision {
	return l.counter.check(ctx, id)
}

// Window devolve a duração da janela, usada no cabeçalho RateLimit-Policy.
func (l *FixedWindowLimiter) Window() time.Duration { return l.rule.Window }
