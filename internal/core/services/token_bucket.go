package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JeanGrijp/identity-gate/internal/core/domain"
	"github.com/JeanGrijp/identity-gate/internal/core/ports"
)

const GlobalLimiterName = "global"

// TokenBucketLimiter é o limitador global aplicado a todas as rotas.
type TokenBucketLimiter struct {
	counter windowCounter
	rule    domain.TokenBucketRule
}

var _ ports.Limiter = (*TokenBucketLimiter)(nil)

// NewTokenBucketLimiter cria o limitador global. Cada requisição consome um ponto
// de Capacity; o contador zera quando Duration expira no store.
func NewTokenBucketLimiter(store ports.CounterStore, rule domain.TokenBucketRule, opts ...Option) (*TokenBucketLimiter, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if strings.TrimSpace(rule.KeyPrefix) == "" {
		return nil, fmt.Errorf("%w: key prefix is required", domain.ErrInvalidRule)
	}
	if rule.Capacity <= 0 || rule.Duration < time.Millisecond {
		return nil, fmt.Errorf("%w: capacity and duration must be positive", domain.ErrInvalidRule)
	}

	return &TokenBucketLimiter{
		rule: rule,
		counter: windowCounter{
			name:       GlobalLimiterName,
			prefix:     rule.KeyPrefix,
			limit:      int64(rule.Capacity),
			window:     rule.Duration,
			store:      store,
			rejectText: "rate limit exceeded",
			options:    buildOptions(opts),
		},
	}, nil
}

func (l *TokenBucketLimiter) Name() string { return GlobalLimiterName }

func (l *TokenBucketLimiter) Rule() domain.TokenBucketRule { return l.rule }

// Key devolve a chave do store usada para a identidade.
func (l *TokenBucketLimiter) Key(id domain.Identity) string { return l.counter.key(id) }

// Check consome um ponto da identidade.
func (l *TokenBucketLimiter) Check(ctx context.Context, id domain.Identity) domain.Decision {
	return l.counter.check(ctx, id)
}
