// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"
	"time"

	"github.com/JeanGrijp/identity-gate/internal/core/domain"
)

// CounterStore é o store de contadores compartilhado entre instâncias.
// IncrementWithExpiry precisa ser atômico no próprio store.
type CounterStore interface {
	IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (domain.Counter, error)
	Read(ctx context.Context, key string) (int64, bool, error)
}
