// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"

	"github.com/JeanGrijp/identity-gate/internal/core/domain"
)

type Limiter interface {
	Name() string
	Check(ctx context.Context, id domain.Identity) domain.Decision
}

// MetricsRecorder recebe eventos dos limitadores. Implementações não podem bloquear.
type MetricsRecorder interface {
	Decision(limiter string, outcome domain.Outcome)
	StoreFault(limiter string)
}

// NoopMetrics descarta todos os eventos.
type NoopMetrics struct{}

func (NoopMetrics) Decision(string, domain.Outcome) {}
func (NoopMetrics) StoreFault(string)               {}
