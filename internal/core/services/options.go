package services

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JeanGrijp/identity-gate/internal/core/ports"
)

// FailurePolicy decide o que acontece quando o store compartilhado falha.
type FailurePolicy string

const (
	// FailOpen admite a requisição e registra um alarme.
	FailOpen FailurePolicy = "fail-open"
	// FailClosed devolve a falha ao handler de erros centralizado.
	FailClosed FailurePolicy = "fail-closed"
)

func ParseFailurePolicy(raw string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FailOpen:
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", raw)
	}
}

type options struct {
	policy  FailurePolicy
	logger  *slog.Logger
	metrics ports.MetricsRecorder
	now     func() time.Time
}

// Option configura um limitador.
type Option func(*options)

func WithFailurePolicy(p FailurePolicy) Option {
	return func(o *options) { o.policy = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m ports.MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClock substitui time.Now; usado nos testes.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		policy:  FailOpen,
		logger:  slog.Default(),
		metrics: ports.NoopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
