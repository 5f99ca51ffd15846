// Package domain concentra entidades e estruturas centrais do controle de admissão.
package domain

import (
	"log/slog"
	"time"
)

// UnknownIdentity agrupa requisições cuja origem não pôde ser determinada.
const UnknownIdentity Identity = "unknown"

// Identity é a dimensão usada como chave dos limites (endereço de origem).
type Identity string

// TokenBucketRule configura o limitador global. O "bucket" zera por completo
// ao fim de cada janela; não há reposição contínua de pontos.
type TokenBucketRule struct {
	KeyPrefix string
	Capacity  int
	Duration  time.Duration
}

// FixedWindowRule configura o limitador do endpoint sensível.
type FixedWindowRule struct {
	KeyPrefix   string
	Window      time.Duration
	MaxRequests int
}

// Counter é o resultado de um incremento no store compartilhado.
type Counter struct {
	Count int64
	TTL   time.Duration
}

// Outcome é o resultado de um estágio de admissão.
type Outcome int

const (
	Admit Outcome = iota
	Reject
	Fault
)

func (o Outcome) String() string {
	switch o {
	case Admit:
		return "admit"
	case Reject:
		return "reject"
	case Fault:
		return "fault"
	default:
		return "unknown"
	}
}

// Decision carrega o resultado de um limitador para uma requisição.
type Decision struct {
	Outcome  Outcome
	Limiter  string
	Identity Identity
	Limit    int64
	Count    int64
	ResetAt  time.Time
	// Degraded indica que a requisição foi admitida apesar de falha no store.
	Degraded bool
	Err      error
}

// Remaining devolve a cota restante na janela atual, nunca negativa.
func (d Decision) Remaining() int64 {
	if d.Count >= d.Limit {
		return 0
	}
	return d.Limit - d.Count
}

// RejectionRecord existe apenas para o log de uma rejeição.
type RejectionRecord struct {
	Identity Identity
	Limiter  string
	At       time.Time
}

func (r RejectionRecord) LogAttrs() []any {
	return []any{
		slog.String("identity", string(r.Identity)),
		slog.String("limiter", r.Limiter),
		slog.Time("at", r.At),
	}
}
