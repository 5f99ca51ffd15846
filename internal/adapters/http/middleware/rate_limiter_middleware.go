// Package middleware disponibiliza os estágios HTTP do pipeline de admissão.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/JeanGrijp/identity-gate/internal/core/domain"
	"github.com/JeanGrijp/identity-gate/internal/core/ports"
)

const (
	headerLimit      = "RateLimit-Limit"
	headerRemaining  = "RateLimit-Remaining"
	headerReset      = "RateLimit-Reset"
	headerPolicy     = "RateLimit-Policy"
	headerRetryAfter = "Retry-After"
)

type limiterOptions struct {
	standardHeaders bool
	window          time.Duration
	now             func() time.Time
}

type LimiterOption func(*limiterOptions)

// WithStandardHeaders habilita os cabeçalhos RateLimit-* (sem as variantes X-RateLimit-*).
func WithStandardHeaders(window time.Duration) LimiterOption {
	return func(o *limiterOptions) {
		o.standardHeaders = true
		o.window = window
	}
}

func withClock(now func() time.Time) LimiterOption {
	return func(o *limiterOptions) { o.now = now }
}

// NewRateLimiterMiddleware transforma um limitador em um estágio do pipeline.
// Admit segue para o próximo estágio, Reject responde 429 e Fault é entregue ao
// handler de erros centralizado.
func NewRateLimiterMiddleware(limiter ports.Limiter, resolver IdentityResolver, errs *ErrorHandler, opts ...LimiterOption) func(http.Handler) http.Handler {
	o := limiterOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if errs == nil {
		errs = NewErrorHandler(nil)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			decision := limiter.Check(r.Context(), resolver.Resolve(r))

			switch decision.Outcome {
			case domain.Admit:
				if o.standardHeaders && !decision.Degraded {
					o.setHeaders(w, decision)
				}
				next.ServeHTTP(w, r)
			case domain.Reject:
				if o.standardHeaders {
					o.setHeaders(w, decision)
					w.Header().Set(headerRetryAfter, strconv.FormatInt(o.secondsUntil(decision.ResetAt), 10))
				}
				writeTooManyRequests(w)
			default:
				errs.Handle(w, r, decision.Err)
			}
		})
	}
}

func (o limiterOptions) setHeaders(w http.ResponseWriter, d domain.Decision) {
	h := w.Header()
	h.Set(headerLimit, strconv.FormatInt(d.Limit, 10))
	h.Set(headerRemaining, strconv.FormatInt(d.Remaining(), 10))
	h.Set(headerReset, strconv.FormatInt(o.secondsUntil(d.ResetAt), 10))
	h.Set(headerPolicy, strconv.FormatInt(d.Limit, 10)+";w="+strconv.FormatInt(int64(math.Ceil(o.window.Seconds())), 10))
}

func (o limiterOptions) secondsUntil(t time.Time) int64 {
	d := t.Sub(o.now())
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

func writeTooManyRequests(w http.ResponseWriter) {
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: tooManyRequestsMessage})
}
