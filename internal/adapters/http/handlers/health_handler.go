package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/JeanGrijp/identity-gate/internal/adapters/http/middleware"
)

// Pinger é satisfeito pelo store compartilhado.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health responde 200 quando o store compartilhado responde ao ping e 503 caso contrário.
func Health(store Pinger, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": "unavailable"})
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "store": "ok"})
	}
}
