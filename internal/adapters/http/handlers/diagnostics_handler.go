package handlers

import (
	"net/http"

	"github.com/JeanGrijp/identity-gate/internal/adapters/http/middleware"
	"github.com/JeanGrijp/identity-gate/internal/core/domain"
	"github.com/JeanGrijp/identity-gate/internal/core/ports"
)

// KeyedLimiter expõe a chave usada por um limitador para uma identidade.
type KeyedLimiter interface {
	Name() string
	Key(id domain.Identity) string
}

type counterView struct {
	Limiter string `json:"limiter"`
	Key     string `json:"key"`
	Count   int64  `json:"count"`
	Active  bool   `json:"active"`
}

// Diagnostics devolve os contadores atuais de uma identidade (?identity=).
// Usa apenas leituras; nunca participa de decisões de admissão.
func Diagnostics(store ports.CounterStore, errs *middleware.ErrorHandler, limiters ...KeyedLimiter) http.Handler {
	return errs.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		id := middleware.CanonicalIdentity(r.URL.Query().Get("identity"))
		if id == "" {
			middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "identity is required"})
			return nil
		}

		views := make([]counterView, 0, len(limiters))
		for _, l := range limiters {
			key := l.Key(id)
			count, found, err := store.Read(r.Context(), key)
			if err != nil {
				return err
			}
			views = append(views, counterView{Limiter: l.Name(), Key: key, Count: count, Active: found})
		}

		middleware.WriteJSON(w, http.StatusOK, map[string]any{"identity": id, "counters": views})
		return nil
	})
}
