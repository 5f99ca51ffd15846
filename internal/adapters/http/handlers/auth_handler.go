// Package handlers agrupa os handlers HTTP expostos pelo serviço.
package handlers

import (
	"net/http"

	"github.com/JeanGrijp/identity-gate/internal/adapters/http/middleware"
)

// AuthRoutes são os handlers de autenticação. Eles pertencem ao serviço de
// identidade; campos nil respondem 501 até que o handler real seja montado.
type AuthRoutes struct {
	Register     http.Handler
	Login        http.Handler
	RefreshToken http.Handler
	Logout       http.Handler
}

// WithDefaults preenche os handlers ausentes com NotImplemented.
func (a AuthRoutes) WithDefaults() AuthRoutes {
	for _, h := range []*http.Handler{&a.Register, &a.Login, &a.RefreshToken, &a.Logout} {
		if *h == nil {
			*h = http.HandlerFunc(NotImplemented)
		}
	}
	return a
}

func NotImplemented(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusNotImplemented, map[string]string{"error": "Not implemented"})
}
