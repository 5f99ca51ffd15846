package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/JeanGrijp/identity-gate/internal/core/domain"
)

// IdentityResolver extrai a identidade da requisição. Não altera a requisição nem
// depende de estado compartilhado.
type IdentityResolver struct {
	// TrustProxy habilita X-Forwarded-For e X-Real-IP. Só deve ser ligado atrás
	// de um proxy reverso que sobrescreve esses cabeçalhos.
	TrustProxy bool
}

func (ir IdentityResolver) Resolve(r *http.Request) domain.Identity {
	if ir.TrustProxy {
		if xForwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xForwardedFor != "" {
			first, _, _ := strings.Cut(xForwardedFor, ",")
			if id, ok := canonical(first); ok {
				return id
			}
		}
		if id, ok := canonical(r.Header.Get("X-Real-IP")); ok {
			return id
		}
	}

	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	if id, ok := canonical(remote); ok {
		return id
	}
	return domain.UnknownIdentity
}

// CanonicalIdentity normaliza um endereço da mesma forma que Resolve. Valores que
// não são IP (por exemplo "unknown") são devolvidos sem alteração.
func CanonicalIdentity(raw string) domain.Identity {
	if id, ok := canonical(raw); ok {
		return id
	}
	return domain.Identity(strings.TrimSpace(raw))
}

func canonical(raw string) (domain.Identity, bool) {
	raw = strings.Trim(strings.TrimSpace(raw), "[]")
	if raw == "" {
		return "", false
	}
	ip := net.ParseIP(raw)
	if ip == nil {
		return "", false
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return domain.Identity(ip.String()), true
}
