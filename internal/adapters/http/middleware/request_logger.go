package middleware

import (
	"log/slog"
	"net/http"
)

// RequestLogger registra cada requisição recebida. Apenas lê a requisição:
// o corpo não é consumido para que os estágios seguintes o recebam intacto.
func RequestLogger(logger *slog.Logger, resolver IdentityResolver) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.InfoContext(r.Context(), "received request",
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("identity", string(resolver.Resolve(r))),
				slog.Int64("content_length", r.ContentLength),
			)
			next.ServeHTTP(w, r)
		})
	}
}
