package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

const (
	tooManyRequestsMessage = "Too many requests"
	internalErrorMessage   = "Internal server error"
)

type errorBody struct {
	Error string `json:"error"`
}

// ErrorHandler é o ponto central que converte falhas em uma resposta 5xx uniforme.
type ErrorHandler struct {
	logger *slog.Logger
}

func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{logger: logger}
}

// Handle registra err em nível de erro e responde sem expor detalhes internos.
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("request_id", GetRequestID(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: internalErrorMessage})
}

// Recover converte panics dos estágios seguintes em falhas tratadas por Handle.
func (h *ErrorHandler) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.logger.DebugContext(r.Context(), "panic stack", slog.String("stack", string(debug.Stack())))
			h.Handle(w, r, fmt.Errorf("panic: %v", rec))
		}()
		next.ServeHTTP(w, r)
	})
}

// HandlerFunc é um handler que devolve erro em vez de escrever a resposta de falha.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Wrap adapta um HandlerFunc para http.Handler usando o handler centralizado.
func (h *ErrorHandler) Wrap(fn HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			h.Handle(w, r, err)
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteJSON escreve body como JSON com o status informado.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	writeJSON(w, status, body)
}
