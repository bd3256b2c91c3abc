package httpadapter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/infrastructure/resilience"
)

type errorBody struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidRequest), domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrUnsupportedStrategy):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrConfiguration):
		return http.StatusInternalServerError
	case domain.IsKind(err, domain.ErrRetrievalBackend), domain.IsKind(err, domain.ErrEscalationFailed), domain.IsKind(err, domain.ErrClassificationFailed):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrCompletionService), resilience.IsCircuitOpen(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	kind := domain.ErrorKind(err)
	if status == http.StatusGatewayTimeout {
		kind = "timeout"
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "kind", kind, "error", err)
	}
	writeErrorStatus(w, r, status, kind, err.Error())
}

func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, kind, message string) {
	writeJSON(w, status, map[string]errorBody{
		"error": {Kind: kind, Message: message, RequestID: requestIDFromContext(r.Context())},
	})
}
