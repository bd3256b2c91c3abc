package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")

	ErrInvalidRequest       = errors.New("invalid request")
	ErrUnsupportedStrategy  = errors.New("unsupported strategy")
	ErrConfiguration        = errors.New("configuration error")
	ErrRetrievalBackend     = errors.New("retrieval backend error")
	ErrCompletionService    = errors.New("completion service error")
	ErrClassificationFailed = errors.New("classification failed")
	ErrEscalationFailed     = errors.New("escalation failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorKind returns a stable machine-readable name for the outermost known kind in err.
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

var errorKinds = []struct {
	err  error
	name string
}{
	{ErrInvalidRequest, "invalid_request"},
	{ErrInvalidInput, "invalid_request"},
	{ErrUnsupportedStrategy, "unsupported_strategy"},
	{ErrConfiguration, "configuration"},
	{ErrClassificationFailed, "classification"},
	{ErrEscalationFailed, "escalation_failed"},
	{ErrRetrievalBackend, "retrieval_backend"},
	{ErrCompletionService, "completion_service"},
	{ErrDocumentNotFound, "not_found"},
	{ErrUnauthorized, "unauthorized"},
	{ErrTemporary, "temporary"},
}
