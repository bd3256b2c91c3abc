package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/infrastructure/resilience"
)

// PublishError reports an ingestion event that never reached the broker.
type PublishError struct {
	DocumentID string
	Subject    string
	Err        error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish ingestion event for document %s on %q: %v", e.DocumentID, e.Subject, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Broker states a reconnecting client recovers from on its own.
var transientPublishErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
	nats.ErrNoResponders,
}

// A closed or draining connection never accepts another publish.
var closedConnErrors = []error{
	nats.ErrConnectionClosed,
	nats.ErrConnectionDraining,
}

// Rejected by the client before anything is sent.
var rejectedEventErrors = []error{
	nats.ErrBadSubject,
	nats.ErrMaxPayload,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isAny(err, transientPublishErrors):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case isAny(err, closedConnErrors):
		return resilience.ErrorClassification{RecordFailure: true}
	case isAny(err, rejectedEventErrors):
		return resilience.ErrorClassification{}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// publishFailure attaches the document to err. Broker outages become
// ErrTemporary and events the client refuses become ErrConfiguration; a
// closed connection stays unclassified.
func publishFailure(documentID, subject string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := &PublishError{DocumentID: documentID, Subject: subject, Err: err}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return wrapped
	case resilience.IsCircuitOpen(err), isAny(err, transientPublishErrors):
		return domain.WrapError(domain.ErrTemporary, "nats publish", wrapped)
	case isAny(err, rejectedEventErrors):
		return domain.WrapError(domain.ErrConfiguration, "nats publish", wrapped)
	default:
		return wrapped
	}
}
