package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/muffakir/legal-assistant/internal/core/domain"
)

func TestClassifyPublishError(t *testing.T) {
	cases := []struct {
		name          string
		err           error
		retryable     bool
		recordFailure bool
	}{
		{"timeout", fmt.Errorf("flush: %w", nats.ErrTimeout), true, true},
		{"no servers", nats.ErrNoServers, true, true},
		{"reconnecting", nats.ErrConnectionReconnecting, true, true},
		{"no responders", nats.ErrNoResponders, true, true},
		{"circuit open", gobreaker.ErrOpenState, true, true},
		{"closed", nats.ErrConnectionClosed, false, true},
		{"draining", nats.ErrConnectionDraining, false, true},
		{"canceled", context.Canceled, false, false},
		{"bad subject", nats.ErrBadSubject, false, false},
		{"max payload", nats.ErrMaxPayload, false, false},
		{"unknown", errors.New("boom"), false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyPublishError(tc.err)
			if got.Retryable != tc.retryable {
				t.Fatalf("retryable = %v, want %v", got.Retryable, tc.retryable)
			}
			if got.RecordFailure != tc.recordFailure {
				t.Fatalf("record failure = %v, want %v", got.RecordFailure, tc.recordFailure)
			}
		})
	}
}

func TestPublishFailureCarriesDocument(t *testing.T) {
	err := publishFailure("doc-42", "legal.ingest", nats.ErrDisconnected)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", err)
	}
	var pubErr *PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("expected PublishError, got %T", err)
	}
	if pubErr.DocumentID != "doc-42" || pubErr.Subject != "legal.ingest" {
		t.Fatalf("unexpected publish error %+v", pubErr)
	}
	if !errors.Is(err, nats.ErrDisconnected) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
}

func TestPublishFailureKinds(t *testing.T) {
	if err := publishFailure("doc-1", "s", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := publishFailure("doc-1", "s", nats.ErrBadSubject); !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	closed := publishFailure("doc-1", "s", nats.ErrConnectionClosed)
	if domain.IsKind(closed, domain.ErrTemporary) || domain.IsKind(closed, domain.ErrConfiguration) {
		t.Fatalf("closed connection must stay unclassified, got %v", closed)
	}
	if !errors.Is(closed, nats.ErrConnectionClosed) {
		t.Fatalf("expected cause to be preserved, got %v", closed)
	}
	canceled := publishFailure("doc-1", "s", context.Canceled)
	if !errors.Is(canceled, context.Canceled) || domain.IsKind(canceled, domain.ErrTemporary) {
		t.Fatalf("unexpected canceled mapping %v", canceled)
	}
}

func TestPublishRejectsEmptyDocumentID(t *testing.T) {
	q := &Queue{subject: "legal.ingest"}
	if err := q.PublishDocumentIngested(context.Background(), ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestHandlerContextTimeout(t *testing.T) {
	q := &Queue{timeout: time.Millisecond}
	ctx, cancel := q.handlerContext(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatalf("expected deadline")
	}

	q = &Queue{}
	ctx, cancel = q.handlerContext(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Fatalf("expected no deadline")
	}
}
