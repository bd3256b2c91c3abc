package ports

import (
	"context"
	"io"

	"github.com/muffakir/legal-assistant/internal/core/domain"
)

// LegalAnswerService is the single entry point used by HTTP, MCP and CLI surfaces.
type LegalAnswerService interface {
	Answer(ctx context.Context, query string) (*domain.Answer, error)
}

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// RetrievalEvaluator scores retrieval quality over a labelled dataset.
type RetrievalEvaluator interface {
	Evaluate(ctx context.Context, cases []domain.EvalCase, k int) (*domain.EvalReport, error)
}

// HeaderEvaluator measures what summary headers add to chunk similarity.
type HeaderEvaluator interface {
	EvaluateHeaders(ctx context.Context, cases []domain.EvalCase) (*domain.HeaderEvalReport, error)
}

// PassageSearcher exposes retrieval and reranking without generation.
type PassageSearcher interface {
	Search(ctx context.Context, req domain.SearchRequest) ([]domain.ScoredPassage, error)
}
