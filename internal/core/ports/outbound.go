package ports

import (
	"context"
	"io"

	"github.com/muffakir/legal-assistant/internal/core/domain"
)

// TextEmbedder turns texts into vectors, one per input, in order.
type TextEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingIndex is the opaque nearest-neighbour index over stored passages.
type EmbeddingIndex interface {
	TextEmbedder
	Nearest(ctx context.Context, queryVector []float32, k int) ([]domain.Neighbor, error)
	// Exists is a membership probe: true when stored content closely matches the query.
	Exists(ctx context.Context, queryText string) (bool, error)
}

// PassageIndexer writes passages into the index during ingestion.
type PassageIndexer interface {
	IndexPassages(ctx context.Context, passages []domain.Passage) error
}

// CompletionService turns a prompt into text.
type CompletionService interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// DeepSearcher runs a bounded external deep-research crawl.
type DeepSearcher interface {
	DeepSearch(ctx context.Context, query string, budget domain.SearchBudget) (*domain.DeepSearchResult, error)
}

// CrossEncoder scores (query, passage) pairs jointly. Scores align with docs.
type CrossEncoder interface {
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
}

// CrossEncoderLoader acquires a cross-encoder. It is called at most once per
// successful load.
type CrossEncoderLoader func(ctx context.Context) (CrossEncoder, error)

// PromptRenderer renders a named prompt template.
type PromptRenderer interface {
	Render(name string, data any) (string, error)
}

// PipelineObserver receives pipeline outcomes for metrics.
type PipelineObserver interface {
	ObserveClassification(category domain.QueryClassification)
	ObserveRun(final domain.PipelineState, escalated bool)
	ObserveEscalation(outcome string)
	ObserveRetrieval(strategy domain.RetrievalStrategy, count int)
}

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveChunkCount(ctx context.Context, id string, chunks int) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Chunker splits text into semantically usable chunks.
type Chunker interface {
	Split(text string) []string
}
