package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/core/ports"
)

// ProcessDocumentUseCase turns a stored document into indexed passages:
// extract, chunk, optionally summarise, embed, index.
type ProcessDocumentUseCase struct {
	repo       ports.DocumentRepository
	extractor  ports.TextExtractor
	chunker    ports.Chunker
	summarizer *ChunkSummarizer
	embedder   ports.TextEmbedder
	indexer    ports.PassageIndexer
}

// NewProcessDocumentUseCase builds the worker use case. summarizer may be nil,
// in which case chunks are indexed verbatim.
func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	summarizer *ChunkSummarizer,
	embedder ports.TextEmbedder,
	indexer ports.PassageIndexer,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:       repo,
		extractor:  extractor,
		chunker:    chunker,
		summarizer: summarizer,
		embedder:   embedder,
		indexer:    indexer,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	count, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		return uc.failWith(ctx, documentID, err)
	}

	if err := uc.repo.SaveChunkCount(ctx, documentID, count); err != nil {
		return uc.failWith(ctx, documentID, fmt.Errorf("save chunk count: %w", err))
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	slog.Info("document_indexed", "document_id", documentID, "passages", count)
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (int, error) {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}

	text, err := uc.extractText(ctx, doc)
	if err != nil {
		return 0, err
	}

	chunks, err := uc.chunk(text)
	if err != nil {
		return 0, err
	}

	texts, err := uc.summarize(ctx, chunks)
	if err != nil {
		return 0, err
	}

	vectors, err := uc.embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	if err := uc.index(ctx, doc, texts, vectors); err != nil {
		return 0, err
	}
	return len(texts), nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, doc *domain.Document) (string, error) {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if text == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}
	return text, nil
}

func (uc *ProcessDocumentUseCase) chunk(text string) ([]string, error) {
	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}
	return chunks, nil
}

func (uc *ProcessDocumentUseCase) summarize(ctx context.Context, chunks []string) ([]string, error) {
	if uc.summarizer == nil {
		return chunks, nil
	}
	texts, err := uc.summarizer.Summarize(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("summarize chunks: %w", err)
	}
	return texts, nil
}

func (uc *ProcessDocumentUseCase) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(texts)),
		)
	}
	return vectors, nil
}

func (uc *ProcessDocumentUseCase) index(ctx context.Context, doc *domain.Document, texts []string, vectors [][]float32) error {
	passages := make([]domain.Passage, len(texts))
	for i, text := range texts {
		passages[i] = domain.Passage{
			ID:      doc.ID + ":" + strconv.Itoa(i),
			Content: text,
			Metadata: map[string]any{
				"source":      doc.Filename,
				"document_id": doc.ID,
				"chunk_index": i,
			},
			Embedding: vectors[i],
		}
	}
	if err := uc.indexer.IndexPassages(ctx, passages); err != nil {
		return fmt.Errorf("index passages: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) failWith(ctx context.Context, documentID string, processErr error) error {
	if failErr := uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error()); failErr != nil {
		return fmt.Errorf("%w; mark failed status: %v", processErr, failErr)
	}
	return processErr
}
