package usecase

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/core/ports"
)

const defaultSummaryConcurrency = 4

// ChunkSummarizer prefixes each chunk with a model-written summary before it
// is embedded. Summaries improve recall for paraphrased questions.
type ChunkSummarizer struct {
	completion  ports.CompletionService
	prompts     ports.PromptRenderer
	concurrency int
}

func NewChunkSummarizer(completion ports.CompletionService, prompts ports.PromptRenderer, concurrency int) *ChunkSummarizer {
	if concurrency <= 0 {
		concurrency = defaultSummaryConcurrency
	}
	return &ChunkSummarizer{
		completion:  completion,
		prompts:     prompts,
		concurrency: concurrency,
	}
}

// Summarize returns one passage text per chunk, in order. A chunk whose
// summary fails is kept as is; only context cancellation aborts the batch.
func (s *ChunkSummarizer) Summarize(ctx context.Context, chunks []string) ([]string, error) {
	out := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			summary, err := renderAndComplete(gctx, s.completion, s.prompts, PromptSummary, promptData{
				"Text": chunk,
			})
			if err != nil || summary == "" {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Warn("chunk_summary_skipped", "chunk_index", i, "error", err)
				out[i] = chunk
				return nil
			}
			out[i] = withSummary(summary, chunk)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func withSummary(summary, chunk string) string {
	return domain.SummaryPrefix + summary + "\n" + chunk
}
