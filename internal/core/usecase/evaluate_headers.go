package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/core/ports"
)

// EvaluateHeadersUseCase compares how close a question embeds to its passage
// with and without a model-written summary header. Rows without a question get
// one generated from the passage.
type EvaluateHeadersUseCase struct {
	completion ports.CompletionService
	prompts    ports.PromptRenderer
	embedder   ports.TextEmbedder
}

func NewEvaluateHeadersUseCase(
	completion ports.CompletionService,
	prompts ports.PromptRenderer,
	embedder ports.TextEmbedder,
) *EvaluateHeadersUseCase {
	return &EvaluateHeadersUseCase{completion: completion, prompts: prompts, embedder: embedder}
}

// EvaluateHeaders skips rows whose question, summary or embeddings fail and
// counts them in Skipped. Cancellation aborts the run.
func (uc *EvaluateHeadersUseCase) EvaluateHeaders(ctx context.Context, cases []domain.EvalCase) (*domain.HeaderEvalReport, error) {
	if len(cases) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidRequest, "evaluate headers", errors.New("dataset is empty"))
	}

	report := &domain.HeaderEvalReport{Results: make([]domain.HeaderEvalResult, 0, len(cases))}
	var sumWithout, sumWith float64
	for i, c := range cases {
		chunk := stripSummary(c.Passage)
		if chunk == "" {
			continue
		}
		report.Total++

		result, err := uc.evaluateChunk(ctx, c.Question, chunk)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			slog.Warn("header_eval_row_skipped", "row", i, "error", err)
			report.Skipped++
			continue
		}
		sumWithout += result.WithoutHeader
		sumWith += result.WithHeader
		report.Results = append(report.Results, result)
	}

	if n := len(report.Results); n > 0 {
		report.AvgWithout = sumWithout / float64(n)
		report.AvgWith = sumWith / float64(n)
	}
	if report.AvgWithout != 0 {
		report.Improvement = (report.AvgWith - report.AvgWithout) / report.AvgWithout
	}
	slog.Info("summary_headers_evaluated",
		"total", report.Total,
		"skipped", report.Skipped,
		"avg_without_header", report.AvgWithout,
		"avg_with_header", report.AvgWith,
		"improvement", report.Improvement,
	)
	return report, nil
}

func (uc *EvaluateHeadersUseCase) evaluateChunk(ctx context.Context, question, chunk string) (domain.HeaderEvalResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		generated, err := renderAndComplete(ctx, uc.completion, uc.prompts, PromptQuestionGeneration, promptData{
			"Text": chunk,
		})
		if err != nil {
			return domain.HeaderEvalResult{}, fmt.Errorf("generate question: %w", err)
		}
		if generated == "" {
			return domain.HeaderEvalResult{}, errors.New("generated question is empty")
		}
		question = generated
	}

	summary, err := renderAndComplete(ctx, uc.completion, uc.prompts, PromptSummary, promptData{
		"Text": chunk,
	})
	if err != nil {
		return domain.HeaderEvalResult{}, fmt.Errorf("summarize chunk: %w", err)
	}
	if summary == "" {
		return domain.HeaderEvalResult{}, errors.New("summary is empty")
	}

	vectors, err := uc.embedder.Embed(ctx, []string{question, chunk, withSummary(summary, chunk)})
	if err != nil {
		return domain.HeaderEvalResult{}, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != 3 {
		return domain.HeaderEvalResult{}, fmt.Errorf("expected 3 vectors, got %d", len(vectors))
	}
	return domain.HeaderEvalResult{
		Question:      question,
		Chunk:         chunk,
		WithoutHeader: cosineSimilarity(vectors[0], vectors[1]),
		WithHeader:    cosineSimilarity(vectors[0], vectors[2]),
	}, nil
}

// stripSummary drops a header written at ingestion so the passage is compared
// bare.
func stripSummary(passage string) string {
	passage = strings.TrimSpace(passage)
	if rest, ok := strings.CutPrefix(passage, domain.SummaryPrefix); ok {
		if _, body, found := strings.Cut(rest, "\n"); found {
			return strings.TrimSpace(body)
		}
	}
	return passage
}
