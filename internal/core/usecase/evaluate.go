package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/muffakir/legal-assistant/internal/core/domain"
)

// EvaluateRetrievalUseCase measures recall@k and MRR of a retrieval strategy
// over labelled (question, passage) pairs.
type EvaluateRetrievalUseCase struct {
	retrieval *RetrievalEngine
	strategy  domain.RetrievalStrategy
}

func NewEvaluateRetrievalUseCase(retrieval *RetrievalEngine, strategy domain.RetrievalStrategy) *EvaluateRetrievalUseCase {
	if strategy == "" {
		strategy = domain.RetrievalSimilarity
	}
	return &EvaluateRetrievalUseCase{retrieval: retrieval, strategy: strategy}
}

func (uc *EvaluateRetrievalUseCase) Evaluate(ctx context.Context, cases []domain.EvalCase, k int) (*domain.EvalReport, error) {
	if k <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidRequest, "evaluate retrieval", fmt.Errorf("k must be positive, got %d", k))
	}
	if len(cases) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidRequest, "evaluate retrieval", errors.New("dataset is empty"))
	}

	report := &domain.EvalReport{
		K:       k,
		Results: make([]domain.EvalCaseResult, 0, len(cases)),
	}
	reciprocal := 0.0
	for _, c := range cases {
		if strings.TrimSpace(c.Question) == "" {
			continue
		}
		retrieved, err := uc.retrieval.Retrieve(ctx, domain.RetrievalRequest{
			Query:    c.Question,
			K:        k,
			Strategy: uc.strategy,
		})
		if err != nil {
			return nil, fmt.Errorf("evaluate %q: %w", c.Question, err)
		}

		result := domain.EvalCaseResult{Question: c.Question, Retrieved: len(retrieved)}
		for i, sp := range retrieved {
			if passageMatches(sp.Content, c.Passage) {
				result.Hit = true
				result.Position = i + 1
				break
			}
		}
		report.Total++
		if result.Hit {
			report.Hits++
			reciprocal += 1 / float64(result.Position)
		}
		report.Results = append(report.Results, result)
	}

	if report.Total > 0 {
		report.RecallAtK = float64(report.Hits) / float64(report.Total)
		report.MRR = reciprocal / float64(report.Total)
	}
	slog.Info("retrieval_evaluated",
		"strategy", string(uc.strategy),
		"k", k,
		"total", report.Total,
		"recall_at_k", report.RecallAtK,
		"mrr", report.MRR,
	)
	return report, nil
}

// passageMatches accepts containment in either direction, since indexed
// passages may carry a summary prefix or be a slice of the labelled text.
func passageMatches(retrieved, expected string) bool {
	retrieved = strings.TrimSpace(retrieved)
	expected = strings.TrimSpace(expected)
	if retrieved == "" || expected == "" {
		return false
	}
	return strings.Contains(retrieved, expected) || strings.Contains(expected, retrieved)
}
