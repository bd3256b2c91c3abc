package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/core/ports"
)

// mentionsWebSearch is the label predicate applied to the classifier reply.
func mentionsWebSearch(reply string) bool {
	return strings.Contains(strings.ToLower(reply), "web_search")
}

// QueryRouter decides how a query is handled. It never returns an error:
// failures become QueryClassificationError.
type QueryRouter struct {
	index      ports.EmbeddingIndex
	completion ports.CompletionService
	prompts    ports.PromptRenderer
	isWebLabel func(string) bool
}

func NewQueryRouter(
	index ports.EmbeddingIndex,
	completion ports.CompletionService,
	prompts ports.PromptRenderer,
) *QueryRouter {
	return &QueryRouter{
		index:      index,
		completion: completion,
		prompts:    prompts,
		isWebLabel: mentionsWebSearch,
	}
}

// WithLabelPredicate swaps the reply matcher, e.g. for exact-match labels.
func (r *QueryRouter) WithLabelPredicate(fn func(reply string) bool) *QueryRouter {
	if fn != nil {
		r.isWebLabel = fn
	}
	return r
}

// Classify probes the index first; a hit is final and the model is not asked.
func (r *QueryRouter) Classify(ctx context.Context, query string) domain.QueryClassification {
	known, err := r.index.Exists(ctx, query)
	if err != nil {
		slog.Warn("membership_probe_failed", "error", err)
		return domain.QueryClassificationError
	}
	if known {
		return domain.QueryCorpusAnswerable
	}

	reply, err := renderAndComplete(ctx, r.completion, r.prompts, PromptQueryClassification, promptData{
		"Query": query,
	})
	if err != nil {
		slog.Warn("query_classification_failed", "error", err)
		return domain.QueryClassificationError
	}
	if r.isWebLabel(reply) {
		return domain.QueryNeedsWebSearch
	}
	return domain.QueryOutOfScope
}
