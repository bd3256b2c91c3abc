package usecase

import (
	"context"
	"strings"

	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/core/ports"
)

// Template names looked up in the prompt library.
const (
	PromptQueryClassification = "query_classification"
	PromptQueryRewrite        = "query_rewrite"
	PromptSearchQuery         = "search_query"
	PromptGeneration          = "generation"
	PromptHallucinationCheck  = "hallucination_check"
	PromptSummary             = "summary_generation"
	PromptQuestionGeneration  = "question_generation"
)

type promptData map[string]any

func renderAndComplete(
	ctx context.Context,
	completion ports.CompletionService,
	prompts ports.PromptRenderer,
	name string,
	data promptData,
) (string, error) {
	prompt, err := prompts.Render(name, data)
	if err != nil {
		return "", domain.WrapError(domain.ErrConfiguration, "render prompt "+name, err)
	}
	reply, err := completion.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}
