package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/core/ports"
)

// RefusalPhrase is what the generation prompt instructs the model to answer
// when the context is insufficient. Changing one without the other silently
// disables escalation.
const RefusalPhrase = "لا يمكنني الإجابة على هذا السؤال"

// containsRefusal matches the phrase anywhere in the answer, so a longer
// answer that merely quotes it is flagged as well.
func containsRefusal(answer string) bool {
	return strings.Contains(answer, RefusalPhrase)
}

type AnswerQualityGate struct {
	isRefusal func(string) bool
}

func NewAnswerQualityGate() *AnswerQualityGate {
	return &AnswerQualityGate{isRefusal: containsRefusal}
}

// WithRefusalPredicate swaps the refusal matcher.
func (g *AnswerQualityGate) WithRefusalPredicate(fn func(answer string) bool) *AnswerQualityGate {
	if fn != nil {
		g.isRefusal = fn
	}
	return g
}

func (g *AnswerQualityGate) Validate(answer string) domain.Verdict {
	if g.isRefusal(answer) {
		return domain.VerdictEscalate
	}
	return domain.VerdictAccept
}

// HallucinationChecker asks the model to clean up an answer. An empty reply
// keeps the original.
type HallucinationChecker struct {
	completion ports.CompletionService
	prompts    ports.PromptRenderer
}

func NewHallucinationChecker(completion ports.CompletionService, prompts ports.PromptRenderer) *HallucinationChecker {
	return &HallucinationChecker{completion: completion, prompts: prompts}
}

func (h *HallucinationChecker) Check(ctx context.Context, answer string) (string, error) {
	checked, err := renderAndComplete(ctx, h.completion, h.prompts, PromptHallucinationCheck, promptData{
		"Answer": answer,
	})
	if err != nil {
		return "", err
	}
	if checked == "" {
		return answer, nil
	}
	return checked, nil
}

// Escalator runs the web-search fallback.
type Escalator struct {
	completion    ports.CompletionService
	prompts       ports.PromptRenderer
	searcher      ports.DeepSearcher
	budget        domain.SearchBudget
	hallucination *HallucinationChecker
}

func NewEscalator(
	completion ports.CompletionService,
	prompts ports.PromptRenderer,
	searcher ports.DeepSearcher,
	budget domain.SearchBudget,
	hallucination *HallucinationChecker,
) *Escalator {
	if hallucination == nil {
		hallucination = NewHallucinationChecker(completion, prompts)
	}
	return &Escalator{
		completion:    completion,
		prompts:       prompts,
		searcher:      searcher,
		budget:        budget,
		hallucination: hallucination,
	}
}

type EscalationResult struct {
	Answer  string
	Sources []domain.WebSource
}

// Escalate rewrites the query for search, runs a bounded deep search and
// hallucination-checks the final analysis. Every failure is ErrEscalationFailed.
func (e *Escalator) Escalate(ctx context.Context, query string) (*EscalationResult, error) {
	if e.searcher == nil {
		return nil, domain.WrapError(domain.ErrEscalationFailed, "escalate", errors.New("no deep searcher configured"))
	}

	searchQuery, err := renderAndComplete(ctx, e.completion, e.prompts, PromptSearchQuery, promptData{
		"Query": query,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrEscalationFailed, "reformulate query", err)
	}
	if searchQuery == "" {
		searchQuery = query
	}

	result, err := e.searcher.DeepSearch(ctx, searchQuery, e.budget)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEscalationFailed, "deep search", err)
	}
	analysis := strings.TrimSpace(result.FinalAnalysis)
	if analysis == "" {
		return nil, domain.WrapError(domain.ErrEscalationFailed, "deep search", errors.New("empty final analysis"))
	}

	answer, err := e.hallucination.Check(ctx, analysis)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEscalationFailed, "hallucination check", err)
	}
	return &EscalationResult{
		Answer:  answer,
		Sources: CleanSources(result.Sources),
	}, nil
}

// CleanSources trims entries and drops those missing a title or URL.
func CleanSources(raw []domain.WebSource) []domain.WebSource {
	out := make([]domain.WebSource, 0, len(raw))
	for _, s := range raw {
		title := strings.TrimSpace(s.Title)
		url := strings.TrimSpace(s.URL)
		if title == "" || url == "" {
			continue
		}
		out = append(out, domain.WebSource{Title: title, URL: url})
	}
	return out
}
