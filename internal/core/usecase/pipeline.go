package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/core/ports"
)

type PipelineConfig struct {
	Strategy     domain.RetrievalStrategy
	K            int
	FetchK       int
	RerankMethod domain.RerankMethod
	RerankTopK   int
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Strategy:     domain.RetrievalSimilarity,
		K:            5,
		RerankMethod: domain.RerankSemantic,
	}
}

// GenerationPipeline answers one query at a time: classify, then either answer
// directly, answer from the corpus with a quality gate, or escalate to web search.
type GenerationPipeline struct {
	router        *QueryRouter
	retrieval     *RetrievalEngine
	ranking       *RankingEngine
	completion    ports.CompletionService
	prompts       ports.PromptRenderer
	gate          *AnswerQualityGate
	escalator     *Escalator
	hallucination *HallucinationChecker
	observer      ports.PipelineObserver
	cfg           PipelineConfig
}

type GenerationPipelineDeps struct {
	Router        *QueryRouter
	Retrieval     *RetrievalEngine
	Ranking       *RankingEngine
	Completion    ports.CompletionService
	Prompts       ports.PromptRenderer
	Gate          *AnswerQualityGate
	Escalator     *Escalator
	Hallucination *HallucinationChecker
	Observer      ports.PipelineObserver
}

func NewGenerationPipeline(deps GenerationPipelineDeps, cfg PipelineConfig) *GenerationPipeline {
	def := DefaultPipelineConfig()
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	if cfg.K <= 0 {
		cfg.K = def.K
	}
	if cfg.RerankMethod == "" {
		cfg.RerankMethod = def.RerankMethod
	}
	observer := deps.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	gate := deps.Gate
	if gate == nil {
		gate = NewAnswerQualityGate()
	}
	hallucination := deps.Hallucination
	if hallucination == nil {
		hallucination = NewHallucinationChecker(deps.Completion, deps.Prompts)
	}
	return &GenerationPipeline{
		router:        deps.Router,
		retrieval:     deps.Retrieval,
		ranking:       deps.Ranking,
		completion:    deps.Completion,
		prompts:       deps.Prompts,
		gate:          gate,
		escalator:     deps.Escalator,
		hallucination: hallucination,
		observer:      observer,
		cfg:           cfg,
	}
}

type pipelineRun struct {
	query          string
	classification domain.QueryClassification
	trace          []domain.PipelineState
	started        time.Time
}

func (r *pipelineRun) enter(state domain.PipelineState) {
	r.trace = append(r.trace, state)
}

// Answer runs the pipeline. On failure it returns an error and no answer.
func (p *GenerationPipeline) Answer(ctx context.Context, query string) (*domain.Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidRequest, "answer", errors.New("query is empty"))
	}

	run := &pipelineRun{query: query, started: time.Now()}
	run.enter(domain.StateClassifying)
	run.classification = p.router.Classify(ctx, query)
	p.observer.ObserveClassification(run.classification)
	slog.Info("query_classified", "classification", string(run.classification))

	switch run.classification {
	case domain.QueryOutOfScope:
		return p.directAnswer(ctx, run)
	case domain.QueryCorpusAnswerable:
		return p.corpusAnswer(ctx, run)
	case domain.QueryNeedsWebSearch:
		return p.webAnswer(ctx, run)
	default:
		return p.fail(run, domain.WrapError(
			domain.ErrClassificationFailed,
			"classify query",
			fmt.Errorf("classification %q", run.classification),
		))
	}
}

func (p *GenerationPipeline) directAnswer(ctx context.Context, run *pipelineRun) (*domain.Answer, error) {
	run.enter(domain.StateDirectAnswer)
	raw, err := p.completion.Complete(ctx, run.query)
	if err != nil {
		return p.fail(run, fmt.Errorf("direct answer: %w", err))
	}
	checked, err := p.hallucination.Check(ctx, strings.TrimSpace(raw))
	if err != nil {
		return p.fail(run, fmt.Errorf("direct answer hallucination check: %w", err))
	}
	return p.done(run, &domain.Answer{
		Answer:             checked,
		RetrievedDocuments: []string{},
		SourceMetadata:     []map[string]any{},
	}), nil
}

func (p *GenerationPipeline) corpusAnswer(ctx context.Context, run *pipelineRun) (*domain.Answer, error) {
	run.enter(domain.StateRetrieving)
	retrieved, err := p.retrieval.Retrieve(ctx, domain.RetrievalRequest{
		Query:    run.query,
		K:        p.cfg.K,
		Strategy: p.cfg.Strategy,
		FetchK:   p.cfg.FetchK,
	})
	if err != nil {
		return p.fail(run, err)
	}
	p.observer.ObserveRetrieval(p.cfg.Strategy, len(retrieved))

	run.enter(domain.StateRanking)
	ranked, err := p.ranking.Rerank(ctx, domain.RerankRequest{
		Query:      run.query,
		Candidates: domain.Passages(retrieved),
		Method:     p.cfg.RerankMethod,
		TopK:       p.cfg.RerankTopK,
	})
	if err != nil {
		return p.fail(run, err)
	}

	run.enter(domain.StateGenerating)
	generated, err := renderAndComplete(ctx, p.completion, p.prompts, PromptGeneration, promptData{
		"Question": run.query,
		"Context":  formatContext(ranked),
	})
	if err != nil {
		return p.fail(run, fmt.Errorf("generate answer: %w", err))
	}

	provenance := &domain.Answer{
		Answer:             generated,
		RetrievedDocuments: make([]string, 0, len(ranked)),
		SourceMetadata:     make([]map[string]any, 0, len(ranked)),
	}
	for _, sp := range ranked {
		provenance.RetrievedDocuments = append(provenance.RetrievedDocuments, sp.Content)
		provenance.SourceMetadata = append(provenance.SourceMetadata, sp.Metadata)
	}

	run.enter(domain.StateQualityCheck)
	if p.gate.Validate(generated) == domain.VerdictAccept {
		return p.done(run, provenance), nil
	}

	run.enter(domain.StateEscalating)
	escalated, err := p.escalate(ctx, run)
	if err != nil {
		slog.Warn("escalation_failed", "error", err)
		provenance.FallbackReason = err.Error()
		return p.done(run, provenance), nil
	}
	return p.done(run, escalated), nil
}

func (p *GenerationPipeline) webAnswer(ctx context.Context, run *pipelineRun) (*domain.Answer, error) {
	run.enter(domain.StateEscalating)
	escalated, err := p.escalate(ctx, run)
	if err != nil {
		return p.fail(run, err)
	}
	return p.done(run, escalated), nil
}

func (p *GenerationPipeline) escalate(ctx context.Context, run *pipelineRun) (*domain.Answer, error) {
	if p.escalator == nil {
		p.observer.ObserveEscalation("failed")
		return nil, domain.WrapError(domain.ErrEscalationFailed, "escalate", errors.New("escalation is not configured"))
	}
	result, err := p.escalator.Escalate(ctx, run.query)
	if err != nil {
		p.observer.ObserveEscalation("failed")
		return nil, err
	}
	p.observer.ObserveEscalation("succeeded")

	metadata := make([]map[string]any, 0, len(result.Sources))
	for _, s := range result.Sources {
		metadata = append(metadata, map[string]any{"title": s.Title, "url": s.URL})
	}
	return &domain.Answer{
		Answer:             result.Answer,
		RetrievedDocuments: []string{},
		SourceMetadata:     metadata,
		Escalated:          true,
	}, nil
}

func (p *GenerationPipeline) done(run *pipelineRun, answer *domain.Answer) *domain.Answer {
	run.enter(domain.StateDone)
	answer.Classification = run.classification
	answer.Trace = run.trace
	p.observer.ObserveRun(domain.StateDone, answer.Escalated)
	slog.Info("pipeline_done",
		"classification", string(run.classification),
		"escalated", answer.Escalated,
		"fallback", answer.FallbackReason != "",
		"sources", len(answer.SourceMetadata),
		"duration_ms", float64(time.Since(run.started).Microseconds())/1000.0,
	)
	return answer
}

func (p *GenerationPipeline) fail(run *pipelineRun, err error) (*domain.Answer, error) {
	run.enter(domain.StateFailed)
	p.observer.ObserveRun(domain.StateFailed, false)
	slog.Error("pipeline_failed",
		"classification", string(run.classification),
		"trace", traceString(run.trace),
		"error", err,
	)
	return nil, err
}

func formatContext(passages []domain.ScoredPassage) string {
	var b strings.Builder
	for i, sp := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if source := sp.Source(); source != "" {
			fmt.Fprintf(&b, "[%d] (%s)\n", i+1, source)
		} else {
			fmt.Fprintf(&b, "[%d]\n", i+1)
		}
		b.WriteString(sp.Content)
	}
	return b.String()
}

func traceString(trace []domain.PipelineState) string {
	parts := make([]string, len(trace))
	for i, s := range trace {
		parts[i] = string(s)
	}
	return strings.Join(parts, ">")
}

type noopObserver struct{}

func (noopObserver) ObserveClassification(domain.QueryClassification) {}
func (noopObserver) ObserveRun(domain.PipelineState, bool) {}
func (noopObserver) ObserveEscalation(string) {}
func (noopObserver) ObserveRetrieval(domain.RetrievalStrategy, int) {}
