package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/core/ports"
)

// Hybrid fusion weights. The two component scores are summed as reported by
// their rankers, without renormalisation, so the fusion only behaves when both
// already live on comparable [0,1]-ish scales.
const (
	hybridSemanticWeight = 0.6
	hybridLexicalWeight  = 0.4
)

func hybridScore(semantic, lexical float64) float64 {
	return hybridSemanticWeight*semantic + hybridLexicalWeight*lexical
}

type RetrievalConfig struct {
	// MMRLambda trades relevance (1.0) against diversity (0.0).
	MMRLambda float64
	// DefaultFetchK is the candidate pool for MMR and hybrid when a request leaves FetchK unset.
	DefaultFetchK int
	// ContextualBase is the strategy CONTEXTUAL delegates to after rewriting the query.
	ContextualBase domain.RetrievalStrategy
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		MMRLambda:      0.5,
		DefaultFetchK:  20,
		ContextualBase: domain.RetrievalSimilarity,
	}
}

func (c RetrievalConfig) normalize() RetrievalConfig {
	out := c
	def := DefaultRetrievalConfig()
	if out.MMRLambda < 0 || out.MMRLambda > 1 {
		out.MMRLambda = def.MMRLambda
	}
	if out.DefaultFetchK <= 0 {
		out.DefaultFetchK = def.DefaultFetchK
	}
	if out.ContextualBase == "" {
		out.ContextualBase = def.ContextualBase
	}
	return out
}

type retrievalStrategy interface {
	retrieve(ctx context.Context, req domain.RetrievalRequest) ([]domain.ScoredPassage, error)
}

// RetrievalEngine fetches candidate passages from the index with one of the
// supported strategies.
type RetrievalEngine struct {
	index      ports.EmbeddingIndex
	completion ports.CompletionService
	prompts    ports.PromptRenderer
	cfg        RetrievalConfig
	tracer     trace.Tracer
}

func NewRetrievalEngine(
	index ports.EmbeddingIndex,
	completion ports.CompletionService,
	prompts ports.PromptRenderer,
	cfg RetrievalConfig,
) (*RetrievalEngine, error) {
	cfg = cfg.normalize()
	switch cfg.ContextualBase {
	case domain.RetrievalSimilarity, domain.RetrievalMMR, domain.RetrievalHybrid:
	default:
		return nil, domain.WrapError(
			domain.ErrConfiguration,
			"new retrieval engine",
			fmt.Errorf("contextual base strategy %q is not allowed", cfg.ContextualBase),
		)
	}
	return &RetrievalEngine{
		index:      index,
		completion: completion,
		prompts:    prompts,
		cfg:        cfg,
		tracer:     otel.Tracer("muffakir.retrieval"),
	}, nil
}

// Retrieve returns at most req.K passages. An empty index yields an empty slice.
func (e *RetrievalEngine) Retrieve(ctx context.Context, req domain.RetrievalRequest) ([]domain.ScoredPassage, error) {
	ctx, span := e.tracer.Start(ctx, "muffakir.retrieval.retrieve", trace.WithAttributes(
		attribute.String("strategy", string(req.Strategy)),
		attribute.Int("k", req.K),
		attribute.Int("fetch_k", req.FetchK),
	))
	defer span.End()

	out, err := e.retrieve(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}

func (e *RetrievalEngine) retrieve(ctx context.Context, req domain.RetrievalRequest) ([]domain.ScoredPassage, error) {
	strategy, err := e.strategyFor(req.Strategy)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return strategy.retrieve(ctx, req)
}

func (e *RetrievalEngine) strategyFor(s domain.RetrievalStrategy) (retrievalStrategy, error) {
	switch s {
	case domain.RetrievalSimilarity:
		return similarityRetrieval{engine: e}, nil
	case domain.RetrievalMMR:
		return mmrRetrieval{engine: e, lambda: e.cfg.MMRLambda}, nil
	case domain.RetrievalHybrid:
		return hybridRetrieval{engine: e}, nil
	case domain.RetrievalContextual:
		return contextualRetrieval{engine: e}, nil
	default:
		return nil, domain.WrapError(domain.ErrUnsupportedStrategy, "retrieve", fmt.Errorf("strategy %q", s))
	}
}

func (e *RetrievalEngine) poolSize(req domain.RetrievalRequest) int {
	size := req.FetchK
	if size == 0 {
		size = e.cfg.DefaultFetchK
	}
	if size < req.K {
		size = req.K
	}
	return size
}

// nearest embeds the query and asks the index for n neighbours. Every index
// failure is reported as ErrRetrievalBackend.
func (e *RetrievalEngine) nearest(ctx context.Context, query string, n int) ([]domain.Neighbor, []float32, error) {
	vectors, err := e.index.Embed(ctx, []string{query})
	if err != nil {
		return nil, nil, asBackendError("embed query", err)
	}
	if len(vectors) == 0 {
		return nil, nil, domain.WrapError(domain.ErrRetrievalBackend, "embed query", errors.New("empty embedding result"))
	}
	neighbors, err := e.index.Nearest(ctx, vectors[0], n)
	if err != nil {
		return nil, nil, asBackendError("nearest neighbours", err)
	}
	return neighbors, vectors[0], nil
}

func asBackendError(operation string, err error) error {
	if domain.IsKind(err, domain.ErrRetrievalBackend) {
		return err
	}
	return domain.WrapError(domain.ErrRetrievalBackend, operation, err)
}

type similarityRetrieval struct {
	engine *RetrievalEngine
}

// Ties keep the index's own order, which is not guaranteed to be stable
// across index implementations.
func (s similarityRetrieval) retrieve(ctx context.Context, req domain.RetrievalRequest) ([]domain.ScoredPassage, error) {
	neighbors, _, err := s.engine.nearest(ctx, req.Query, req.K)
	if err != nil {
		return nil, err
	}
	if len(neighbors) > req.K {
		neighbors = neighbors[:req.K]
	}
	out := make([]domain.ScoredPassage, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, domain.ScoredPassage{Passage: n.Passage, Score: 1 - n.Distance})
	}
	return out, nil
}

type mmrRetrieval struct {
	engine *RetrievalEngine
	lambda float64
}

func (s mmrRetrieval) retrieve(ctx context.Context, req domain.RetrievalRequest) ([]domain.ScoredPassage, error) {
	neighbors, queryVector, err := s.engine.nearest(ctx, req.Query, s.engine.poolSize(req))
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return []domain.ScoredPassage{}, nil
	}

	vectors, err := s.engine.passageVectors(ctx, neighbors)
	if err != nil {
		return nil, err
	}

	relevance := make([]float64, len(neighbors))
	for i := range neighbors {
		relevance[i] = cosineSimilarity(queryVector, vectors[i])
	}

	k := req.K
	if k > len(neighbors) {
		k = len(neighbors)
	}
	selected := make([]int, 0, k)
	taken := make([]bool, len(neighbors))
	out := make([]domain.ScoredPassage, 0, k)
	for len(selected) < k {
		best := -1
		bestScore := 0.0
		for i := range neighbors {
			if taken[i] {
				continue
			}
			redundancy := 0.0
			for _, j := range selected {
				if sim := cosineSimilarity(vectors[i], vectors[j]); sim > redundancy {
					redundancy = sim
				}
			}
			score := s.lambda*relevance[i] - (1-s.lambda)*redundancy
			if best == -1 || score > bestScore {
				best = i
				bestScore = score
			}
		}
		taken[best] = true
		selected = append(selected, best)
		out = append(out, domain.ScoredPassage{Passage: neighbors[best].Passage, Score: bestScore})
	}
	return out, nil
}

// passageVectors returns stored embeddings, embedding on demand those the
// index did not return.
func (e *RetrievalEngine) passageVectors(ctx context.Context, neighbors []domain.Neighbor) ([][]float32, error) {
	vectors := make([][]float32, len(neighbors))
	var missing []int
	var texts []string
	for i, n := range neighbors {
		if len(n.Passage.Embedding) > 0 {
			vectors[i] = n.Passage.Embedding
			continue
		}
		missing = append(missing, i)
		texts = append(texts, n.Passage.Content)
	}
	if len(missing) == 0 {
		return vectors, nil
	}
	embedded, err := e.index.Embed(ctx, texts)
	if err != nil {
		return nil, asBackendError("embed passages", err)
	}
	if len(embedded) != len(missing) {
		return nil, domain.WrapError(
			domain.ErrRetrievalBackend,
			"embed passages",
			fmt.Errorf("vectors/passages mismatch: %d/%d", len(embedded), len(missing)),
		)
	}
	for i, idx := range missing {
		vectors[idx] = embedded[i]
	}
	return vectors, nil
}

type hybridRetrieval struct {
	engine *RetrievalEngine
}

func (s hybridRetrieval) retrieve(ctx context.Context, req domain.RetrievalRequest) ([]domain.ScoredPassage, error) {
	neighbors, _, err := s.engine.nearest(ctx, req.Query, s.engine.poolSize(req))
	if err != nil {
		return nil, err
	}

	queryTokens := toTokenSet(req.Query)
	out := make([]domain.ScoredPassage, 0, len(neighbors))
	for _, n := range neighbors {
		semantic := 1 - n.Distance
		lexical := keywordOverlap(queryTokens, toTokenSet(n.Passage.Content))
		out = append(out, domain.ScoredPassage{Passage: n.Passage, Score: hybridScore(semantic, lexical)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > req.K {
		out = out[:req.K]
	}
	return out, nil
}

type contextualRetrieval struct {
	engine *RetrievalEngine
}

func (s contextualRetrieval) retrieve(ctx context.Context, req domain.RetrievalRequest) ([]domain.ScoredPassage, error) {
	rewritten, err := renderAndComplete(ctx, s.engine.completion, s.engine.prompts, PromptQueryRewrite, promptData{
		"Query": req.Query,
	})
	if err != nil {
		if domain.IsKind(err, domain.ErrConfiguration) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrCompletionService, "contextual query rewrite", err)
	}
	if rewritten == "" {
		rewritten = req.Query
	}

	base, err := s.engine.strategyFor(s.engine.cfg.ContextualBase)
	if err != nil {
		return nil, err
	}
	expanded := req
	expanded.Query = rewritten
	expanded.Strategy = s.engine.cfg.ContextualBase
	return base.retrieve(ctx, expanded)
}
