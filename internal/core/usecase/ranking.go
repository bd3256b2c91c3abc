package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/core/ports"
)

type RankingConfig struct {
	DefaultMethod domain.RerankMethod
	// EmbeddingCacheSize bounds the passage-embedding LRU; zero disables it.
	EmbeddingCacheSize int
	CrossEncoderLoader ports.CrossEncoderLoader
}

type rankingScorer interface {
	score(ctx context.Context, query string, candidates []domain.Passage) ([]float64, error)
}

// RankingEngine reorders a candidate set. Calls are stateless except for the
// cross-encoder, which is loaded on first use and kept for the engine's lifetime.
type RankingEngine struct {
	embedder ports.TextEmbedder
	cfg      RankingConfig
	cache    *lru.Cache[string, []float32]
	tracer   trace.Tracer

	loadMu sync.Mutex
	cross  ports.CrossEncoder
}

func NewRankingEngine(embedder ports.TextEmbedder, cfg RankingConfig) (*RankingEngine, error) {
	if cfg.DefaultMethod == "" {
		cfg.DefaultMethod = domain.RerankSemantic
	}
	if _, err := domain.ParseRerankMethod(string(cfg.DefaultMethod)); err != nil {
		return nil, err
	}
	if cfg.DefaultMethod == domain.RerankCrossEncoder && cfg.CrossEncoderLoader == nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "new ranking engine", errors.New("cross-encoder method requires a configured model"))
	}

	engine := &RankingEngine{
		embedder: embedder,
		cfg:      cfg,
		tracer:   otel.Tracer("muffakir.ranking"),
	}
	if cfg.EmbeddingCacheSize > 0 {
		cache, err := lru.New[string, []float32](cfg.EmbeddingCacheSize)
		if err != nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "init embedding cache", err)
		}
		engine.cache = cache
	}
	return engine, nil
}

// Rerank returns min(TopK or len, len) passages in descending score order.
// Equal scores keep their input order.
func (e *RankingEngine) Rerank(ctx context.Context, req domain.RerankRequest) ([]domain.ScoredPassage, error) {
	if len(req.Candidates) == 0 {
		return []domain.ScoredPassage{}, nil
	}
	method := req.Method
	if method == "" {
		method = e.cfg.DefaultMethod
	}

	ctx, span := e.tracer.Start(ctx, "muffakir.ranking.rerank", trace.WithAttributes(
		attribute.String("method", string(method)),
		attribute.Int("candidates", len(req.Candidates)),
	))
	defer span.End()

	out, err := e.rerank(ctx, method, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

func (e *RankingEngine) rerank(ctx context.Context, method domain.RerankMethod, req domain.RerankRequest) ([]domain.ScoredPassage, error) {
	scorer, err := e.scorerFor(method)
	if err != nil {
		return nil, err
	}
	scores, err := scorer.score(ctx, req.Query, req.Candidates)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(req.Candidates) {
		return nil, fmt.Errorf("rerank %s: scores/candidates mismatch: %d/%d", method, len(scores), len(req.Candidates))
	}

	out := make([]domain.ScoredPassage, len(req.Candidates))
	for i, p := range req.Candidates {
		out[i] = domain.ScoredPassage{Passage: p, Score: scores[i]}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if req.TopK > 0 && req.TopK < len(out) {
		out = out[:req.TopK]
	}
	return out, nil
}

func (e *RankingEngine) scorerFor(method domain.RerankMethod) (rankingScorer, error) {
	switch method {
	case domain.RerankSemantic:
		return semanticScorer{engine: e}, nil
	case domain.RerankBM25:
		return bm25Scorer{}, nil
	case domain.RerankHybrid:
		return hybridScorer{semantic: semanticScorer{engine: e}}, nil
	case domain.RerankCrossEncoder:
		if e.cfg.CrossEncoderLoader == nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "rerank", errors.New("cross-encoder method requires a configured model"))
		}
		return crossEncoderScorer{engine: e}, nil
	default:
		return nil, domain.WrapError(domain.ErrUnsupportedStrategy, "rerank", fmt.Errorf("method %q", method))
	}
}

// crossEncoder loads the model once. A failed load is not memoised so a
// later call may retry it.
func (e *RankingEngine) crossEncoder(ctx context.Context) (ports.CrossEncoder, error) {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	if e.cross != nil {
		return e.cross, nil
	}
	model, err := e.cfg.CrossEncoderLoader(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "load cross-encoder", err)
	}
	if model == nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "load cross-encoder", errors.New("loader returned no model"))
	}
	e.cross = model
	return model, nil
}

func (e *RankingEngine) embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []int
	var pending []string
	for i, text := range texts {
		if e.cache != nil {
			if v, ok := e.cache.Get(cacheKey(text)); ok {
				out[i] = v
				continue
			}
		}
		missing = append(missing, i)
		pending = append(pending, text)
	}
	if len(pending) == 0 {
		return out, nil
	}

	vectors, err := e.embedder.Embed(ctx, pending)
	if err != nil {
		return nil, asBackendError("rerank embed", err)
	}
	if len(vectors) != len(pending) {
		return nil, domain.WrapError(
			domain.ErrRetrievalBackend,
			"rerank embed",
			fmt.Errorf("vectors/texts mismatch: %d/%d", len(vectors), len(pending)),
		)
	}
	for i, idx := range missing {
		out[idx] = vectors[i]
		if e.cache != nil {
			e.cache.Add(cacheKey(pending[i]), vectors[i])
		}
	}
	return out, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

type semanticScorer struct {
	engine *RankingEngine
}

func (s semanticScorer) score(ctx context.Context, query string, candidates []domain.Passage) ([]float64, error) {
	texts := []string{query}
	var missing []int
	for i, p := range candidates {
		if len(p.Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, p.Content)
		}
	}
	vectors, err := s.engine.embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	passageVectors := make([][]float32, len(candidates))
	for i, p := range candidates {
		passageVectors[i] = p.Embedding
	}
	for i, idx := range missing {
		passageVectors[idx] = vectors[i+1]
	}

	scores := make([]float64, len(candidates))
	for i := range candidates {
		scores[i] = cosineSimilarity(vectors[0], passageVectors[i])
	}
	return scores, nil
}

type bm25Scorer struct{}

func (bm25Scorer) score(_ context.Context, query string, candidates []domain.Passage) ([]float64, error) {
	return bm25Scores(query, passageContents(candidates)), nil
}

func passageContents(passages []domain.Passage) []string {
	docs := make([]string, len(passages))
	for i, p := range passages {
		docs[i] = p.Content
	}
	return docs
}

type hybridScorer struct {
	semantic semanticScorer
}

// BM25 is unbounded, so the lexical half can dominate on long queries.
func (s hybridScorer) score(ctx context.Context, query string, candidates []domain.Passage) ([]float64, error) {
	semantic, err := s.semantic.score(ctx, query, candidates)
	if err != nil {
		return nil, err
	}
	lexical := bm25Scores(query, passageContents(candidates))
	out := make([]float64, len(candidates))
	for i := range candidates {
		out[i] = hybridScore(semantic[i], lexical[i])
	}
	return out, nil
}

type crossEncoderScorer struct {
	engine *RankingEngine
}

func (s crossEncoderScorer) score(ctx context.Context, query string, candidates []domain.Passage) ([]float64, error) {
	model, err := s.engine.crossEncoder(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]string, len(candidates))
	for i, p := range candidates {
		docs[i] = p.Content
	}
	scores, err := model.Score(ctx, query, docs)
	if err != nil {
		return nil, fmt.Errorf("cross-encoder score: %w", err)
	}
	return scores, nil
}
