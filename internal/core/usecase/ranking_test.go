package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/core/ports"
)

func TestRerankEmptyCandidatesForEveryMethod(t *testing.T) {
	engine, err := NewRankingEngine(&indexFake{}, RankingConfig{})
	require.NoError(t, err)

	for _, method := range []domain.RerankMethod{
		domain.RerankSemantic,
		domain.RerankBM25,
		domain.RerankHybrid,
		domain.RerankCrossEncoder,
	} {
		out, err := engine.Rerank(context.Background(), domain.RerankRequest{Query: "سؤال", Method: method})
		require.NoError(t, err, method)
		assert.NotNil(t, out, method)
		assert.Empty(t, out, method)
	}
}

func TestRerankBM25PrefersTermOverlap(t *testing.T) {
	engine, err := NewRankingEngine(&indexFake{}, RankingConfig{})
	require.NoError(t, err)

	out, err := engine.Rerank(context.Background(), domain.RerankRequest{
		Query: "القصد الجنائي العام",
		Candidates: []domain.Passage{
			passage("b", "عقوبة السرقة الحبس"),
			passage("a", "القصد الجنائي العام يتوافر بالعلم والإرادة"),
		},
		Method: domain.RerankBM25,
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Greater(t, out[0].Score, 0.0)
	assert.Equal(t, 0.0, out[1].Score)
}

func TestRerankKeepsInputOrderOnTies(t *testing.T) {
	engine, err := NewRankingEngine(&indexFake{}, RankingConfig{})
	require.NoError(t, err)

	out, err := engine.Rerank(context.Background(), domain.RerankRequest{
		Query: "التحكيم",
		Candidates: []domain.Passage{
			passage("first", "نص أول"),
			passage("second", "نص ثان"),
			passage("third", "نص ثالث"),
		},
		Method: domain.RerankBM25,
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{out[0].ID, out[1].ID, out[2].ID})
}

func TestRerankSemanticPutsClosestFirst(t *testing.T) {
	engine, err := NewRankingEngine(&indexFake{}, RankingConfig{})
	require.NoError(t, err)

	out, err := engine.Rerank(context.Background(), domain.RerankRequest{
		Query:      "ما هو القصد الجنائي",
		Candidates: legalCorpus(),
		Method:     domain.RerankSemantic,
	})
	require.NoError(t, err)
	require.Len(t, out, len(legalCorpus()))
	assert.Equal(t, "penal-1", out[0].ID)
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].Score, out[i].Score)
	}
}

func TestRerankHybridCombinesPerPassage(t *testing.T) {
	index := &indexFake{vectors: map[string][]float32{
		"penalty clause": {1, 0},
		"semantic":       {1, 0},
	}}
	engine, err := NewRankingEngine(index, RankingConfig{})
	require.NoError(t, err)

	out, err := engine.Rerank(context.Background(), domain.RerankRequest{
		Query: "penalty clause",
		Candidates: []domain.Passage{
			{ID: "semantic", Content: "semantic"},
			{ID: "lexical", Content: "lexical", Embedding: []float32{0, 1}},
		},
		Method: domain.RerankHybrid,
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	scores := map[string]float64{}
	for _, sp := range out {
		scores[sp.ID] = sp.Score
	}
	assert.InDelta(t, 0.6, scores["semantic"], 1e-9)
	assert.InDelta(t, 0.0, scores["lexical"], 1e-9)
}

func TestRerankTruncatesToTopK(t *testing.T) {
	engine, err := NewRankingEngine(&indexFake{}, RankingConfig{})
	require.NoError(t, err)

	out, err := engine.Rerank(context.Background(), domain.RerankRequest{
		Query:      "القصد الجنائي",
		Candidates: legalCorpus(),
		Method:     domain.RerankBM25,
		TopK:       2,
	})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestRerankCrossEncoderWithoutModelIsConfigurationError(t *testing.T) {
	engine, err := NewRankingEngine(&indexFake{}, RankingConfig{})
	require.NoError(t, err)

	_, err = engine.Rerank(context.Background(), domain.RerankRequest{
		Query:      "سؤال",
		Candidates: legalCorpus(),
		Method:     domain.RerankCrossEncoder,
	})
	assert.True(t, domain.IsKind(err, domain.ErrConfiguration), "got %v", err)

	_, err = NewRankingEngine(&indexFake{}, RankingConfig{DefaultMethod: domain.RerankCrossEncoder})
	assert.True(t, domain.IsKind(err, domain.ErrConfiguration), "got %v", err)
}

func TestRerankUnknownMethod(t *testing.T) {
	engine, err := NewRankingEngine(&indexFake{}, RankingConfig{})
	require.NoError(t, err)

	_, err = engine.Rerank(context.Background(), domain.RerankRequest{
		Query:      "سؤال",
		Candidates: legalCorpus(),
		Method:     "colbert",
	})
	assert.True(t, domain.IsKind(err, domain.ErrUnsupportedStrategy), "got %v", err)
}

func TestCrossEncoderLoadsOnce(t *testing.T) {
	var loads atomic.Int32
	loader := func(context.Context) (ports.CrossEncoder, error) {
		loads.Add(1)
		return crossEncoderFake{scores: []float64{0.1, 0.9, 0.5, 0.3}}, nil
	}
	engine, err := NewRankingEngine(&indexFake{}, RankingConfig{CrossEncoderLoader: loader})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := engine.Rerank(context.Background(), domain.RerankRequest{
				Query:      "سؤال",
				Candidates: legalCorpus(),
				Method:     domain.RerankCrossEncoder,
			})
			if err != nil {
				errs <- err
				return
			}
			if out[0].ID != "penal-2" {
				errs <- errors.New("unexpected top passage " + out[0].ID)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err, "rerank")
	}
	assert.Equal(t, int32(1), loads.Load())
}

func TestCrossEncoderFailedLoadIsRetried(t *testing.T) {
	var loads atomic.Int32
	loader := func(context.Context) (ports.CrossEncoder, error) {
		if loads.Add(1) == 1 {
			return nil, errors.New("model download interrupted")
		}
		return crossEncoderFake{scores: []float64{0.2, 0.1}}, nil
	}
	engine, err := NewRankingEngine(&indexFake{}, RankingConfig{CrossEncoderLoader: loader})
	require.NoError(t, err)

	req := domain.RerankRequest{
		Query:      "سؤال",
		Candidates: []domain.Passage{passage("x", "نص"), passage("y", "نص آخر")},
		Method:     domain.RerankCrossEncoder,
	}
	_, err = engine.Rerank(context.Background(), req)
	assert.True(t, domain.IsKind(err, domain.ErrConfiguration), "got %v", err)

	out, err := engine.Rerank(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "x", out[0].ID)
	assert.Equal(t, int32(2), loads.Load())
}

func TestSemanticRerankUsesEmbeddingCache(t *testing.T) {
	index := &indexFake{}
	engine, err := NewRankingEngine(index, RankingConfig{EmbeddingCacheSize: 16})
	require.NoError(t, err)

	req := domain.RerankRequest{
		Query:      "القصد الجنائي",
		Candidates: legalCorpus(),
		Method:     domain.RerankSemantic,
	}
	_, err = engine.Rerank(context.Background(), req)
	require.NoError(t, err)
	_, err = engine.Rerank(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, index.embedCalls)
}

func TestSemanticRerankWrapsEmbedderFailure(t *testing.T) {
	engine, err := NewRankingEngine(&indexFake{embedErr: errors.New("connection refused")}, RankingConfig{})
	require.NoError(t, err)

	_, err = engine.Rerank(context.Background(), domain.RerankRequest{
		Query:      "سؤال",
		Candidates: legalCorpus(),
		Method:     domain.RerankSemantic,
	})
	assert.True(t, domain.IsKind(err, domain.ErrRetrievalBackend), "got %v", err)
}
