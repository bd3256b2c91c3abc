package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeTrimsArabicPunctuation(t *testing.T) {
	assert.Equal(t, []string{"ما", "هو", "القصد", "الجنائي"}, tokenize("ما هو القصد الجنائي؟"))
}

func TestKeywordOverlapFraction(t *testing.T) {
	query := toTokenSet("risk report level")
	passage := toTokenSet("The risk level is high.")
	assert.InDelta(t, 2.0/3.0, keywordOverlap(query, passage), 1e-9)
}

func TestBM25DocumentFrequencyIsCandidateLocal(t *testing.T) {
	query := "عقوبة السرقة"
	// "عقوبة" appears in every doc of the first set, so it carries less weight
	// there than in the second set where it is rare.
	common := bm25Scores(query, []string{"عقوبة السرقة", "عقوبة القتل", "عقوبة التزوير"})
	rare := bm25Scores(query, []string{"عقوبة السرقة", "القتل العمد", "التزوير في محرر"})

	assert.Less(t, common[0], rare[0])
}

func TestBM25ScoresZeroForNoOverlap(t *testing.T) {
	scores := bm25Scores("القصد الجنائي العام", []string{"القصد الجنائي العام هو", "نص لا علاقة له"})
	require.Len(t, scores, 2)
	assert.Zero(t, scores[1])
	assert.Greater(t, scores[0], 0.0)
}

func TestBM25ScoresEmptyCorpus(t *testing.T) {
	assert.Empty(t, bm25Scores("عقوبة", nil))
}

func TestCosineSimilarityHandlesMismatchedDims(t *testing.T) {
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
}
