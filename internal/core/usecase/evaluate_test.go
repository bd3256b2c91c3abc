package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muffakir/legal-assistant/internal/core/domain"
)

func TestEvaluateComputesRecallAndMRR(t *testing.T) {
	corpus := legalCorpus()
	// Summary-prefixed passage still matches the labelled text.
	corpus[1].Content = domain.SummaryPrefix + "عقوبة السرقة\n" + corpus[1].Content
	engine := newRetrievalEngineForTest(t, &indexFake{passages: corpus}, nil)
	uc := NewEvaluateRetrievalUseCase(engine, "")

	report, err := uc.Evaluate(context.Background(), []domain.EvalCase{
		{Question: "ما هو القصد الجنائي", Passage: legalCorpus()[0].Content},
		{Question: "ما عقوبة السرقة", Passage: "عقوبة السرقة الحبس مع الشغل"},
		{Question: "ما أحكام الشركات التجارية", Passage: "نص غير موجود في الفهرس"},
		{Question: "  ", Passage: "ignored"},
	}, 2)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Hits)
	assert.InDelta(t, 2.0/3.0, report.RecallAtK, 1e-9)
	assert.InDelta(t, 2.0/3.0, report.MRR, 1e-9)
	assert.Equal(t, 1, report.Results[0].Position)
	assert.False(t, report.Results[2].Hit)
}

func TestEvaluateRejectsBadInput(t *testing.T) {
	engine := newRetrievalEngineForTest(t, &indexFake{}, nil)
	uc := NewEvaluateRetrievalUseCase(engine, domain.RetrievalSimilarity)

	_, err := uc.Evaluate(context.Background(), nil, 3)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidRequest), "got %v", err)

	_, err = uc.Evaluate(context.Background(), []domain.EvalCase{{Question: "q", Passage: "p"}}, 0)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidRequest), "got %v", err)
}

func TestEvaluatePropagatesRetrievalErrors(t *testing.T) {
	engine := newRetrievalEngineForTest(t, &indexFake{nearestErr: errors.New("down")}, nil)
	uc := NewEvaluateRetrievalUseCase(engine, domain.RetrievalSimilarity)

	_, err := uc.Evaluate(context.Background(), []domain.EvalCase{{Question: "q", Passage: "p"}}, 3)
	assert.True(t, domain.IsKind(err, domain.ErrRetrievalBackend), "got %v", err)
}

func TestPassageMatches(t *testing.T) {
	assert.True(t, passageMatches("الملخص : x\nالمادة 1", "المادة 1"))
	assert.True(t, passageMatches("المادة 1", "نص المادة 1 كاملا"))
	assert.False(t, passageMatches("", "المادة 1"))
	assert.False(t, passageMatches("المادة 2", "المادة 1"))
}
