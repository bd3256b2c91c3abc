package usecase

import (
	"context"

	"github.com/muffakir/legal-assistant/internal/core/domain"
)

// SearchPassagesUseCase retrieves passages and optionally reranks them.
type SearchPassagesUseCase struct {
	retrieval *RetrievalEngine
	ranking   *RankingEngine
}

func NewSearchPassagesUseCase(retrieval *RetrievalEngine, ranking *RankingEngine) *SearchPassagesUseCase {
	return &SearchPassagesUseCase{retrieval: retrieval, ranking: ranking}
}

func (uc *SearchPassagesUseCase) Search(ctx context.Context, req domain.SearchRequest) ([]domain.ScoredPassage, error) {
	retrieved, err := uc.retrieval.Retrieve(ctx, req.Retrieval)
	if err != nil {
		return nil, err
	}
	if req.Rerank == "" || uc.ranking == nil {
		return retrieved, nil
	}
	return uc.ranking.Rerank(ctx, domain.RerankRequest{
		Query:      req.Retrieval.Query,
		Candidates: domain.Passages(retrieved),
		Method:     req.Rerank,
		TopK:       req.Retrieval.K,
	})
}
