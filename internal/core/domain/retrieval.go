package domain

import (
	"fmt"
	"strings"
)

// Passage is a unit of retrievable text. Passages are read-only inside the core.
type Passage struct {
	ID        string         `json:"id,omitempty"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"-"`
}

func (p Passage) Source() string {
	v, ok := p.Metadata["source"]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// ScoredPassage carries a strategy-defined score. Scores from different
// strategies are not comparable.
type ScoredPassage struct {
	Passage
	Score float64 `json:"score"`
}

// Neighbor is a nearest-neighbour hit as reported by the index.
type Neighbor struct {
	Passage  Passage
	Distance float64
}

type RetrievalStrategy string

const (
	RetrievalSimilarity RetrievalStrategy = "similarity"
	RetrievalMMR        RetrievalStrategy = "max_marginal_relevance"
	RetrievalHybrid     RetrievalStrategy = "hybrid"
	RetrievalContextual RetrievalStrategy = "contextual"
)

func ParseRetrievalStrategy(raw string) (RetrievalStrategy, error) {
	switch s := RetrievalStrategy(strings.ToLower(strings.TrimSpace(raw))); s {
	case RetrievalSimilarity, RetrievalMMR, RetrievalHybrid, RetrievalContextual:
		return s, nil
	case "mmr":
		return RetrievalMMR, nil
	default:
		return "", WrapError(ErrUnsupportedStrategy, "parse retrieval strategy", fmt.Errorf("unknown strategy %q", raw))
	}
}

type RetrievalRequest struct {
	Query    string            `json:"query"`
	K        int               `json:"k"`
	Strategy RetrievalStrategy `json:"strategy"`
	// FetchK is the candidate pool size; zero means unset.
	FetchK int `json:"fetch_k,omitempty"`
}

func (r RetrievalRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return WrapError(ErrInvalidRequest, "validate retrieval request", fmt.Errorf("query is empty"))
	}
	if r.K <= 0 {
		return WrapError(ErrInvalidRequest, "validate retrieval request", fmt.Errorf("k must be positive, got %d", r.K))
	}
	if r.FetchK != 0 && r.FetchK < r.K {
		return WrapError(ErrInvalidRequest, "validate retrieval request", fmt.Errorf("fetch_k %d is less than k %d", r.FetchK, r.K))
	}
	return nil
}

type RerankMethod string

const (
	RerankSemantic     RerankMethod = "semantic"
	RerankBM25         RerankMethod = "bm25"
	RerankHybrid       RerankMethod = "hybrid"
	RerankCrossEncoder RerankMethod = "cross_encoder"
)

func ParseRerankMethod(raw string) (RerankMethod, error) {
	switch m := RerankMethod(strings.ToLower(strings.TrimSpace(raw))); m {
	case RerankSemantic, RerankBM25, RerankHybrid, RerankCrossEncoder:
		return m, nil
	default:
		return "", WrapError(ErrUnsupportedStrategy, "parse rerank method", fmt.Errorf("unknown method %q", raw))
	}
}

type RerankRequest struct {
	Query      string       `json:"query"`
	Candidates []Passage    `json:"candidates"`
	Method     RerankMethod `json:"method"`
	// TopK truncates the output; zero keeps every candidate.
	TopK int `json:"top_k,omitempty"`
}

// Passages strips scores while keeping order.
func Passages(scored []ScoredPassage) []Passage {
	out := make([]Passage, 0, len(scored))
	for _, sp := range scored {
		out = append(out, sp.Passage)
	}
	return out
}

// SearchRequest is a retrieval optionally followed by a rerank over the
// retrieved candidates. An empty Rerank keeps retrieval order.
type SearchRequest struct {
	Retrieval RetrievalRequest `json:"retrieval"`
	Rerank    RerankMethod     `json:"rerank,omitempty"`
}
