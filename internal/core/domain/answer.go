package domain

import "time"

type QueryClassification string

const (
	QueryCorpusAnswerable    QueryClassification = "corpus_answerable"
	QueryOutOfScope          QueryClassification = "out_of_scope"
	QueryNeedsWebSearch      QueryClassification = "needs_web_search"
	QueryClassificationError QueryClassification = "classification_error"
)

type Verdict string

const (
	VerdictAccept   Verdict = "accept"
	VerdictEscalate Verdict = "escalate"
)

type PipelineState string

const (
	StateClassifying  PipelineState = "classifying"
	StateDirectAnswer PipelineState = "direct_answer"
	StateRetrieving   PipelineState = "retrieving"
	StateRanking      PipelineState = "ranking"
	StateGenerating   PipelineState = "generating"
	StateQualityCheck PipelineState = "quality_check"
	StateEscalating   PipelineState = "escalating"
	StateDone         PipelineState = "done"
	StateFailed       PipelineState = "failed"
)

// SearchBudget bounds a deep search. The core passes it through unchanged.
type SearchBudget struct {
	MaxDepth  int           `json:"max_depth"`
	TimeLimit time.Duration `json:"time_limit"`
	MaxURLs   int           `json:"max_urls"`
}

func DefaultSearchBudget() SearchBudget {
	return SearchBudget{
		MaxDepth:  3,
		TimeLimit: 30 * time.Second,
		MaxURLs:   5,
	}
}

type WebSource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type DeepSearchResult struct {
	FinalAnalysis string      `json:"final_analysis"`
	Sources       []WebSource `json:"sources"`
}

// Answer is the result of one pipeline run.
type Answer struct {
	Answer             string              `json:"answer"`
	RetrievedDocuments []string            `json:"retrieved_documents"`
	SourceMetadata     []map[string]any    `json:"source_metadata"`
	Classification     QueryClassification `json:"classification"`
	Escalated          bool                `json:"escalated"`
	FallbackReason     string              `json:"fallback_reason,omitempty"`
	Trace              []PipelineState     `json:"trace"`
}
