package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Document is an uploaded legal source (statute, code, ruling) before it is
// split into passages.
type Document struct {
	ID          string         `json:"id"`
	Filename    string         `json:"filename"`
	MimeType    string         `json:"mime_type"`
	StoragePath string         `json:"storage_path"`
	ChunkCount  int            `json:"chunk_count"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// SummaryPrefix starts every summarised chunk stored in the index.
const SummaryPrefix = "الملخص : "

// EvalCase is one labelled retrieval evaluation row.
type EvalCase struct {
	Question string `json:"question"`
	Passage  string `json:"passage"`
}

type EvalCaseResult struct {
	Question  string `json:"question"`
	Retrieved int    `json:"retrieved"`
	Hit       bool   `json:"hit"`
	Position  int    `json:"position"`
}

type EvalReport struct {
	Total     int              `json:"total"`
	Hits      int              `json:"hits"`
	RecallAtK float64          `json:"recall_at_k"`
	MRR       float64          `json:"mrr"`
	K         int              `json:"k"`
	Results   []EvalCaseResult `json:"results"`
}

// HeaderEvalResult is the similarity of one question to its chunk, with and
// without the summary header.
type HeaderEvalResult struct {
	Question      string  `json:"question"`
	Chunk         string  `json:"chunk"`
	WithoutHeader float64 `json:"without_header"`
	WithHeader    float64 `json:"with_header"`
}

type HeaderEvalReport struct {
	Total   int `json:"total"`
	Skipped int `json:"skipped"`
	// Averages are over evaluated chunks; Improvement is relative to AvgWithout
	// and zero when AvgWithout is zero.
	AvgWithout  float64            `json:"avg_without_header"`
	AvgWith     float64            `json:"avg_with_header"`
	Improvement float64            `json:"improvement"`
	Results     []HeaderEvalResult `json:"results"`
}
