package httpadapter

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/muffakir/legal-assistant/internal/config"
	"github.com/muffakir/legal-assistant/internal/core/domain"
)

type answerFake struct {
	err   error
	query string
}

func (f *answerFake) Answer(_ context.Context, query string) (*domain.Answer, error) {
	f.query = query
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Answer{
		Answer:             "القصد الجنائي هو ...",
		RetrievedDocuments: []string{"المادة 1"},
		SourceMetadata:     []map[string]any{{"source": "penal.pdf"}},
		Classification:     domain.QueryCorpusAnswerable,
		Trace:              []domain.PipelineState{domain.StateClassifying, domain.StateDone},
	}, nil
}

type ingestFake struct {
	err error
}

func (f ingestFake) Upload(_ context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", io.EOF)
	}

	now := time.Now().UTC()
	return &domain.Document{
		ID:          "doc-1",
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: "doc-1_file.txt",
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type docsFake struct {
	err error
}

func (f docsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, Filename: "a", MimeType: "text/plain", StoragePath: "a", ChunkCount: 3, Status: domain.StatusReady}, nil
}

type searchFake struct {
	err error
	req domain.SearchRequest
}

func (f *searchFake) Search(_ context.Context, req domain.SearchRequest) ([]domain.ScoredPassage, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return []domain.ScoredPassage{{Passage: domain.Passage{ID: "p1", Content: "المادة 1"}, Score: 0.9}}, nil
}

type routerFixture struct {
	answers *answerFake
	search  *searchFake
	handler http.Handler
}

func newRouterFixture(cfg config.Config, ingest ingestFake, docs docsFake) *routerFixture {
	f := &routerFixture{answers: &answerFake{}, search: &searchFake{}}
	f.handler = NewRouter(cfg, f.answers, ingest, docs, f.search).Handler()
	return f
}

func defaultTestConfig() config.Config {
	return config.Config{RetrievalStrategy: "similarity", RetrievalTopK: 5}
}
