package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/muffakir/legal-assistant/internal/core/domain"
)

func postJSON(handler http.Handler, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decodeError(t *testing.T, res *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var payload map[string]errorBody
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload["error"]
}

func TestHealthzEndpoint(t *testing.T) {
	f := newRouterFixture(defaultTestConfig(), ingestFake{}, docsFake{})
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestAnswerReturnsPipelineResult(t *testing.T) {
	f := newRouterFixture(defaultTestConfig(), ingestFake{}, docsFake{})
	res := postJSON(f.handler, "/v1/answer", `{"query":"ما هو القصد الجنائي؟"}`)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if f.answers.query != "ما هو القصد الجنائي؟" {
		t.Fatalf("unexpected query %q", f.answers.query)
	}
	var answer domain.Answer
	if err := json.NewDecoder(res.Body).Decode(&answer); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if answer.Classification != domain.QueryCorpusAnswerable || len(answer.RetrievedDocuments) != 1 {
		t.Fatalf("unexpected answer: %+v", answer)
	}
}

func TestAnswerRejectsUnknownFields(t *testing.T) {
	f := newRouterFixture(defaultTestConfig(), ingestFake{}, docsFake{})
	res := postJSON(f.handler, "/v1/answer", `{"question":"x"}`)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if body := decodeError(t, res); body.Kind != "invalid_request" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestAnswerMapsErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		code int
		kind string
	}{
		{domain.WrapError(domain.ErrInvalidRequest, "answer", errors.New("query is empty")), http.StatusBadRequest, "invalid_request"},
		{domain.WrapError(domain.ErrUnsupportedStrategy, "retrieve", errors.New("x")), http.StatusUnprocessableEntity, "unsupported_strategy"},
		{domain.WrapError(domain.ErrConfiguration, "rerank", errors.New("no cross-encoder")), http.StatusInternalServerError, "configuration"},
		{domain.WrapError(domain.ErrRetrievalBackend, "nearest", errors.New("qdrant down")), http.StatusBadGateway, "retrieval_backend"},
		{domain.WrapError(domain.ErrEscalationFailed, "deep search", errors.New("timeout")), http.StatusBadGateway, "escalation_failed"},
		{domain.WrapError(domain.ErrCompletionService, "complete", errors.New("429")), http.StatusServiceUnavailable, "completion_service"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		f := newRouterFixture(defaultTestConfig(), ingestFake{}, docsFake{})
		f.answers.err = tc.err
		res := postJSON(f.handler, "/v1/answer", `{"query":"q"}`)
		if res.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, res.Code)
		}
		if body := decodeError(t, res); body.Kind != tc.kind || body.RequestID == "" {
			t.Fatalf("%v: unexpected error body %+v", tc.err, body)
		}
	}
}

func TestSearchAppliesDefaultsAndParsesMethods(t *testing.T) {
	f := newRouterFixture(defaultTestConfig(), ingestFake{}, docsFake{})
	res := postJSON(f.handler, "/v1/search", `{"query":"عقوبة السرقة","strategy":"mmr","fetch_k":10,"rerank":"bm25"}`)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	got := f.search.req
	if got.Retrieval.Strategy != domain.RetrievalMMR || got.Retrieval.K != 5 || got.Retrieval.FetchK != 10 || got.Rerank != domain.RerankBM25 {
		t.Fatalf("unexpected search request: %+v", got)
	}
}

func TestSearchRejectsUnknownStrategy(t *testing.T) {
	f := newRouterFixture(defaultTestConfig(), ingestFake{}, docsFake{})
	res := postJSON(f.handler, "/v1/search", `{"query":"q","strategy":"keyword_only"}`)

	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
}

func TestUploadDocumentSuccess(t *testing.T) {
	f := newRouterFixture(defaultTestConfig(), ingestFake{}, docsFake{})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "penal.txt")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write([]byte("المادة 1")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	var docResp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&docResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if docResp["id"] != "doc-1" || docResp["filename"] != "penal.txt" {
		t.Fatalf("unexpected response: %+v", docResp)
	}
}

func TestUploadDocumentMissingMultipartField(t *testing.T) {
	f := newRouterFixture(defaultTestConfig(), ingestFake{}, docsFake{})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetDocumentByID(t *testing.T) {
	f := newRouterFixture(defaultTestConfig(), ingestFake{}, docsFake{})
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/doc-9", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var doc domain.Document
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.ID != "doc-9" || doc.ChunkCount != 3 {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestGetDocumentByIDReturns404ForNotFound(t *testing.T) {
	f := newRouterFixture(defaultTestConfig(), ingestFake{}, docsFake{
		err: domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New("id=missing")),
	})
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil))

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newRouterFixture(defaultTestConfig(), ingestFake{}, docsFake{})
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/answer", nil))

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestAuthTokenGuardsAPI(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.APIAuthToken = "secret"
	f := newRouterFixture(cfg, ingestFake{}, docsFake{})

	res := postJSON(f.handler, "/v1/answer", `{"query":"q"}`)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/answer", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("Authorization", "Bearer secret")
	ok := httptest.NewRecorder()
	f.handler.ServeHTTP(ok, req)
	if ok.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", ok.Code)
	}

	health := httptest.NewRecorder()
	f.handler.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if health.Code != http.StatusOK {
		t.Fatalf("healthz must stay public, got %d", health.Code)
	}
}
