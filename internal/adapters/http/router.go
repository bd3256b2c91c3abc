package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/muffakir/legal-assistant/internal/config"
	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/core/ports"
)

type Router struct {
	answers ports.LegalAnswerService
	ingest  ports.DocumentIngestor
	docs    ports.DocumentReader
	search  ports.PassageSearcher
	cfg     config.Config
}

func NewRouter(
	cfg config.Config,
	answers ports.LegalAnswerService,
	ingest ports.DocumentIngestor,
	docs ports.DocumentReader,
	search ports.PassageSearcher,
) *Router {
	return &Router{
		answers: answers,
		ingest:  ingest,
		docs:    docs,
		search:  search,
		cfg:     cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/answer", rt.answer)
	api.HandleFunc("POST /v1/search", rt.searchPassages)
	api.HandleFunc("POST /v1/documents", rt.uploadDocument)
	api.HandleFunc("GET /v1/documents/{id}", rt.getDocumentByID)

	guarded := authMiddleware(rt.cfg.APIAuthToken, api)
	guarded = backpressureMiddleware(guarded, rt.cfg.APIBackpressureMaxInFlight, rt.cfg.APIBackpressureWaitTimeout)
	guarded = rateLimitMiddleware(guarded, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("/v1/", guarded)
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type answerRequest struct {
	Query string `json:"query"`
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := rt.withAnswerTimeout(r.Context())
	defer cancel()

	answer, err := rt.answers.Answer(ctx, req.Query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

type searchRequest struct {
	Query    string `json:"query"`
	Strategy string `json:"strategy"`
	K        int    `json:"k"`
	FetchK   int    `json:"fetch_k"`
	Rerank   string `json:"rerank"`
}

type searchResponse struct {
	Strategy domain.RetrievalStrategy `json:"strategy"`
	Rerank   domain.RerankMethod      `json:"rerank,omitempty"`
	Passages []domain.ScoredPassage   `json:"passages"`
}

func (rt *Router) searchPassages(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	strategyName := req.Strategy
	if strategyName == "" {
		strategyName = rt.cfg.RetrievalStrategy
	}
	strategy, err := domain.ParseRetrievalStrategy(strategyName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var rerank domain.RerankMethod
	if req.Rerank != "" {
		if rerank, err = domain.ParseRerankMethod(req.Rerank); err != nil {
			writeError(w, r, err)
			return
		}
	}
	k := req.K
	if k == 0 {
		k = rt.cfg.RetrievalTopK
	}

	ctx, cancel := rt.withAnswerTimeout(r.Context())
	defer cancel()

	passages, err := rt.search.Search(ctx, domain.SearchRequest{
		Retrieval: domain.RetrievalRequest{Query: req.Query, K: k, Strategy: strategy, FetchK: req.FetchK},
		Rerank:    rerank,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Strategy: strategy, Rerank: rerank, Passages: passages})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.APIMaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.APIMaxUploadBytes)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorStatus(w, r, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit")
			return
		}
		writeError(w, r, domain.WrapError(domain.ErrInvalidRequest, "upload document", errors.New("multipart field 'file' is required")))
		return
	}
	defer file.Close()

	doc, err := rt.ingest.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, domain.WrapError(domain.ErrInvalidRequest, "get document", errors.New("document id is required")))
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) withAnswerTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if rt.cfg.AnswerTimeout > 0 {
		return context.WithTimeout(ctx, rt.cfg.AnswerTimeout)
	}
	return context.WithCancel(ctx)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return domain.WrapError(domain.ErrInvalidRequest, "decode request", fmt.Errorf("invalid json: %w", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
