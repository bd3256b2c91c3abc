// Package tei is a cross-encoder backed by a Hugging Face text-embeddings-inference
// server running a reranker model such as BAAI/bge-reranker-v2-m3.
package tei

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/core/ports"
	"github.com/muffakir/legal-assistant/internal/infrastructure/resilience"
)

type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tei %s status: %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("tei %s status: %d: %s", e.Operation, e.StatusCode, e.Body)
}

type Client struct {
	http     *resty.Client
	executor *resilience.Executor
	model    string
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	Truncate  bool     `json:"truncate"`
	RawScores bool     `json:"raw_scores"`
}

type rerankHit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

type infoResponse struct {
	ModelID   string `json:"model_id"`
	ModelType any    `json:"model_type"`
}

// Loader returns a ports.CrossEncoderLoader that checks the server is up and
// serving a model before handing out the client.
func Loader(baseURL string, timeout time.Duration, executor *resilience.Executor) ports.CrossEncoderLoader {
	return func(ctx context.Context) (ports.CrossEncoder, error) {
		if strings.TrimSpace(baseURL) == "" {
			return nil, domain.WrapError(domain.ErrConfiguration, "tei load", errors.New("reranker url is empty"))
		}
		c := New(baseURL, timeout, executor)
		if err := c.loadInfo(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func New(baseURL string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		executor: executor,
	}
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) loadInfo(ctx context.Context) error {
	var info infoResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&info).Get("/info")
	if err != nil {
		return fmt.Errorf("tei info: %w", err)
	}
	if resp.IsError() {
		return &StatusError{Operation: "info", StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}
	if info.ModelID == "" {
		return errors.New("tei info: server reports no model")
	}
	c.model = info.ModelID
	return nil
}

// Score returns one score per doc, aligned with docs.
func (c *Client) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return []float64{}, nil
	}
	body := rerankRequest{Query: query, Texts: docs, Truncate: true}

	hits, err := resilience.Call(ctx, c.executor, "tei.rerank", func(ctx context.Context) ([]rerankHit, error) {
		var hits []rerankHit
		resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&hits).Post("/rerank")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, &StatusError{Operation: "rerank", StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
		}
		return hits, nil
	}, classifyTEIError)
	if err != nil {
		return nil, fmt.Errorf("tei rerank: %w", err)
	}

	scores := make([]float64, len(docs))
	seen := make([]bool, len(docs))
	for _, h := range hits {
		if h.Index < 0 || h.Index >= len(docs) || seen[h.Index] {
			return nil, fmt.Errorf("tei rerank: invalid index %d for %d docs", h.Index, len(docs))
		}
		seen[h.Index] = true
		scores[h.Index] = h.Score
	}
	if len(hits) != len(docs) {
		return nil, fmt.Errorf("tei rerank: got %d scores for %d docs", len(hits), len(docs))
	}
	return scores, nil
}

func classifyTEIError(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return resilience.ClassifyHTTPStatus(statusErr.StatusCode)
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}
