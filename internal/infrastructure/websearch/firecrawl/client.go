// Package firecrawl runs deep-research jobs on the Firecrawl API and waits for
// their final analysis.
package firecrawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/infrastructure/resilience"
)

const (
	statusCompleted = "completed"
	statusFailed    = "failed"
)

type Config struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	Timeout      time.Duration
}

type Client struct {
	http         *resty.Client
	executor     *resilience.Executor
	pollInterval time.Duration
}

type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("firecrawl %s status: %d: %s", e.Operation, e.StatusCode, e.Body)
}

type startRequest struct {
	Query     string `json:"query"`
	MaxDepth  int    `json:"maxDepth"`
	TimeLimit int    `json:"timeLimit"`
	MaxURLs   int    `json:"maxUrls"`
}

type startResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Error   string `json:"error"`
}

type jobResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Error   string `json:"error"`
	Data    struct {
		FinalAnalysis string `json:"finalAnalysis"`
		Sources       []struct {
			URL   string `json:"url"`
			Title string `json:"title"`
		} `json:"sources"`
	} `json:"data"`
}

func New(cfg Config, executor *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "new firecrawl client", errors.New("api key is required"))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.firecrawl.dev"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json").
			SetAuthToken(cfg.APIKey),
		executor:     executor,
		pollInterval: cfg.PollInterval,
	}, nil
}

// DeepSearch starts a job bounded by budget and polls until it settles. The
// wait is capped at the budget's time limit plus one poll interval.
func (c *Client) DeepSearch(ctx context.Context, query string, budget domain.SearchBudget) (*domain.DeepSearchResult, error) {
	id, err := c.start(ctx, query, budget)
	if err != nil {
		return nil, err
	}
	slog.Info("deep_research_started", "job_id", id, "max_depth", budget.MaxDepth, "max_urls", budget.MaxURLs)

	wait := budget.TimeLimit + c.pollInterval
	if budget.TimeLimit <= 0 {
		wait = domain.DefaultSearchBudget().TimeLimit + c.pollInterval
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		job, err := c.status(ctx, id)
		if err != nil {
			return nil, err
		}
		switch job.Status {
		case statusCompleted:
			return toResult(job), nil
		case statusFailed:
			return nil, fmt.Errorf("firecrawl deep research %s failed: %s", id, job.Error)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("firecrawl deep research %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) start(ctx context.Context, query string, budget domain.SearchBudget) (string, error) {
	body := startRequest{
		Query:     query,
		MaxDepth:  budget.MaxDepth,
		TimeLimit: int(budget.TimeLimit / time.Second),
		MaxURLs:   budget.MaxURLs,
	}
	out, err := resilience.Call(ctx, c.executor, "firecrawl.deep_research.start", func(ctx context.Context) (startResponse, error) {
		var out startResponse
		resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&out).Post("/v1/deep-research")
		if err != nil {
			return out, err
		}
		if resp.IsError() {
			return out, &StatusError{Operation: "start", StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
		}
		return out, nil
	}, classifyFirecrawlError)
	if err != nil {
		return "", fmt.Errorf("firecrawl start: %w", err)
	}
	if !out.Success || out.ID == "" {
		return "", fmt.Errorf("firecrawl start rejected: %s", out.Error)
	}
	return out.ID, nil
}

func (c *Client) status(ctx context.Context, id string) (jobResponse, error) {
	job, err := resilience.Call(ctx, c.executor, "firecrawl.deep_research.status", func(ctx context.Context) (jobResponse, error) {
		var job jobResponse
		resp, err := c.http.R().SetContext(ctx).SetPathParam("id", id).SetResult(&job).Get("/v1/deep-research/{id}")
		if err != nil {
			return job, err
		}
		if resp.IsError() {
			return job, &StatusError{Operation: "status", StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
		}
		return job, nil
	}, classifyFirecrawlError)
	if err != nil {
		return jobResponse{}, fmt.Errorf("firecrawl status %s: %w", id, err)
	}
	return job, nil
}

func toResult(job jobResponse) *domain.DeepSearchResult {
	out := &domain.DeepSearchResult{
		FinalAnalysis: job.Data.FinalAnalysis,
		Sources:       make([]domain.WebSource, 0, len(job.Data.Sources)),
	}
	for _, s := range job.Data.Sources {
		out.Sources = append(out.Sources, domain.WebSource{Title: s.Title, URL: s.URL})
	}
	return out
}

func classifyFirecrawlError(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return resilience.ClassifyHTTPStatus(statusErr.StatusCode)
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}
