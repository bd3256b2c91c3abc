package mcpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/core/ports"
)

const (
	ToolLegalAnswer    = "legal_answer"
	ToolSearchPassages = "search_passages"

	maxSearchK = 50
)

const instructions = "Answers Arabic legal questions from the indexed statute corpus, " +
	"falling back to web research when the corpus does not cover the question."

type Handlers struct {
	answers ports.LegalAnswerService
	search  ports.PassageSearcher
	logger  *slog.Logger
}

func NewHandlers(answers ports.LegalAnswerService, search ports.PassageSearcher, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{answers: answers, search: search, logger: logger}
}

// NewServer registers the legal tools. search may be nil, in which case only
// legal_answer is exposed.
func NewServer(version string, handlers *Handlers) *server.MCPServer {
	s := server.NewMCPServer(
		"muffakir",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	s.AddTool(mcp.NewTool(ToolLegalAnswer,
		mcp.WithDescription("Answer a legal question in Arabic using the statute corpus or web research."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The legal question, in Arabic."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	), handlers.LegalAnswer)

	if handlers.search != nil {
		s.AddTool(mcp.NewTool(ToolSearchPassages,
			mcp.WithDescription("Return the statute passages most relevant to a query, without generating an answer."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Search text, in Arabic."),
			),
			mcp.WithString("strategy",
				mcp.Description("Retrieval strategy."),
				mcp.Enum(
					string(domain.RetrievalSimilarity),
					string(domain.RetrievalMMR),
					string(domain.RetrievalHybrid),
					string(domain.RetrievalContextual),
				),
			),
			mcp.WithNumber("k",
				mcp.Description("Number of passages to return."),
				mcp.DefaultNumber(5),
			),
			mcp.WithString("rerank",
				mcp.Description("Optional rerank method."),
				mcp.Enum(
					string(domain.RerankSemantic),
					string(domain.RerankBM25),
					string(domain.RerankHybrid),
					string(domain.RerankCrossEncoder),
				),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		), handlers.SearchPassages)
	}
	return s
}

func (h *Handlers) LegalAnswer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	answer, err := h.answers.Answer(ctx, query)
	if err != nil {
		h.logger.Warn("mcp_legal_answer_failed", "kind", domain.ErrorKind(err), "error", err)
		return mcp.NewToolResultErrorFromErr(domain.ErrorKind(err), err), nil
	}
	return mcp.NewToolResultStructured(answer, answer.Answer), nil
}

type searchResult struct {
	Strategy domain.RetrievalStrategy `json:"strategy"`
	Rerank   domain.RerankMethod      `json:"rerank,omitempty"`
	Passages []domain.ScoredPassage   `json:"passages"`
}

func (h *Handlers) SearchPassages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	strategy, err := domain.ParseRetrievalStrategy(req.GetString("strategy", string(domain.RetrievalSimilarity)))
	if err != nil {
		return mcp.NewToolResultErrorFromErr(domain.ErrorKind(err), err), nil
	}
	var rerank domain.RerankMethod
	if raw := req.GetString("rerank", ""); raw != "" {
		rerank, err = domain.ParseRerankMethod(raw)
		if err != nil {
			return mcp.NewToolResultErrorFromErr(domain.ErrorKind(err), err), nil
		}
	}
	k := req.GetInt("k", 5)
	if k <= 0 || k > maxSearchK {
		return mcp.NewToolResultError(fmt.Sprintf("k must be between 1 and %d", maxSearchK)), nil
	}

	passages, err := h.search.Search(ctx, domain.SearchRequest{
		Retrieval: domain.RetrievalRequest{Query: query, Strategy: strategy, K: k},
		Rerank:    rerank,
	})
	if err != nil {
		h.logger.Warn("mcp_search_failed", "kind", domain.ErrorKind(err), "error", err)
		return mcp.NewToolResultErrorFromErr(domain.ErrorKind(err), err), nil
	}
	return mcp.NewToolResultStructured(searchResult{
		Strategy: strategy,
		Rerank:   rerank,
		Passages: passages,
	}, renderPassages(passages)), nil
}

func renderPassages(passages []domain.ScoredPassage) string {
	if len(passages) == 0 {
		return "no passages found"
	}
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] (%.3f) %s", i+1, p.Score, p.Content)
	}
	return b.String()
}
