package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/muffakir/legal-assistant/internal/config"
	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/core/ports"
	"github.com/muffakir/legal-assistant/internal/core/usecase"
	"github.com/muffakir/legal-assistant/internal/infrastructure/chunking"
	"github.com/muffakir/legal-assistant/internal/infrastructure/credentials"
	"github.com/muffakir/legal-assistant/internal/infrastructure/extractor/document"
	"github.com/muffakir/legal-assistant/internal/infrastructure/llm/ollama"
	"github.com/muffakir/legal-assistant/internal/infrastructure/llm/openaicompat"
	"github.com/muffakir/legal-assistant/internal/infrastructure/prompts"
	"github.com/muffakir/legal-assistant/internal/infrastructure/queue/nats"
	"github.com/muffakir/legal-assistant/internal/infrastructure/repository/postgres"
	"github.com/muffakir/legal-assistant/internal/infrastructure/rerank/tei"
	"github.com/muffakir/legal-assistant/internal/infrastructure/resilience"
	"github.com/muffakir/legal-assistant/internal/infrastructure/storage/localfs"
	"github.com/muffakir/legal-assistant/internal/infrastructure/vector/qdrant"
	"github.com/muffakir/legal-assistant/internal/infrastructure/websearch/firecrawl"
	"github.com/muffakir/legal-assistant/internal/observability/metrics"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Options controls which parts of the graph are built.
type Options struct {
	// Service labels metrics.
	Service string
	// Registerer receives pipeline metrics; nil disables them.
	Registerer prometheus.Registerer
	// Ingestion opens Postgres, NATS and local storage.
	Ingestion bool
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Answers   ports.LegalAnswerService
	Search    ports.PassageSearcher
	Evaluator ports.RetrievalEvaluator
	Headers   ports.HeaderEvaluator

	// Set only when Options.Ingestion is true.
	Queue     ports.MessageQueue
	Repo      ports.DocumentRepository
	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor

	closers []func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	executor := resilience.NewExecutor(resilienceConfig(cfg))

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	completion, err := newCompletion(cfg, ollamaClient)
	if err != nil {
		return nil, err
	}
	library, err := loadPrompts(cfg.PromptsPath)
	if err != nil {
		return nil, err
	}

	index := qdrant.NewIndex(qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor), embedder, cfg.QdrantExistsThreshold)

	retrieval, err := newRetrievalEngine(cfg, index, completion, library)
	if err != nil {
		return nil, err
	}
	ranking, err := newRankingEngine(cfg, embedder, executor)
	if err != nil {
		return nil, err
	}
	pipelineCfg, err := pipelineConfig(cfg)
	if err != nil {
		return nil, err
	}

	var searcher ports.DeepSearcher
	if cfg.DeepSearchAPIKey != "" {
		client, err := firecrawl.New(firecrawl.Config{
			BaseURL:      cfg.DeepSearchURL,
			APIKey:       cfg.DeepSearchAPIKey,
			PollInterval: cfg.DeepSearchPollInterval,
		}, executor)
		if err != nil {
			return nil, err
		}
		searcher = client
	} else {
		logger.Warn("deep_search_disabled", "reason", "DEEP_SEARCH_API_KEY is empty")
	}

	var observer ports.PipelineObserver
	if opts.Registerer != nil {
		observer = metrics.NewPipelineMetrics(opts.Registerer, opts.Service)
	}

	hallucination := usecase.NewHallucinationChecker(completion, library)
	app.Answers = usecase.NewGenerationPipeline(usecase.GenerationPipelineDeps{
		Router:     usecase.NewQueryRouter(index, completion, library),
		Retrieval:  retrieval,
		Ranking:    ranking,
		Completion: completion,
		Prompts:    library,
		Escalator: usecase.NewEscalator(completion, library, searcher, domain.SearchBudget{
			MaxDepth:  cfg.DeepSearchMaxDepth,
			TimeLimit: cfg.DeepSearchTimeLimit,
			MaxURLs:   cfg.DeepSearchMaxURLs,
		}, hallucination),
		Hallucination: hallucination,
		Observer:      observer,
	}, pipelineCfg)
	app.Search = usecase.NewSearchPassagesUseCase(retrieval, ranking)
	app.Evaluator = usecase.NewEvaluateRetrievalUseCase(retrieval, pipelineCfg.Strategy)
	app.Headers = usecase.NewEvaluateHeadersUseCase(completion, library, embedder)

	if !opts.Ingestion {
		return app, nil
	}
	if err := app.wireIngestion(ctx, cfg, executor, completion, library, embedder, index); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wireIngestion(
	ctx context.Context,
	cfg config.Config,
	executor *resilience.Executor,
	completion ports.CompletionService,
	library ports.PromptRenderer,
	embedder ports.TextEmbedder,
	indexer ports.PassageIndexer,
) error {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	a.closers = append(a.closers, func() { _ = db.Close() })

	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		ClientName:         "muffakir",
		HandlerTimeout:     cfg.IngestTimeout,
	})
	if err != nil {
		return fmt.Errorf("init message queue: %w", err)
	}
	a.closers = append(a.closers, queue.Close)

	var summarizer *usecase.ChunkSummarizer
	if cfg.SummaryEnabled {
		summarizer = usecase.NewChunkSummarizer(completion, library, cfg.SummaryConcurrency)
	}

	a.Queue = queue
	a.Repo = repo
	a.IngestUC = usecase.NewIngestDocumentUseCase(repo, storage, queue)
	a.ProcessUC = usecase.NewProcessDocumentUseCase(
		repo,
		document.NewExtractor(storage),
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		summarizer,
		embedder,
		indexer,
	)
	return nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	out.RetryInitialBackoff = cfg.ResilienceRetryInitialBackoff
	out.RetryMaxBackoff = cfg.ResilienceRetryMaxBackoff
	out.BreakerEnabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceBreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	out.BreakerFailureRatio = cfg.ResilienceBreakerFailureRatio
	out.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout
	return out
}

func newCompletion(cfg config.Config, client *ollama.Client) (ports.CompletionService, error) {
	switch cfg.LLMProvider {
	case "", ProviderOllama:
		return ollama.NewCompleter(client), nil
	case ProviderOpenAI:
		pool, err := credentials.NewPool(cfg.LLMAPIKeys)
		if err != nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "init completion", err)
		}
		completer, err := openaicompat.New(openaicompat.Config{
			BaseURL:      cfg.LLMBaseURL,
			Model:        cfg.LLMModel,
			Temperature:  cfg.LLMTemperature,
			Timeout:      cfg.LLMTimeout,
			RotationWait: cfg.LLMKeyRotationWait,
		}, pool)
		if err != nil {
			return nil, err
		}
		return completer, nil
	default:
		return nil, domain.WrapError(domain.ErrConfiguration, "init completion", fmt.Errorf("unknown llm provider %q", cfg.LLMProvider))
	}
}

func loadPrompts(path string) (*prompts.Library, error) {
	library, err := prompts.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	return library, nil
}

func newRetrievalEngine(
	cfg config.Config,
	index ports.EmbeddingIndex,
	completion ports.CompletionService,
	library ports.PromptRenderer,
) (*usecase.RetrievalEngine, error) {
	base, err := domain.ParseRetrievalStrategy(cfg.RetrievalContextualBase)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "init retrieval", err)
	}
	return usecase.NewRetrievalEngine(index, completion, library, usecase.RetrievalConfig{
		MMRLambda:      cfg.RetrievalMMRLambda,
		DefaultFetchK:  cfg.RetrievalFetchK,
		ContextualBase: base,
	})
}

func newRankingEngine(cfg config.Config, embedder ports.TextEmbedder, executor *resilience.Executor) (*usecase.RankingEngine, error) {
	method, err := domain.ParseRerankMethod(cfg.RerankMethod)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "init ranking", err)
	}
	rankingCfg := usecase.RankingConfig{
		DefaultMethod:      method,
		EmbeddingCacheSize: cfg.EmbeddingCacheSize,
	}
	if cfg.CrossEncoderURL != "" {
		rankingCfg.CrossEncoderLoader = tei.Loader(cfg.CrossEncoderURL, cfg.LLMTimeout, executor)
	}
	return usecase.NewRankingEngine(embedder, rankingCfg)
}

func pipelineConfig(cfg config.Config) (usecase.PipelineConfig, error) {
	strategy, err := domain.ParseRetrievalStrategy(cfg.RetrievalStrategy)
	if err != nil {
		return usecase.PipelineConfig{}, domain.WrapError(domain.ErrConfiguration, "init pipeline", err)
	}
	method, err := domain.ParseRerankMethod(cfg.RerankMethod)
	if err != nil {
		return usecase.PipelineConfig{}, domain.WrapError(domain.ErrConfiguration, "init pipeline", err)
	}
	if cfg.RetrievalTopK <= 0 {
		return usecase.PipelineConfig{}, domain.WrapError(domain.ErrConfiguration, "init pipeline", errors.New("RETRIEVAL_TOP_K must be positive"))
	}
	if cfg.RetrievalFetchK != 0 && cfg.RetrievalFetchK < cfg.RetrievalTopK {
		return usecase.PipelineConfig{}, domain.WrapError(domain.ErrConfiguration, "init pipeline",
			fmt.Errorf("RETRIEVAL_FETCH_K %d is less than RETRIEVAL_TOP_K %d", cfg.RetrievalFetchK, cfg.RetrievalTopK))
	}
	return usecase.PipelineConfig{
		Strategy:     strategy,
		K:            cfg.RetrievalTopK,
		FetchK:       cfg.RetrievalFetchK,
		RerankMethod: method,
		RerankTopK:   cfg.RerankTopK,
	}, nil
}
