package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/grounded-qa/internal/config"
	"github.com/kirillkom/grounded-qa/internal/core/fusion"
	"github.com/kirillkom/grounded-qa/internal/core/ports"
	"github.com/kirillkom/grounded-qa/internal/core/security"
	"github.com/kirillkom/grounded-qa/internal/core/sparse"
	"github.com/kirillkom/grounded-qa/internal/core/usecase"
	"github.com/kirillkom/grounded-qa/internal/infrastructure/cache"
	"github.com/kirillkom/grounded-qa/internal/infrastructure/chunking"
	"github.com/kirillkom/grounded-qa/internal/infrastructure/extractor"
	"github.com/kirillkom/grounded-qa/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/grounded-qa/internal/infrastructure/queue/nats"
	"github.com/kirillkom/grounded-qa/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/grounded-qa/internal/infrastructure/resilience"
	"github.com/kirillkom/grounded-qa/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/grounded-qa/internal/infrastructure/vector/pgstore"
	"github.com/kirillkom/grounded-qa/internal/infrastructure/vector/qdrant"
)

const (
	BackendQdrant   = "qdrant"
	BackendPgvector = "pgvector"
)

type circuitReporter interface {
	OpenCircuits() []string
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     ports.MessageQueue
	Docs      ports.DocumentReader
	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor
	AnswerUC  ports.QueryService
	CorpusUC  *usecase.CorpusUseCase

	Corpus     *sparse.Holder
	EmbedCache *cache.Embedder

	circuits []circuitReporter
	closeFn  func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	docRepo := postgres.NewDocumentRepository(db)
	chunkRepo := postgres.NewChunkRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Subjects{
		DocumentIngested: cfg.NATSSubject,
		CorpusUpdated:    cfg.NATSCorpusSubject,
	}, nats.Options{Name: "grounded-qa", Logger: logger})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Timeout:     config.Millis(cfg.OllamaTimeoutMS),
		Temperature: cfg.OllamaTemperature,
	})
	embedCache := cache.NewEmbedder(ollama.NewEmbedder(ollamaClient), cfg.EmbedCacheSize, cfg.EmbedCacheTTL())
	generator := ollama.NewGenerator(ollamaClient).WithTemperature(cfg.OllamaTemperature)

	vectors, reporter, err := newVectorStore(ctx, cfg, db)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}

	filter, err := newSecurityFilter(cfg.SecurityRulesPath)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}
	systemPrompt, err := readOptionalFile(cfg.SystemPromptPath)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("read system prompt: %w", err)
	}

	defaults := cfg.Engine("")
	holder := sparse.NewHolder()
	corpusUC := usecase.NewCorpusUseCase(chunkRepo, holder, sparse.Params{K1: defaults.K1, B: defaults.B}, logger)

	retriever := fusion.NewRetriever(embedCache, vectors, holder, fusion.Options{
		EmbedTimeout: config.Millis(cfg.EmbedTimeoutMS),
		DenseTimeout: config.Millis(cfg.DenseTimeoutMS),
	}, logger)
	answerUC := usecase.NewAnswerUseCase(retriever, generator, filter, cfg, usecase.AnswerOptions{
		SystemPrompt:    systemPrompt,
		DefaultTopK:     cfg.QueryDefaultTopK,
		MaxTopK:         cfg.QueryMaxTopK,
		GenerateTimeout: config.Millis(cfg.GenerateTimeoutMS),
		RetryBackoff:    config.Millis(cfg.RetryBackoffMS),
	}, logger)

	ingestUC := usecase.NewIngestDocumentUseCase(docRepo, storage, queue)
	processUC := usecase.NewProcessDocumentUseCase(
		docRepo,
		chunkRepo,
		extractor.New(storage),
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embedCache,
		vectors,
		queue,
	)

	logger.Info("bootstrap_ready",
		"vector_backend", cfg.VectorBackend,
		"domains", strings.Join(cfg.Domains(), ","),
		"embed_cache_size", cfg.EmbedCacheSize,
	)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:     queue,
		Docs:      docRepo,
		IngestUC:  ingestUC,
		ProcessUC: processUC,
		AnswerUC:  answerUC,
		CorpusUC:  corpusUC,

		Corpus:     holder,
		EmbedCache: embedCache,

		circuits: []circuitReporter{ollamaClient, reporter},
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func newVectorStore(ctx context.Context, cfg config.Config, db *sql.DB) (ports.VectorStore, circuitReporter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.VectorBackend)) {
	case "", BackendQdrant:
		client := qdrant.NewWithResilience(cfg.QdrantURL, cfg.QdrantCollection, resilience.SearchConfig())
		return client, client, nil
	case BackendPgvector:
		store := pgstore.New(db, resilience.SearchConfig())
		if err := store.EnsureSchema(ctx, cfg.EmbeddingDim); err != nil {
			return nil, nil, fmt.Errorf("ensure vector schema: %w", err)
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

func newSecurityFilter(path string) (*security.Filter, error) {
	if path == "" {
		return security.NewDefaultFilter()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read security rules: %w", err)
	}
	rules, err := security.ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("security rules %s: %w", path, err)
	}
	return security.NewFilter(rules), nil
}

func readOptionalFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// OpenCircuits lists every backend operation currently short-circuited.
func (a *App) OpenCircuits() []string {
	var open []string
	for _, c := range a.circuits {
		open = append(open, c.OpenCircuits()...)
	}
	sort.Strings(open)
	return open
}

func (a *App) CorpusSize() int {
	return a.Corpus.Load().Len()
}

// ReloadCorpus rebuilds the sparse index, retrying while the chunk store
// is unreachable at startup.
func (a *App) ReloadCorpus(ctx context.Context, attempts int, wait time.Duration) (int, error) {
	attempts = max(attempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		n, err := a.CorpusUC.Reload(ctx)
		if err == nil {
			return n, nil
		}
		lastErr = err
		a.Logger.Warn("corpus_reload_retry", "attempt", attempt, "error", err)
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(wait):
		}
	}
	return 0, lastErr
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
