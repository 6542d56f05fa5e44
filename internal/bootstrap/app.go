package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docintell/internal/ai"
	"docintell/internal/app"
	"docintell/internal/cache"
	"docintell/internal/chunker"
	"docintell/internal/config"
	"docintell/internal/events"
	"docintell/internal/extract"
	"docintell/internal/metrics"
	"docintell/internal/model"
	"docintell/internal/pkg/logging"
	"docintell/internal/platform/database"
	natsClient "docintell/internal/platform/nats"
	rabbitmqClient "docintell/internal/platform/rabbitmq"
	redisClient "docintell/internal/platform/redis"
	"docintell/internal/repository"
	"docintell/internal/vectorstore"
	"docintell/internal/worker"
)

const workerPrefetch = 2

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	DB     *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection
	NATS   *nats.Conn

	Documents    *app.DocumentService
	Retrieval    *app.RetrievalService
	Chat         *app.ChatService
	IngestWorker *worker.IngestWorker

	closers   []io.Closer
	StartedAt time.Time
}

type Options struct {
	// StartWorker consumes the ingest queue in this process when the ingest
	// mode is queue.
	StartWorker bool
}

// New loads the configuration and builds the full server.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return Build(ctx, cfg, Options{StartWorker: true})
}

// Build connects every enabled dependency and wires the services. On error
// anything already opened is closed.
func Build(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	a := &App{
		Config:    cfg,
		Logger:    logging.New(cfg.App.LogLevel, cfg.App.LogFormat),
		Metrics:   metrics.New(),
		StartedAt: time.Now(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.DB, err = database.New(ctx, cfg); err != nil {
		return nil, err
	}
	if err = database.Migrate(a.DB); err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled {
		if a.Redis, err = redisClient.New(ctx, cfg.Redis); err != nil {
			return nil, err
		}
	}
	if cfg.RabbitMQ.Enabled {
		if a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.IngestQueue); err != nil {
			return nil, err
		}
	}
	if cfg.NATS.Enabled {
		if a.NATS, err = natsClient.New(ctx, cfg.NATS.URL, a.Logger); err != nil {
			return nil, err
		}
	}

	embedder, err := ai.NewEmbedder(ctx, cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("create embedder failed: %w", err)
	}
	a.track(embedder)
	generator, err := ai.NewGenerator(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("create generator failed: %w", err)
	}
	a.track(generator)

	documentRepo := repository.NewDocumentRepository(a.DB)
	chunkRepo := repository.NewChunkRepository(a.DB)
	conversationRepo := repository.NewConversationRepository(a.DB)
	messageRepo := repository.NewMessageRepository(a.DB)

	var store vectorstore.Store = vectorstore.NewSQL(a.DB)
	if cfg.Retrieval.VectorStore == "memory" {
		store = vectorstore.NewMemory()
		warnUnindexedDocuments(ctx, a.Logger, documentRepo)
	}

	indexer := app.NewIndexer(embedder, store, app.IndexerOptions{
		BatchSize:         cfg.Embedding.BatchSize,
		Concurrency:       cfg.Embedding.Concurrency,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Metrics:           a.Metrics,
	})

	deps := app.DocumentServiceDeps{
		Documents:  documentRepo,
		Chunks:     chunkRepo,
		Extractors: extract.NewRegistry(),
		Chunker:    chunker.New(chunker.WithSize(cfg.Ingest.ChunkSize), chunker.WithOverlap(cfg.Ingest.ChunkOverlap)),
		Indexer:    indexer,
		Metrics:    a.Metrics,
		Logger:     a.Logger.With("component", "documents"),
	}
	if a.MQConn != nil {
		deps.Publisher = rabbitmqClient.NewJobPublisher(a.MQConn, cfg.RabbitMQ.IngestQueue)
	}
	if a.NATS != nil {
		deps.Notifier = events.NewNATSNotifier(a.NATS, cfg.NATS.StatusSubject, a.Logger)
	}
	if a.Documents, err = app.NewDocumentService(deps, cfg.Ingest); err != nil {
		return nil, err
	}

	a.Retrieval = app.NewRetrievalService(documentRepo, chunkRepo, indexer, cfg.Retrieval, a.Logger.With("component", "retrieval"))

	chatDeps := app.ChatServiceDeps{
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Retrieval:     a.Retrieval,
		Generator:     generator,
		Metrics:       a.Metrics,
		Logger:        a.Logger.With("component", "chat"),
	}
	if a.Redis != nil {
		ttl := time.Duration(cfg.Redis.HistoryTTLSeconds) * time.Second
		chatDeps.HistoryCache = cache.NewHistoryCache(a.Redis, ttl, cfg.LLM.MaxHistoryMessages+1)
	}
	a.Chat = app.NewChatService(chatDeps, cfg.LLM)

	if opts.StartWorker && cfg.Ingest.Mode == config.IngestModeQueue {
		a.IngestWorker = worker.NewIngestWorker(a.MQConn, a.Documents, cfg.RabbitMQ.IngestQueue, workerPrefetch,
			a.Logger.With("component", "ingest_worker"))
		if err = a.IngestWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start ingest worker failed: %w", err)
		}
	}

	return a, nil
}

type completedLister interface {
	ListIDsByStatus(ctx context.Context, status model.DocumentStatus) ([]string, error)
}

// warnUnindexedDocuments flags completed documents that a fresh in-memory
// index cannot serve. It returns how many there are.
func warnUnindexedDocuments(ctx context.Context, logger *slog.Logger, docs completedLister) int {
	ids, err := docs.ListIDsByStatus(ctx, model.StatusCompleted)
	if err != nil {
		logger.Warn("count completed documents failed", "error", err)
		return 0
	}
	if len(ids) > 0 {
		logger.Warn("memory vector store starts empty; completed documents will not be retrieved until re-uploaded",
			"completed_documents", len(ids))
	}
	return len(ids)
}

func (a *App) track(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
}

// Close stops the worker, waits for in-flight async pipelines and releases
// every connection.
func (a *App) Close() error {
	var errs []error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.Documents != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		a.Documents.Close(ctx)
		cancel()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.NATS != nil {
		if err := a.NATS.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
