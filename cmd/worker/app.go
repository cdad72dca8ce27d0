package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/voxnote/voxnote-api/internal/audio"
	"github.com/voxnote/voxnote-api/internal/config"
	"github.com/voxnote/voxnote-api/internal/pipeline"
	"github.com/voxnote/voxnote-api/internal/platform/gemini"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
	"github.com/voxnote/voxnote-api/internal/platform/objstore"
	"github.com/voxnote/voxnote-api/internal/platform/postgres"
	"github.com/voxnote/voxnote-api/internal/platform/rabbitmq"
	"github.com/voxnote/voxnote-api/internal/platform/redis"
	"github.com/voxnote/voxnote-api/internal/transcribe"
	"github.com/voxnote/voxnote-api/internal/worker"
)

// application holds the worker process's wired components.
type application struct {
	cfg         *config.Config
	logger      *slog.Logger
	db          *sql.DB
	amqpConn    *amqp.Connection
	consumer    *rabbitmq.Consumer
	publisher   *rabbitmq.Publisher
	redisClient *goredis.Client
	worker      *worker.Worker
	reaper      *pipeline.Reaper
}

// newApplication loads configuration and wires the whole worker pipeline:
// stores, audio tooling, transcription, analysis, the orchestrator, the
// queue consumer, and the reaper.
func newApplication(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := postgres.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	amqpConn, err := amqp.Dial(cfg.Queue.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	consumer, err := rabbitmq.NewConsumer(amqpConn, cfg.Queue, cfg.Pipeline.JobConcurrency, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	publisher, err := rabbitmq.NewPublisher(amqpConn, cfg.Queue)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	redisClient := redis.NewClient(cfg.Redis)
	cache := redis.NewRecordCache(redisClient, cfg.Redis.CacheTTL)

	var fetcher worker.InputFetcher
	if cfg.Storage.Endpoint != "" {
		storage, err := objstore.New(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to set up object storage: %w", err)
		}
		fetcher = storage
	}

	analyzer, err := gemini.NewAnalyzer(ctx, log, cfg.Analysis, cfg.Pipeline.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %w", err)
	}

	jobStore := postgres.NewPostgresJobStore(db)
	chunkStore := postgres.NewPostgresChunkStore(db)
	stepStore := postgres.NewPostgresStepStore(db)
	recordStore := postgres.NewPostgresRecordStore(db)

	transcriber := transcribe.NewProcessor(
		transcribe.NewHTTPClient(cfg.Transcription, cfg.Pipeline.MaxRetries),
		cfg.Pipeline.ChunkConcurrency,
		cfg.Pipeline.MinChunkSuccessRate,
	)

	orchestrator := pipeline.NewOrchestrator(
		jobStore,
		chunkStore,
		pipeline.NewStepTracker(stepStore),
		pipeline.NewHeartbeat(jobStore, cfg.Pipeline.HeartbeatInterval),
		audio.NewConverter(cfg.Pipeline.WorkDir),
		audio.NewSplitter(cfg.Pipeline),
		transcriber,
		analyzer,
		pipeline.NewPersister(recordStore, jobStore, cache),
		cfg.Pipeline,
	)

	return &application{
		cfg:         cfg,
		logger:      log,
		db:          db,
		amqpConn:    amqpConn,
		consumer:    consumer,
		publisher:   publisher,
		redisClient: redisClient,
		worker:      worker.New(consumer, orchestrator, fetcher, cfg.Pipeline),
		reaper:      pipeline.NewReaper(jobStore, chunkStore, publisher, cfg.Pipeline.HeartbeatTimeout),
	}, nil
}

// run consumes jobs and sweeps for stalled ones until the context is
// cancelled. In-flight jobs lose their context on shutdown; the reaper on
// any surviving worker recovers them.
func (app *application) run(ctx context.Context) error {
	defer app.close()

	app.logger.Info("worker starting",
		"job_concurrency", app.cfg.Pipeline.JobConcurrency,
		"chunk_concurrency", app.cfg.Pipeline.ChunkConcurrency)

	go app.reaper.Run(logger.WithLogger(ctx, app.logger), app.cfg.Pipeline.ReaperInterval)

	err := app.worker.Run(logger.WithLogger(ctx, app.logger))
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consumer failed: %w", err)
	}

	app.logger.Info("worker stopped")
	return nil
}

// close releases the worker's external connections.
func (app *application) close() {
	if err := app.consumer.Close(); err != nil {
		app.logger.Warn("failed to close consumer", "error", err)
	}
	if err := app.publisher.Close(); err != nil {
		app.logger.Warn("failed to close publisher", "error", err)
	}
	if err := app.amqpConn.Close(); err != nil {
		app.logger.Warn("failed to close broker connection", "error", err)
	}
	if err := app.redisClient.Close(); err != nil {
		app.logger.Warn("failed to close redis client", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn("failed to close database", "error", err)
	}
}
