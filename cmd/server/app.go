package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/voxnote/voxnote-api/internal/api"
	"github.com/voxnote/voxnote-api/internal/config"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
	"github.com/voxnote/voxnote-api/internal/platform/postgres"
	"github.com/voxnote/voxnote-api/internal/platform/rabbitmq"
	"github.com/voxnote/voxnote-api/internal/platform/redis"
	"github.com/voxnote/voxnote-api/internal/service"
)

// shutdownTimeout bounds how long in-flight requests may run after a
// termination signal.
const shutdownTimeout = 10 * time.Second

// application holds the server process's wired components.
type application struct {
	cfg         *config.Config
	logger      *slog.Logger
	db          *sql.DB
	amqpConn    *amqp.Connection
	publisher   *rabbitmq.Publisher
	redisClient *goredis.Client
	server      *http.Server
}

// newApplication loads configuration and wires every component of the
// server process: database and migrations, queue publisher, record cache,
// service layer, and HTTP router.
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
	publisher, err := rabbitmq.NewPublisher(amqpConn, cfg.Queue)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	redisClient := redis.NewClient(cfg.Redis)
	cache := redis.NewRecordCache(redisClient, cfg.Redis.CacheTTL)

	jobStore := postgres.NewPostgresJobStore(db)
	chunkStore := postgres.NewPostgresChunkStore(db)
	stepStore := postgres.NewPostgresStepStore(db)
	recordStore := postgres.NewPostgresRecordStore(db)

	jobService := service.NewJobService(
		jobStore, chunkStore, stepStore, recordStore,
		publisher, cache, cfg.Pipeline.MaxAttempts,
	)

	router := api.NewRouter(api.NewJobHandler(jobService))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &application{
		cfg:         cfg,
		logger:      log,
		db:          db,
		amqpConn:    amqpConn,
		publisher:   publisher,
		redisClient: redisClient,
		server:      server,
	}, nil
}

// run serves HTTP until the context is cancelled, then shuts down
// gracefully and releases every connection.
func (app *application) run(ctx context.Context) error {
	defer app.close()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server listening", "addr", app.server.Addr)
		if err := app.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	app.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}

// close releases the application's external connections.
func (app *application) close() {
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
