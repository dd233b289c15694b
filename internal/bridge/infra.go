package bridge

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Egham-7/substreams-bridge/internal/config"
	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services"
	"github.com/Egham-7/substreams-bridge/internal/services/api_call"
	"github.com/Egham-7/substreams-bridge/internal/services/cursor"
	"github.com/Egham-7/substreams-bridge/internal/services/database"
	"github.com/Egham-7/substreams-bridge/internal/services/executor"
	"github.com/Egham-7/substreams-bridge/internal/services/jsonrpc"
	"github.com/Egham-7/substreams-bridge/internal/services/module_decoder"
	"github.com/Egham-7/substreams-bridge/internal/services/package_resolver"
	"github.com/Egham-7/substreams-bridge/internal/services/stream/contracts"
	"github.com/Egham-7/substreams-bridge/internal/services/stream/readers"
	"github.com/Egham-7/substreams-bridge/internal/services/substreams"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// NewFromConfig builds the infrastructure named by cfg and a bridge on top of
// the process-wide executor.
func NewFromConfig(cfg *config.Config) (*Bridge, error) {
	return NewFromConfigWithExecutor(cfg, executor.Default())
}

// NewFromConfigWithExecutor is NewFromConfig with an explicit executor
func NewFromConfigWithExecutor(cfg *config.Config, exec *executor.Executor) (*Bridge, error) {
	var closers []io.Closer
	checks := map[string]func(context.Context) error{}
	fail := func(err error) (*Bridge, error) {
		_ = New(exec, nil, nil, nil, closers...).Close()
		return nil, err
	}

	redisClient, err := createRedisClient(cfg)
	if err != nil {
		return fail(fmt.Errorf("failed to create Redis client: %w", err))
	}
	if redisClient != nil {
		closers = append(closers, redisClient)
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	var db *database.DB
	if cfg.Database != nil {
		db, err = database.New(*cfg.Database)
		if err != nil {
			return fail(fmt.Errorf("failed to create database connection: %w", err))
		}
		closers = append(closers, closerFunc(db.Close))
		checks["database"] = func(context.Context) error {
			return db.Ping()
		}
		fiberlog.Infof("Database (%s) initialized successfully", db.DriverName())

		if err := db.Migrate(); err != nil {
			return fail(fmt.Errorf("failed to run database migrations: %w", err))
		}
		fiberlog.Info("Database migrations completed successfully")
	}

	cursors, err := cursor.Open(cfg.Cursor, db, redisClient)
	if err != nil {
		return fail(fmt.Errorf("failed to open cursor store: %w", err))
	}
	closers = append(closers, cursors)

	client := services.NewClientWithConfig(services.ClientConfigFromModel(cfg.HTTP))
	closers = append(closers, closerFunc(func() error {
		client.Close()
		return nil
	}))

	resolver, err := package_resolver.NewResolver(client, cfg.Registry)
	if err != nil {
		return fail(fmt.Errorf("failed to create package resolver: %w", err))
	}

	transport := readers.NewGRPCTransport(cfg.Stream)
	closers = append(closers, transport)

	deps := substreams.Deps{
		Token:           cfg.APIToken,
		Resolver:        resolver,
		Registry:        module_decoder.Default(),
		Transport:       transport,
		Cursors:         cursors,
		FinalBlocksOnly: cfg.Stream.FinalBlocksOnly,
	}
	if cfg.Sink.Enabled {
		deps.Sink = db
	} else {
		deps.Undo = contracts.UndoFunc(warnUndo)
	}

	b := New(
		exec,
		jsonrpc.NewService(client),
		api_call.NewService(client),
		substreams.NewService(deps),
		closers...,
	)
	b.checks = checks
	return b, nil
}

// warnUndo is the undo hook used without a durable sink: collected outputs
// are rolled back in memory but nothing outside the process is.
func warnUndo(_ context.Context, signal *models.UndoSignal) error {
	fiberlog.Warnf("Undo to block %d received with no durable sink configured; external effects are not rolled back",
		signal.LastValidBlock.Number)
	return nil
}

// createRedisClient connects when the redis cursor backend is selected
func createRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.Cursor.Backend != models.CursorBackendRedis {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.Cursor.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 20
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3

	return testRedisConnectionWithRetry(redis.NewClient(opt), time.Second)
}

func testRedisConnectionWithRetry(client *redis.Client, baseDelay time.Duration) (*redis.Client, error) {
	const maxAttempts = 3

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()

		if err == nil {
			fiberlog.Infof("Redis connection established (attempt %d/%d)", attempt, maxAttempts)
			return client, nil
		}

		fiberlog.Warnf("Redis connection failed (attempt %d/%d): %v", attempt, maxAttempts, err)

		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt) * baseDelay)
		}
	}

	if err := client.Close(); err != nil {
		fiberlog.Errorf("Failed to close Redis client after connection failures: %v", err)
	}

	return nil, fmt.Errorf("failed to connect to Redis after %d attempts", maxAttempts)
}
