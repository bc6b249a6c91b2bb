// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/config"
	"github.com/xkilldash9x/stepwise/internal/llmclient"
	"github.com/xkilldash9x/stepwise/internal/oracle"
	"github.com/xkilldash9x/stepwise/internal/store"
)

// InitializeDBPool creates a PostgreSQL connection pool and verifies it.
func InitializeDBPool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is not configured (hint: check STEPWISE_DATABASE_URL)")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	logger.Debug("Database connection pool initialized.", zap.String("host", poolConfig.ConnConfig.Host))
	return pool, nil
}

// InitializeStore builds the run store on top of pool and makes sure its
// tables exist.
func InitializeStore(ctx context.Context, pool store.DBPool, logger *zap.Logger) (*store.Store, error) {
	dbStore, err := store.New(ctx, pool, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database store: %w", err)
	}
	if err := dbStore.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return dbStore, nil
}

// InitializeStandaloneStore opens a pool and store for commands that only
// read history. The returned cleanup closes the pool.
func InitializeStandaloneStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (schemas.Store, func(), error) {
	pool, err := InitializeDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	dbStore, err := InitializeStore(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	cleanup := func() {
		logger.Debug("Closing PostgreSQL connection pool (standalone store).")
		pool.Close()
	}
	return dbStore, cleanup, nil
}

// InitializeLLMClient creates a new LLM client based on the configuration.
func InitializeLLMClient(ctx context.Context, cfg config.AgentConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	llmClient, err := llmclient.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize LLM client. The LLM oracle will be unavailable.", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return llmClient, nil
}

// InitializeOracle builds the configured oracle. It returns nil without an
// error when the oracle is disabled.
func InitializeOracle(ctx context.Context, cfg config.Interface, logger *zap.Logger) (oracle.Client, error) {
	orc, err := oracle.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize oracle. Uncertain steps cannot be resolved.", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize oracle: %w", err)
	}
	if orc == nil {
		logger.Info("Oracle disabled; uncertain steps will be kept.")
		return nil, nil
	}
	logger.Debug("Oracle initialized.", zap.String("oracle", orc.Name()))
	return orc, nil
}

// StartRunRecorder launches a goroutine that persists finished runs from the
// queue. It manages its lifecycle using the provided WaitGroup and drains the
// queue on shutdown.
func StartRunRecorder(ctx context.Context, wg *sync.WaitGroup, runs <-chan RunRecord, dbStore schemas.Store, logger *zap.Logger) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Debug("Starting run recorder goroutine.")
		defer logger.Debug("Run recorder goroutine shut down.")

		for {
			select {
			case rec, ok := <-runs:
				if !ok {
					return
				}
				persistRun(dbStore, rec, logger)

			case <-ctx.Done():
				logger.Warn("Run recorder context canceled, draining queued runs.")
				var pending []RunRecord
				drainChannel(runs, &pending)
				for _, rec := range pending {
					persistRun(dbStore, rec, logger)
				}
				return
			}
		}
	}()
}

// persistRun stores one queued run. The caller's context is not used:
// persistence must complete during shutdown.
func persistRun(dbStore schemas.Store, rec RunRecord, logger *zap.Logger) {
	persistCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := dbStore.PersistRun(persistCtx, rec.Original, rec.Result); err != nil {
		logger.Error("Failed to persist optimization run. Data may be lost.",
			zap.String("run_id", rec.Result.RunID), zap.Error(err))
		return
	}
	logger.Debug("Optimization run persisted.", zap.String("run_id", rec.Result.RunID))
}

// drainChannel reads whatever is buffered in runs without blocking.
func drainChannel(runs <-chan RunRecord, pending *[]RunRecord) {
	for {
		select {
		case rec, ok := <-runs:
			if !ok {
				return
			}
			*pending = append(*pending, rec)
		default:
			return
		}
	}
}
