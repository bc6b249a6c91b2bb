// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/config"
	"github.com/xkilldash9x/stepwise/internal/optimizer"
)

// runQueueSize is the buffer between the optimizer and the run recorder.
const runQueueSize = 64

// ComponentFactory defines the interface for creating the set of components
// needed to optimize workflows. Commands depend on it so they can be tested
// without a database or an oracle.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// PoolOpener opens the database pool used when runs are persisted.
type PoolOpener func(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Pool, error)

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	openPool PoolOpener
}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{openPool: openPgxPool}
}

// NewComponentFactoryWithPool creates a factory that obtains its database
// pool from open.
func NewComponentFactoryWithPool(open PoolOpener) ComponentFactory {
	return &concreteFactory{openPool: open}
}

func openPgxPool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Pool, error) {
	pool, err := InitializeDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// Create wires the oracle, the optimizer and, when persistence is enabled,
// the store and its run recorder.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	components := &Components{}

	// Partially created components are released if a later step fails.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Oracle
	orc, err := InitializeOracle(ctx, cfg, logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Oracle = orc

	// 2. Optimizer
	components.Optimizer = optimizer.New(cfg.Optimizer(), cfg.Oracle(), orc, logger)
	logger.Debug("Optimizer initialized.",
		zap.Int("concurrency", cfg.Optimizer().Concurrency),
		zap.Float64("confidence_threshold", cfg.Optimizer().ConfidenceThreshold))

	if !cfg.Database().Persist {
		logger.Debug("Run persistence disabled.")
		return components, nil
	}

	// 3. Database pool
	pool, err := f.openPool(ctx, cfg.Database(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create database connection pool: %w", err)
		return nil, initializationErr
	}
	components.DBPool = pool

	// 4. Store
	dbStore, err := InitializeStore(ctx, pool, logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Store = dbStore
	logger.Debug("Store service initialized.")

	// 5. Run recorder
	components.runs = make(chan RunRecord, runQueueSize)
	components.recorderWG = &sync.WaitGroup{}
	StartRunRecorder(ctx, components.recorderWG, components.runs, dbStore, logger)

	logger.Debug("All components initialized successfully.")
	return components, nil
}
