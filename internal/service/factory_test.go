package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/config"
	"github.com/xkilldash9x/stepwise/internal/store"
)

func poolFrom(p Pool, err error) PoolOpener {
	return func(context.Context, config.DatabaseConfig, *zap.Logger) (Pool, error) {
		return p, err
	}
}

func TestCreate_WithoutPersistence(t *testing.T) {
	factory := NewComponentFactoryWithPool(func(context.Context, config.DatabaseConfig, *zap.Logger) (Pool, error) {
		t.Fatal("the pool must not be opened when persistence is off")
		return nil, nil
	})
	cfg := config.NewDefaultConfig()

	components, err := factory.Create(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer components.Shutdown()

	assert.NotNil(t, components.Optimizer)
	assert.Nil(t, components.Oracle)
	assert.Nil(t, components.Store)
	assert.Nil(t, components.DBPool)
}

func TestCreate_WithHTTPOracle(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.OracleCfg.Enabled = true
	cfg.OracleCfg.Endpoint = "http://127.0.0.1:9/classify"

	components, err := NewComponentFactory().Create(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer components.Shutdown()

	require.NotNil(t, components.Oracle)
	assert.Equal(t, "http", components.Oracle.Name())
}

func TestCreate_ValidationErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("OracleMisconfigured", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.OracleCfg.Enabled = true
		cfg.OracleCfg.Endpoint = ""

		_, err := NewComponentFactory().Create(ctx, cfg, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "oracle endpoint is required")
	})

	t.Run("MissingDBURL", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.DatabaseCfg.Persist = true
		cfg.DatabaseCfg.URL = ""

		_, err := NewComponentFactory().Create(ctx, cfg, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database URL is not configured")
	})

	t.Run("PoolOpenFails", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.DatabaseCfg.Persist = true

		_, err := NewComponentFactoryWithPool(poolFrom(nil, errors.New("no route to host"))).Create(ctx, cfg, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create database connection pool")
	})

	t.Run("SchemaFails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		mockPool.ExpectPing()
		mockPool.ExpectExec(flexibleSQLMatcher(store.Schema)).WillReturnError(errors.New("permission denied"))

		cfg := config.NewDefaultConfig()
		cfg.DatabaseCfg.Persist = true

		_, err = NewComponentFactoryWithPool(poolFrom(mockPool, nil)).Create(ctx, cfg, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create schema")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestCreate_PersistsRecordedRuns(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	mockPool.ExpectPing()
	mockPool.ExpectExec(flexibleSQLMatcher(store.Schema)).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	cfg := config.NewDefaultConfig()
	cfg.DatabaseCfg.Persist = true

	components, err := NewComponentFactoryWithPool(poolFrom(mockPool, nil)).Create(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, components.Store)

	original, _ := sampleRun("")
	result := components.Optimizer.Optimize(context.Background(), original)

	mockPool.ExpectBegin()
	mockPool.ExpectExec("INSERT INTO optimization_runs").
		WithArgs(
			result.RunID, pgxmock.AnyArg(), 2, len(result.Steps),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), false,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if len(result.Metadata.OptimizationMap) > 0 {
		mockPool.ExpectCopyFrom(pgx.Identifier{"optimization_map_entries"}, []string{"run_id", "position", "original_indices", "optimized_index", "reason", "decision_method"}).
			WillReturnResult(int64(len(result.Metadata.OptimizationMap)))
	}
	mockPool.ExpectCommit()
	mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

	require.True(t, components.Record(original, result))
	components.Shutdown()

	assert.NoError(t, mockPool.ExpectationsWereMet())
}
