// File: internal/service/components.go
package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/observability"
	"github.com/xkilldash9x/stepwise/internal/optimizer"
	"github.com/xkilldash9x/stepwise/internal/oracle"
	"github.com/xkilldash9x/stepwise/internal/store"
)

// recorderDrainTimeout bounds how long Shutdown waits for queued runs to be persisted.
const recorderDrainTimeout = 30 * time.Second

// Pool is the subset of a connection pool the components own.
type Pool interface {
	store.DBPool
	Close()
}

// RunRecord is a finished optimization queued for persistence.
type RunRecord struct {
	Original []schemas.WorkflowStep
	Result   *schemas.OptimizationResult
}

// Components holds the services needed to optimize workflows and centralizes
// their lifecycle.
type Components struct {
	Optimizer *optimizer.Optimizer
	Oracle    oracle.Client
	Store     schemas.Store
	DBPool    Pool

	// runs decouples optimization from persistence. It is nil when
	// persistence is off.
	runs chan RunRecord

	// recorderWG tracks the run recorder so Shutdown can wait for the drain.
	recorderWG *sync.WaitGroup
}

// Record queues a finished run for persistence. It reports false when
// persistence is disabled.
func (c *Components) Record(original []schemas.WorkflowStep, result *schemas.OptimizationResult) bool {
	if c.runs == nil || result == nil {
		return false
	}
	c.runs <- RunRecord{Original: original, Result: result}
	return true
}

// Shutdown closes all components. The run queue is drained before the
// database pool goes away.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	// 1. Stop accepting runs; the recorder drains what is left.
	runs := c.runs
	if runs != nil {
		close(runs)
		c.runs = nil
		logger.Debug("Run queue closed.")
	}

	// 2. Wait for the recorder.
	if c.recorderWG != nil {
		if timedWait(c.recorderWG, recorderDrainTimeout) {
			logger.Debug("Run recorder finished processing.")
			c.persistLeftovers(runs, logger)
		} else {
			logger.Warn("Timed out waiting for run recorder; some runs may not be persisted.", zap.Duration("timeout", recorderDrainTimeout))
		}
	}

	// 3. Release the oracle backend.
	if c.Oracle != nil {
		if err := c.Oracle.Close(); err != nil {
			logger.Warn("Error during oracle shutdown.", zap.Error(err))
		} else {
			logger.Debug("Oracle closed.", zap.String("oracle", c.Oracle.Name()))
		}
	}

	// 4. Close the database connection pool.
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	logger.Debug("All components shut down.")
}

// persistLeftovers stores runs queued after the recorder stopped early, which
// happens when its context is cancelled before Record is called.
func (c *Components) persistLeftovers(runs chan RunRecord, logger *zap.Logger) {
	if runs == nil {
		return
	}
	var pending []RunRecord
	drainChannel(runs, &pending)
	if len(pending) == 0 {
		return
	}
	if c.Store == nil {
		logger.Warn("Dropping runs queued after the run recorder stopped.", zap.Int("runs", len(pending)))
		return
	}
	logger.Info("Persisting runs queued after the run recorder stopped.", zap.Int("runs", len(pending)))
	for _, rec := range pending {
		persistRun(c.Store, rec, logger)
	}
}

// timedWait waits for wg and reports whether it finished within timeout.
func timedWait(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
