package oracle

import (
	"sync/atomic"
	"time"

	"github.com/xkilldash9x/stepwise/api/schemas"
)

// Stats accumulates oracle traffic for one optimization run. Safe for
// concurrent use.
type Stats struct {
	calls        atomic.Int64
	failures     atomic.Int64
	timedOut     atomic.Int64
	invalid      atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
}

// Record adds one finished call.
func (s *Stats) Record(res schemas.OracleResult) {
	s.calls.Add(1)
	s.totalLatency.Add(int64(res.Latency))
	if res.OK() {
		return
	}
	s.failures.Add(1)
	switch res.Outcome {
	case schemas.OracleTimedOut:
		s.timedOut.Add(1)
	case schemas.OracleInvalidResponse:
		s.invalid.Add(1)
	}
}

// Snapshot returns the current counters, or nil if no call was made.
func (s *Stats) Snapshot() *schemas.OracleStats {
	calls := s.calls.Load()
	if calls == 0 {
		return nil
	}
	return &schemas.OracleStats{
		Calls:           calls,
		Failures:        s.failures.Load(),
		TimedOut:        s.timedOut.Load(),
		InvalidResponse: s.invalid.Load(),
		MeanLatency:     time.Duration(s.totalLatency.Load() / calls),
	}
}
