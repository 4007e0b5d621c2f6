package compute

import (
	"sync"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
)

// Stats is a snapshot of the scheduler's process-lifetime counters.
// Counters reset only on process restart.
type Stats struct {
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	Processed      int
	Archived       int
	LastError      string
	LastRunStart   time.Time
	LastRunEnd     time.Time
	AvgRunSeconds  float64
}

// StatsHandler accumulates scheduler run statistics
type StatsHandler struct {
	mutex sync.Mutex

	totalRuns      int
	successfulRuns int
	failedRuns     int
	processed      int
	archived       int
	lastError      error
	lastRunStart   time.Time
	lastRunEnd     time.Time

	runDuration *movingaverage.MovingAverage
}

// NewStatsHandler returns a new, initialized StatsHandler
func NewStatsHandler() *StatsHandler {
	return &StatsHandler{
		runDuration: movingaverage.New(20),
	}
}

// RegisterRun records the outcome of one scheduler run
func (h *StatsHandler) RegisterRun(start, end time.Time, processed, archived int, err error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.totalRuns++
	if err == nil {
		h.successfulRuns++
	} else {
		h.failedRuns++
		h.lastError = err
	}
	h.processed += processed
	h.archived += archived
	h.lastRunStart = start
	h.lastRunEnd = end
	h.runDuration.Add(end.Sub(start).Seconds())
}

// Snapshot returns a copy of the current counters
func (h *StatsHandler) Snapshot() Stats {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	stats := Stats{
		TotalRuns:      h.totalRuns,
		SuccessfulRuns: h.successfulRuns,
		FailedRuns:     h.failedRuns,
		Processed:      h.processed,
		Archived:       h.archived,
		LastRunStart:   h.lastRunStart,
		LastRunEnd:     h.lastRunEnd,
		AvgRunSeconds:  h.runDuration.Avg(),
	}
	if h.lastError != nil {
		stats.LastError = h.lastError.Error()
	}
	return stats
}

// SuccessRate returns the fraction of runs that succeeded, or 1 when no run
// has completed yet
func (h *StatsHandler) SuccessRate() float64 {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.totalRuns == 0 {
		return 1
	}
	return float64(h.successfulRuns) / float64(h.totalRuns)
}
