// Package scheduler drives the disruption ETL pipeline: randomized-interval
// polling with bounded retry, upserts of fetched records, street matching
// and the inactivity sweep that archives records gone from the feeds.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/dchest/uniuri"
	"github.com/gbl08ma/sqalx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/thoas/go-funk"

	"github.com/opencivic/disruptionsto/compute"
	"github.com/opencivic/disruptionsto/dataobjects"
	"github.com/opencivic/disruptionsto/fetcher"
	"github.com/opencivic/disruptionsto/geohash"
)

// Config are the tunables of the ETL scheduler
type Config struct {
	MinInterval         time.Duration
	MaxInterval         time.Duration
	MaxRetries          int
	BackoffMultiplier   float64
	InactivityThreshold time.Duration
	GeohashPrecision    int
}

// Scheduler polls all upstream sources on a randomized interval and keeps
// the stored disruption set in sync with them. At most one run executes at
// a time; a failed run is retried with exponential backoff before deferring
// to the next regular cycle.
type Scheduler struct {
	node     sqalx.Node
	log      *log.Logger
	fetchers []fetcher.Fetcher
	matches  *compute.MatchHandler
	stats    *compute.StatsHandler
	config   Config

	stopChan chan struct{}
	random   *rand.Rand

	runningMutex sync.Mutex
	running      bool

	// replaced in tests
	run func() runResult
}

type runResult struct {
	processed int
	archived  int
	err       error
}

// New returns a new, initialized Scheduler
func New(node sqalx.Node, log *log.Logger, fetchers []fetcher.Fetcher,
	matches *compute.MatchHandler, stats *compute.StatsHandler, config Config) *Scheduler {
	s := &Scheduler{
		node:     node,
		log:      log,
		fetchers: fetchers,
		matches:  matches,
		stats:    stats,
		config:   config,
		random:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.run = s.runOnce
	return s
}

// Begin starts the scheduler. The first run is triggered immediately.
func (s *Scheduler) Begin() {
	s.runningMutex.Lock()
	defer s.runningMutex.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.log.Println("Scheduler starting")
	go s.loop()
}

// End stops the scheduler. Only pending timers are cancelled; a run already
// in flight completes and its results are persisted.
func (s *Scheduler) End() {
	s.runningMutex.Lock()
	defer s.runningMutex.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopChan)
}

// Running returns whether the scheduler is started
func (s *Scheduler) Running() bool {
	s.runningMutex.Lock()
	defer s.runningMutex.Unlock()
	return s.running
}

func (s *Scheduler) loop() {
	for {
		s.runWithRetries()

		delay := s.nextInterval()
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-s.stopChan:
			timer.Stop()
			return
		}
	}
}

// runWithRetries executes one run, retrying failures with exponential
// backoff up to the configured limit before deferring to the next regular
// cycle
func (s *Scheduler) runWithRetries() {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		result := s.run()
		s.stats.RegisterRun(start, time.Now(), result.processed, result.archived, result.err)
		if result.err == nil {
			return
		}
		s.log.Println("Run failed:", result.err)
		if attempt >= s.config.MaxRetries {
			s.log.Println("Retry limit reached, deferring to next cycle")
			return
		}

		timer := time.NewTimer(s.backoffDelay(attempt))
		select {
		case <-timer.C:
		case <-s.stopChan:
			timer.Stop()
			return
		}
	}
}

// nextInterval picks a uniformly random delay in [MinInterval, MaxInterval]
func (s *Scheduler) nextInterval() time.Duration {
	spread := s.config.MaxInterval - s.config.MinInterval
	if spread <= 0 {
		return s.config.MinInterval
	}
	return s.config.MinInterval + time.Duration(s.random.Int63n(int64(spread)+1))
}

// backoffDelay is MaxInterval × BackoffMultiplier^attempt
func (s *Scheduler) backoffDelay(attempt int) time.Duration {
	return time.Duration(float64(s.config.MaxInterval) *
		math.Pow(s.config.BackoffMultiplier, float64(attempt)))
}

func (s *Scheduler) runOnce() runResult {
	runID := uniuri.NewLen(8)
	s.log.Println("ETL run", runID, "starting")

	type sourcedRecord struct {
		record fetcher.Record
		source *dataobjects.Source
	}
	records := []sourcedRecord{}
	for _, f := range s.fetchers {
		fetched, err := f.Fetch(context.Background())
		if err != nil {
			return runResult{err: fmt.Errorf("fetch %s: %s", f.ID(), err)}
		}
		s.log.Println("ETL run", runID, "fetched", len(fetched), "records from", f.ID())
		for _, record := range fetched {
			records = append(records, sourcedRecord{record, f.Source()})
		}
	}

	seenIDs := make([]string, 0, len(records))
	processed := 0
	for _, sourced := range records {
		seenIDs = append(seenIDs, sourced.record.ExternalID)
		disruption := s.buildDisruption(sourced.record, sourced.source)
		if err := disruption.Update(s.node); err != nil {
			s.log.Println("ETL run", runID, "record", sourced.record.ExternalID+":", err)
			continue
		}
		if err := s.matches.MatchDisruption(s.node, disruption); err != nil {
			s.log.Println("ETL run", runID, "match", sourced.record.ExternalID+":", err)
		}
		processed++
	}

	archived, err := s.sweepInactive(runID, seenIDs)
	if err != nil {
		return runResult{processed: processed, archived: archived, err: err}
	}

	s.log.Println("ETL run", runID, "done:", processed, "processed,", archived, "archived")
	return runResult{processed: processed, archived: archived}
}

func (s *Scheduler) buildDisruption(record fetcher.Record, source *dataobjects.Source) *dataobjects.Disruption {
	disruption := &dataobjects.Disruption{
		ExternalID:    record.ExternalID,
		Category:      record.Category,
		Severity:      record.Severity,
		Title:         record.Title,
		Description:   record.Description,
		AffectedLines: pq.StringArray(record.AffectedLines),
		Payload:       types.JSONText(record.Payload),
		Source:        source,
		CoordSource:   record.CoordSource,
	}
	if record.Latitude != nil && record.Longitude != nil {
		disruption.Latitude.Float64 = *record.Latitude
		disruption.Latitude.Valid = true
		disruption.Longitude.Float64 = *record.Longitude
		disruption.Longitude.Valid = true
		disruption.GeohashCells = pq.StringArray(geohash.WithNeighbors(
			*record.Latitude, *record.Longitude, s.config.GeohashPrecision))
	}
	return disruption
}

// sweepInactive resolves every active disruption that is absent from the
// current fetch and has not been seen for longer than the inactivity
// threshold. Records missing but recently seen are left alone, tolerating
// transient source flakiness.
func (s *Scheduler) sweepInactive(runID string, seenIDs []string) (int, error) {
	cutoff := time.Now().UTC().Add(-s.config.InactivityThreshold)
	stale, err := dataobjects.GetActiveDisruptionsLastSeenBefore(s.node, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep: %s", err)
	}

	archived := 0
	for _, disruption := range stale {
		if funk.ContainsString(seenIDs, disruption.ExternalID) {
			continue
		}
		err := disruption.Resolve(s.node, "missing from feed past inactivity threshold")
		if err != nil {
			// individual resolve failures do not abort the sweep
			s.log.Println("ETL run", runID, "sweep", disruption.ExternalID+":", err)
			continue
		}
		archived++
	}
	return archived, nil
}
