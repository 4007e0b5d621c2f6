package scheduler

import (
	"log"
	"sync"
	"time"

	"github.com/gbl08ma/sqalx"
	"github.com/rickb777/date"

	"github.com/opencivic/disruptionsto/dataobjects"
)

// DailyScheduler runs a task once per calendar day at a fixed hour, for
// reference data that changes rarely. Successful runs are recorded in the
// refresh log so a process restart on the same day does not repeat them.
type DailyScheduler struct {
	node    sqalx.Node
	log     *log.Logger
	dataset string
	hour    int

	task      func() error
	onSuccess func()

	stopChan chan struct{}

	runningMutex sync.Mutex
	running      bool
}

// NewDailyScheduler returns a new DailyScheduler firing at the given hour
// (UTC). onSuccess may be nil; when set it runs after every successful task
// completion, typically to invalidate caches derived from the refreshed
// data.
func NewDailyScheduler(node sqalx.Node, log *log.Logger, dataset string, hour int,
	task func() error, onSuccess func()) *DailyScheduler {
	return &DailyScheduler{
		node:      node,
		log:       log,
		dataset:   dataset,
		hour:      hour,
		task:      task,
		onSuccess: onSuccess,
	}
}

// Begin starts the scheduler. If the task has not yet run today and the
// fixed hour has already passed, it runs immediately.
func (s *DailyScheduler) Begin() {
	s.runningMutex.Lock()
	defer s.runningMutex.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	go s.loop()
}

// End stops the scheduler, cancelling only the pending timer
func (s *DailyScheduler) End() {
	s.runningMutex.Lock()
	defer s.runningMutex.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopChan)
}

// Running returns whether the scheduler is started
func (s *DailyScheduler) Running() bool {
	s.runningMutex.Lock()
	defer s.runningMutex.Unlock()
	return s.running
}

func (s *DailyScheduler) loop() {
	now := time.Now().UTC()
	if now.Hour() >= s.hour && !s.ranToday(now) {
		s.runTask()
	}

	for {
		timer := time.NewTimer(nextRunDelay(time.Now().UTC(), s.hour))
		select {
		case <-timer.C:
		case <-s.stopChan:
			timer.Stop()
			return
		}
		if s.ranToday(time.Now().UTC()) {
			continue
		}
		s.runTask()
	}
}

func (s *DailyScheduler) runTask() {
	s.log.Println("Daily refresh of", s.dataset, "starting")
	err := s.task()
	if err != nil {
		s.log.Println("Daily refresh of", s.dataset, "failed:", err)
		return
	}

	refreshLog := &dataobjects.RefreshLog{
		Dataset:     s.dataset,
		LastRefresh: time.Now().UTC(),
	}
	if err := refreshLog.Update(s.node); err != nil {
		s.log.Println("Daily refresh of", s.dataset+":", err)
	}
	if s.onSuccess != nil {
		s.onSuccess()
	}
	s.log.Println("Daily refresh of", s.dataset, "done")
}

// ranToday reports whether the refresh log already records a run on the
// current UTC calendar day
func (s *DailyScheduler) ranToday(now time.Time) bool {
	refreshLog, err := dataobjects.GetRefreshLog(s.node, s.dataset)
	if err != nil {
		return false
	}
	return date.NewAt(refreshLog.LastRefresh.UTC()) == date.NewAt(now)
}

// nextRunDelay computes the time until the next occurrence of the fixed
// hour after now
func nextRunDelay(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
