package main

import (
	"time"

	statsd "gopkg.in/alexcesaro/statsd.v2"

	"github.com/opencivic/disruptionsto/dataobjects"
)

// StatsSender is meant to be called as a goroutine that handles sending
// telemetry to a statsd (or compatible) server
func StatsSender() {
	statsdAddress, present := secrets.Get("statsdAddress")
	statsdPrefix, present2 := secrets.Get("statsdPrefix")
	if !present || !present2 {
		return
	}

	c, err := statsd.New(statsd.Address(statsdAddress), statsd.Prefix(statsdPrefix))
	if err != nil {
		// If nothing is listening on the target port, an error is returned and
		// the returned client does nothing but is still usable. So we can
		// just log the error and go on.
		mainLog.Println(err)
	}
	defer c.Close()

	ticker := time.NewTicker(1 * time.Minute)

	for range ticker.C {
		stats := statsHandler.Snapshot()
		c.Gauge("runs_total", stats.TotalRuns)
		c.Gauge("runs_failed", stats.FailedRuns)
		c.Gauge("records_processed", stats.Processed)
		c.Gauge("records_archived", stats.Archived)
		c.Gauge("run_success_rate", statsHandler.SuccessRate())
		c.Gauge("run_avg_seconds", stats.AvgRunSeconds)

		active, err := dataobjects.GetActiveDisruptions(rootSqalxNode)
		if err != nil {
			mainLog.Println(err)
			continue
		}
		c.Gauge("disruptions_active", len(active))
	}
}
