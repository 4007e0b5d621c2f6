package main

import (
	"github.com/gbl08ma/sqalx"

	"github.com/opencivic/disruptionsto/centreline"
	"github.com/opencivic/disruptionsto/compute"
	"github.com/opencivic/disruptionsto/dataobjects"
	"github.com/opencivic/disruptionsto/fetcher"
	"github.com/opencivic/disruptionsto/fetcher/tordata"
	"github.com/opencivic/disruptionsto/ratelimit"
	"github.com/opencivic/disruptionsto/scheduler"
)

const (
	centrelineRefreshHour = 4
	cleanupHour           = 5
)

var (
	etlScheduler        *scheduler.Scheduler
	centrelineScheduler *scheduler.DailyScheduler
	cleanupScheduler    *scheduler.DailyScheduler
)

// SetUpSchedulers registers the upstream sources and starts the ETL
// scheduler and the daily maintenance schedulers
func SetUpSchedulers(node sqalx.Node) error {
	sources := []*dataobjects.Source{
		{
			ID:          "tordata-roadrestrictions",
			Name:        "City of Toronto road restrictions",
			URL:         "https://secure.toronto.ca/opendata/cart/road_restrictions/v3?format=json",
			IsAutomatic: true,
			IsOfficial:  true,
		},
		{
			ID:          "tordata-ttcalerts",
			Name:        "TTC service alerts",
			URL:         "https://www.ttc.ca/rss/Service_Alerts",
			IsAutomatic: true,
			IsOfficial:  true,
		},
		{
			ID:          "tordata-plannedclosures",
			Name:        "City of Toronto planned road closures",
			URL:         "https://www.toronto.ca/services-payments/streets-parking-transportation/road-restrictions-closures/",
			IsAutomatic: true,
			IsOfficial:  true,
		},
	}

	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, source := range sources {
		err = source.Update(tx)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	if err != nil {
		return err
	}

	config := schedulerConfig()
	minDelay := rateLimitMinDelay()

	fetchers := []fetcher.Fetcher{
		&tordata.RoadRestrictionsFetcher{
			URL:        sources[0].URL,
			FeedSource: sources[0],
			Limiter:    ratelimit.New(minDelay, config.MaxRetries, config.BackoffMultiplier),
		},
		&tordata.TTCAlertsFetcher{
			URL:        sources[1].URL,
			FeedSource: sources[1],
			Limiter:    ratelimit.New(minDelay, config.MaxRetries, config.BackoffMultiplier),
		},
		&tordata.PlannedClosuresFetcher{
			URL:        sources[2].URL,
			FeedSource: sources[2],
			Limiter:    ratelimit.New(minDelay, config.MaxRetries, config.BackoffMultiplier),
		},
	}

	etlScheduler = scheduler.New(node, schedulerLog, fetchers, matchHandler, statsHandler, config)
	etlScheduler.Begin()

	shapefilePath, present := secrets.Get("centrelineShapefile")
	if present {
		centrelineScheduler = scheduler.NewDailyScheduler(node, refreshLog,
			"centreline", centrelineRefreshHour,
			func() error {
				return centreline.Refresh(node, shapefilePath, config.GeohashPrecision, refreshLog)
			},
			matchHandler.InvalidateReference)
		centrelineScheduler.Begin()
	} else {
		mainLog.Println("Not refreshing centreline geometry, as shapefile path is not present")
	}

	cleanupScheduler = scheduler.NewDailyScheduler(node, refreshLog,
		"cleanup", cleanupHour,
		func() error {
			_, err := compute.CleanupResolved(node, cleanupDaysOld())
			return err
		}, nil)
	cleanupScheduler.Begin()

	return nil
}

// TearDownSchedulers stops all running schedulers
func TearDownSchedulers() {
	if etlScheduler != nil {
		etlScheduler.End()
	}
	if centrelineScheduler != nil {
		centrelineScheduler.End()
	}
	if cleanupScheduler != nil {
		cleanupScheduler.End()
	}
}
