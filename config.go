package main

import (
	"strconv"
	"time"

	"github.com/opencivic/disruptionsto/scheduler"
)

// defaults for everything the keybox may override
const (
	defaultMinIntervalSeconds        = 300
	defaultMaxIntervalSeconds        = 600
	defaultMaxRetries                = 3
	defaultBackoffMultiplier         = 2.0
	defaultInactivityThresholdMinute = 30
	defaultMaxFuzzyDistance          = 3
	defaultMatchCacheMaxAgeDays      = 30
	defaultGeohashPrecision          = 6
	defaultRateLimitMinDelayMs       = 10000
	defaultCleanupDaysOld            = 90
)

func secretInt(key string, fallback int) int {
	raw, present := secrets.Get(key)
	if !present {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		mainLog.Println("Ignoring non-integer value for", key, "in keybox:", raw)
		return fallback
	}
	return value
}

func secretFloat(key string, fallback float64) float64 {
	raw, present := secrets.Get(key)
	if !present {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		mainLog.Println("Ignoring non-numeric value for", key, "in keybox:", raw)
		return fallback
	}
	return value
}

func schedulerConfig() scheduler.Config {
	return scheduler.Config{
		MinInterval:         time.Duration(secretInt("minInterval", defaultMinIntervalSeconds)) * time.Second,
		MaxInterval:         time.Duration(secretInt("maxInterval", defaultMaxIntervalSeconds)) * time.Second,
		MaxRetries:          secretInt("maxRetries", defaultMaxRetries),
		BackoffMultiplier:   secretFloat("backoffMultiplier", defaultBackoffMultiplier),
		InactivityThreshold: time.Duration(secretInt("inactivityThresholdMinutes", defaultInactivityThresholdMinute)) * time.Minute,
		GeohashPrecision:    secretInt("geohashPrecision", defaultGeohashPrecision),
	}
}

func maxFuzzyDistance() int {
	return secretInt("maxFuzzyDistance", defaultMaxFuzzyDistance)
}

func matchCacheMaxAge() time.Duration {
	return time.Duration(secretInt("matchCacheMaxAgeDays", defaultMatchCacheMaxAgeDays)) * 24 * time.Hour
}

func rateLimitMinDelay() time.Duration {
	return time.Duration(secretInt("minDelayMs", defaultRateLimitMinDelayMs)) * time.Millisecond
}

func cleanupDaysOld() int {
	return secretInt("cleanupDaysOld", defaultCleanupDaysOld)
}
