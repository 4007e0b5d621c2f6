// Package tordata implements fetchers for the Toronto open-data feeds the
// pipeline ingests.
package tordata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/opencivic/disruptionsto/dataobjects"
	"github.com/opencivic/disruptionsto/fetcher"
	"github.com/opencivic/disruptionsto/ratelimit"
)

// maxResponseSize guards against a misbehaving upstream
const maxResponseSize = 8 * 1024 * 1024

// RoadRestrictionsFetcher fetches the city's road restrictions JSON feed
type RoadRestrictionsFetcher struct {
	URL        string
	FeedSource *dataobjects.Source
	Limiter    *ratelimit.Limiter

	client *http.Client
}

type roadRestrictionsResponse struct {
	Closure []roadRestriction `json:"Closure"`
}

type roadRestriction struct {
	ID          string `json:"id"`
	Road        string `json:"road"`
	Name        string `json:"name"`
	District    string `json:"district"`
	Latitude    string `json:"latitude"`
	Longitude   string `json:"longitude"`
	Type        string `json:"type"`
	SubType     string `json:"subType"`
	WorkPeriod  string `json:"workPeriod"`
	Expected    string `json:"expected"`
	Description string `json:"description"`
}

// ID returns the identifier of this fetcher
func (f *RoadRestrictionsFetcher) ID() string {
	return f.FeedSource.ID
}

// Source returns the source descriptor of this fetcher
func (f *RoadRestrictionsFetcher) Source() *dataobjects.Source {
	return f.FeedSource
}

// Fetch returns the currently reported road restrictions
func (f *RoadRestrictionsFetcher) Fetch(ctx context.Context) ([]fetcher.Record, error) {
	if f.client == nil {
		f.client = &http.Client{Timeout: 30 * time.Second}
	}

	var body []byte
	err := f.Limiter.ExecuteQueued(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
		if err != nil {
			return err
		}
		response, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer response.Body.Close()
		if response.StatusCode != http.StatusOK {
			return fmt.Errorf("road restrictions feed returned %s", response.Status)
		}
		body, err = io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Fetch: %s", err)
	}

	var parsed roadRestrictionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("Fetch: %s", err)
	}

	records := make([]fetcher.Record, 0, len(parsed.Closure))
	for _, restriction := range parsed.Closure {
		if restriction.ID == "" {
			continue
		}
		record := fetcher.Record{
			ExternalID:  f.FeedSource.ID + "-" + restriction.ID,
			Category:    "road",
			Severity:    severityForRestriction(restriction),
			Title:       restrictionTitle(restriction),
			Description: restriction.Description,
			CoordSource: fetcher.CoordSourceFallback,
		}
		if lat, lon, ok := parseCoordinates(restriction.Latitude, restriction.Longitude); ok {
			record.Latitude = &lat
			record.Longitude = &lon
			record.CoordSource = fetcher.CoordSourceDeclared
		}
		if payload, err := json.Marshal(restriction); err == nil {
			record.Payload = payload
		}
		records = append(records, record)
	}
	return records, nil
}

func restrictionTitle(restriction roadRestriction) string {
	title := strings.TrimSpace(restriction.Road)
	if title == "" {
		title = strings.TrimSpace(restriction.Name)
	}
	if restriction.SubType != "" {
		title += ": " + restriction.SubType
	}
	return title
}

func severityForRestriction(restriction roadRestriction) string {
	switch strings.ToLower(restriction.WorkPeriod) {
	case "continuous":
		return "major"
	case "daily", "weekdays":
		return "moderate"
	default:
		return "minor"
	}
}

func parseCoordinates(latStr, lonStr string) (float64, float64, bool) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return 0, 0, false
	}
	if lat == 0 && lon == 0 {
		return 0, 0, false
	}
	return lat, lon, true
}
