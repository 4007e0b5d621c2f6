package tordata

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/opencivic/disruptionsto/dataobjects"
	"github.com/opencivic/disruptionsto/fetcher"
	"github.com/opencivic/disruptionsto/ratelimit"
)

// PlannedClosuresFetcher scrapes the planned road closure listing page.
// The page carries no identifiers, so external IDs are derived from the
// closure location text; they stay stable only as long as the upstream text
// does, which is the known weakness of this source.
type PlannedClosuresFetcher struct {
	URL        string
	FeedSource *dataobjects.Source
	Limiter    *ratelimit.Limiter

	client *http.Client
}

// ID returns the identifier of this fetcher
func (f *PlannedClosuresFetcher) ID() string {
	return f.FeedSource.ID
}

// Source returns the source descriptor of this fetcher
func (f *PlannedClosuresFetcher) Source() *dataobjects.Source {
	return f.FeedSource
}

// Fetch returns the currently listed planned closures
func (f *PlannedClosuresFetcher) Fetch(ctx context.Context) ([]fetcher.Record, error) {
	if f.client == nil {
		f.client = &http.Client{Timeout: 30 * time.Second}
	}

	var doc *goquery.Document
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
			return fmt.Errorf("planned closures page returned %s", response.Status)
		}
		doc, err = goquery.NewDocumentFromReader(response.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Fetch: %s", err)
	}

	records := []fetcher.Record{}
	doc.Find("table.closures tbody tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		location := strings.TrimSpace(cells.Eq(0).Text())
		reason := strings.TrimSpace(cells.Eq(1).Text())
		period := strings.TrimSpace(cells.Eq(2).Text())
		if location == "" {
			return
		}

		sum := sha1.Sum([]byte(strings.ToLower(location)))
		record := fetcher.Record{
			ExternalID:  f.FeedSource.ID + "-" + hex.EncodeToString(sum[:8]),
			Category:    "road",
			Severity:    "moderate",
			Title:       location + " closed",
			Description: strings.TrimSpace(reason + " " + period),
			CoordSource: fetcher.CoordSourceFallback,
		}
		if payload, err := json.Marshal(map[string]string{
			"location": location,
			"reason":   reason,
			"period":   period,
		}); err == nil {
			record.Payload = payload
		}
		records = append(records, record)
	})
	return records, nil
}
