package tordata

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/opencivic/disruptionsto/dataobjects"
	"github.com/opencivic/disruptionsto/fetcher"
	"github.com/opencivic/disruptionsto/ratelimit"
)

var lineRegexp = regexp.MustCompile(`\b(?:Line ([1-6])|([0-9]{1,3}) [A-Z][a-z]+)\b`)

// TTCAlertsFetcher fetches the TTC service alerts RSS feed
type TTCAlertsFetcher struct {
	URL        string
	FeedSource *dataobjects.Source
	Limiter    *ratelimit.Limiter

	parser *gofeed.Parser
}

// ID returns the identifier of this fetcher
func (f *TTCAlertsFetcher) ID() string {
	return f.FeedSource.ID
}

// Source returns the source descriptor of this fetcher
func (f *TTCAlertsFetcher) Source() *dataobjects.Source {
	return f.FeedSource
}

// Fetch returns the currently published service alerts
func (f *TTCAlertsFetcher) Fetch(ctx context.Context) ([]fetcher.Record, error) {
	if f.parser == nil {
		f.parser = gofeed.NewParser()
	}

	var feed *gofeed.Feed
	err := f.Limiter.ExecuteQueued(ctx, func() error {
		var ferr error
		feed, ferr = f.parser.ParseURLWithContext(f.URL, ctx)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("Fetch: %s", err)
	}

	records := make([]fetcher.Record, 0, len(feed.Items))
	for _, item := range feed.Items {
		externalID := item.GUID
		if externalID == "" {
			externalID = item.Link
		}
		if externalID == "" {
			continue
		}
		record := fetcher.Record{
			ExternalID:    f.FeedSource.ID + "-" + externalID,
			Category:      "transit",
			Severity:      severityForAlert(item),
			Title:         strings.TrimSpace(item.Title),
			Description:   strings.TrimSpace(item.Description),
			AffectedLines: affectedLines(item.Title + " " + item.Description),
			CoordSource:   fetcher.CoordSourceFallback,
		}
		payload := map[string]string{
			"guid":  item.GUID,
			"link":  item.Link,
			"title": item.Title,
		}
		if item.PublishedParsed != nil {
			payload["published"] = item.PublishedParsed.UTC().Format("2006-01-02T15:04:05Z")
		}
		if encoded, err := json.Marshal(payload); err == nil {
			record.Payload = encoded
		}
		records = append(records, record)
	}
	return records, nil
}

func severityForAlert(item *gofeed.Item) string {
	text := strings.ToLower(item.Title)
	switch {
	case strings.Contains(text, "no service") || strings.Contains(text, "suspended"):
		return "major"
	case strings.Contains(text, "delay") || strings.Contains(text, "diverting"):
		return "moderate"
	default:
		return "minor"
	}
}

func affectedLines(text string) []string {
	lines := []string{}
	seen := map[string]bool{}
	for _, m := range lineRegexp.FindAllStringSubmatch(text, -1) {
		line := m[1]
		if line == "" {
			line = m[2]
		}
		if line != "" && !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}
	return lines
}
