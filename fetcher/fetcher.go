// Package fetcher defines the contract between upstream disruption feeds
// and the ETL scheduler.
package fetcher

import (
	"context"
	"encoding/json"

	"github.com/opencivic/disruptionsto/dataobjects"
)

// Coordinate provenance markers
const (
	CoordSourceDeclared = "declared" // reported by the upstream feed
	CoordSourceDerived  = "derived"  // computed from other feed fields
	CoordSourceFallback = "fallback" // a default location stood in
)

// Record is one disruption as currently reported by an upstream feed
type Record struct {
	ExternalID    string
	Category      string
	Severity      string
	Title         string
	Description   string
	AffectedLines []string
	Latitude      *float64
	Longitude     *float64
	CoordSource   string
	Payload       json.RawMessage
}

// Fetcher retrieves the complete current set of disruptions from one
// upstream source. The absence of a previously seen external ID from a
// fetch signals possible resolution, never immediate deletion.
type Fetcher interface {
	ID() string
	Source() *dataobjects.Source
	Fetch(ctx context.Context) ([]Record, error)
}
