package compute

import (
	"database/sql"
	"log"
	"time"

	"github.com/gbl08ma/sqalx"
	"github.com/lib/pq"
	cache "github.com/patrickmn/go-cache"

	"github.com/opencivic/disruptionsto/dataobjects"
	"github.com/opencivic/disruptionsto/geohash"
	"github.com/opencivic/disruptionsto/matcher"
)

const referenceCacheKey = "segments"

// MatchHandler links disruptions to street segments, reusing previously
// computed matches while their content hash and age allow it
type MatchHandler struct {
	node sqalx.Node
	log  *log.Logger

	// reference segments are cached between runs and flushed when the
	// centreline refresh succeeds
	reference *cache.Cache

	MaxFuzzyDistance int
	MatchCacheMaxAge time.Duration
	GeohashPrecision int
}

// NewMatchHandler returns a new, initialized MatchHandler
func NewMatchHandler(node sqalx.Node, log *log.Logger,
	maxFuzzyDistance int, matchCacheMaxAge time.Duration, geohashPrecision int) *MatchHandler {
	return &MatchHandler{
		node:             node,
		log:              log,
		reference:        cache.New(6*time.Hour, 30*time.Minute),
		MaxFuzzyDistance: maxFuzzyDistance,
		MatchCacheMaxAge: matchCacheMaxAge,
		GeohashPrecision: geohashPrecision,
	}
}

// InvalidateReference drops the cached reference segments so the next match
// sees freshly refreshed geometry
func (h *MatchHandler) InvalidateReference() {
	h.reference.Flush()
}

// MatchDisruption computes or reuses the street match for a disruption and
// persists the result. Matching trouble (no candidates, no reference data)
// degrades to a "none" match; only store failures are returned as errors.
func (h *MatchHandler) MatchDisruption(node sqalx.Node, disruption *dataobjects.Disruption) error {
	cached := matcher.CachedMatch{
		MatchedName: disruption.MatchedStreet.String,
		Hash:        disruption.MatchHash.String,
	}
	if disruption.MatchedAt.Valid {
		cached.MatchedAt = disruption.MatchedAt.Time
	}
	if matcher.CanUseCachedMatch(cached, disruption.Title, disruption.Description, h.MatchCacheMaxAge) {
		return nil
	}

	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	segments := h.referenceSegments(tx, disruption)
	match, segment := h.bestMatch(disruption, segments)

	now := time.Now().UTC()
	disruption.MatchType = string(match.Type)
	disruption.MatchConfidence = match.Confidence
	disruption.MatchHash = sql.NullString{
		String: matcher.ComputeMatchHash(disruption.Title, disruption.Description),
		Valid:  true,
	}
	disruption.MatchedAt = pq.NullTime{Time: now, Valid: true}
	if match.Type == matcher.MatchTypeNone {
		disruption.MatchedStreet = sql.NullString{}
	} else {
		disruption.MatchedStreet = sql.NullString{String: match.Name, Valid: true}
	}

	err = disruption.UpdateMatch(tx)
	if err != nil {
		return err
	}

	if segment != nil {
		link := &dataobjects.StreetMatch{
			DisruptionID: disruption.ID,
			SegmentID:    segment.ID,
			MatchType:    string(match.Type),
			Confidence:   match.Confidence,
			MatchedName:  match.Name,
		}
		err = link.Replace(tx)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// referenceSegments returns the candidate segments for a disruption,
// narrowed to nearby geohash cells when the disruption has coordinates
func (h *MatchHandler) referenceSegments(tx sqalx.Node, disruption *dataobjects.Disruption) []*dataobjects.StreetSegment {
	if disruption.Latitude.Valid && disruption.Longitude.Valid {
		cells := geohash.WithNeighbors(
			disruption.Latitude.Float64, disruption.Longitude.Float64, h.GeohashPrecision)
		segments, err := dataobjects.GetStreetSegmentsInCells(tx, cells)
		if err != nil {
			h.log.Println("MatchDisruption:", err)
		} else if len(segments) > 0 {
			return segments
		}
	}

	if cached, found := h.reference.Get(referenceCacheKey); found {
		return cached.([]*dataobjects.StreetSegment)
	}
	segments, err := dataobjects.GetStreetSegments(tx)
	if err != nil {
		h.log.Println("MatchDisruption:", err)
		return nil
	}
	h.reference.Set(referenceCacheKey, segments, cache.DefaultExpiration)
	return segments
}

// bestMatch scores every extracted street name candidate against the
// reference segments and keeps the most confident result
func (h *MatchHandler) bestMatch(disruption *dataobjects.Disruption,
	segments []*dataobjects.StreetSegment) (matcher.Match, *dataobjects.StreetSegment) {
	best := matcher.Match{Type: matcher.MatchTypeNone}
	var bestSegment *dataobjects.StreetSegment
	if len(segments) == 0 {
		return best, nil
	}

	names := make([]string, len(segments))
	byNormalized := make(map[string]*dataobjects.StreetSegment, len(segments))
	for i, segment := range segments {
		names[i] = segment.Name
		if _, taken := byNormalized[segment.NormalizedName]; !taken {
			byNormalized[segment.NormalizedName] = segment
		}
	}

	candidates := matcher.ExtractStreetNames(disruption.Title + " " + disruption.Description)
	for _, candidate := range candidates {
		match := matcher.FindBestMatch(candidate, names, h.MaxFuzzyDistance)
		if match.Type == matcher.MatchTypeNone {
			continue
		}
		if match.Confidence > best.Confidence ||
			(match.Type == matcher.MatchTypeExact && best.Type != matcher.MatchTypeExact) {
			best = match
			bestSegment = byNormalized[matcher.NormalizeStreetName(match.Name)]
		}
	}
	return best, bestSegment
}
