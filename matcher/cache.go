package matcher

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/SaidinWoT/timespan"
)

// CachedMatch is a previously computed street match as stored alongside a
// disruption
type CachedMatch struct {
	MatchedName string
	Hash        string
	MatchedAt   time.Time
}

// ComputeMatchHash fingerprints the text a street match was computed from.
// Any visible change to title or description produces a different hash.
func ComputeMatchHash(title string, description string) string {
	content := strings.ToLower(strings.TrimSpace(title)) + "|" +
		strings.ToLower(strings.TrimSpace(description))
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// CanUseCachedMatch reports whether a previously computed match can be
// reused for the current title and description. It requires a recorded
// matched name, an unchanged content hash, and an age within maxAge; the age
// bound guards against staleness after the reference geometry is refreshed.
func CanUseCachedMatch(cached CachedMatch, title string, description string, maxAge time.Duration) bool {
	if cached.MatchedName == "" {
		return false
	}
	if cached.Hash != ComputeMatchHash(title, description) {
		return false
	}
	validSpan := timespan.New(cached.MatchedAt, maxAge)
	return validSpan.ContainsTime(time.Now())
}
