// Package matcher extracts candidate street names from free-form disruption
// text and scores them against the centreline reference names.
package matcher

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	altmath "github.com/pkg/math"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MatchType classifies how a disruption was linked to a street name
type MatchType string

const (
	// MatchTypeExact means the normalized names were identical
	MatchTypeExact MatchType = "exact"
	// MatchTypeFuzzy means the names were within the edit distance threshold
	MatchTypeFuzzy MatchType = "fuzzy"
	// MatchTypeNone means no reference name was close enough
	MatchTypeNone MatchType = "none"
)

// Match is the result of scoring a name against the reference list
type Match struct {
	Name       string
	Type       MatchType
	Distance   int
	Confidence float64
}

// streetTypes maps every recognized street type spelling (lowercased) to the
// abbreviated convention used by the centreline reference data
var streetTypes = map[string]string{
	"street": "St", "st": "St",
	"avenue": "Ave", "ave": "Ave", "av": "Ave",
	"road": "Rd", "rd": "Rd",
	"boulevard": "Blvd", "blvd": "Blvd",
	"drive": "Dr", "dr": "Dr",
	"lane": "Ln", "ln": "Ln",
	"court": "Crt", "crt": "Crt", "ct": "Crt",
	"crescent": "Cres", "cres": "Cres",
	"circle": "Cir", "cir": "Cir",
	"place": "Pl", "pl": "Pl",
	"square": "Sq", "sq": "Sq",
	"terrace": "Ter", "ter": "Ter",
	"trail": "Trl", "trl": "Trl",
	"parkway": "Pkwy", "pkwy": "Pkwy",
	"gardens": "Gdns", "gdns": "Gdns",
	"grove": "Grv", "grv": "Grv",
	"highway": "Hwy", "hwy": "Hwy",
	"gate":  "Gt",
	"way":   "Way",
	"line":  "Line",
	"quay":  "Quay",
	"mews":  "Mews",
	"path":  "Path",
	"green": "Grn", "grn": "Grn",
	"heights": "Hts", "hts": "Hts",
}

// directions maps direction spellings (lowercased) to their single-letter form
var directions = map[string]string{
	"north": "N", "n": "N",
	"south": "S", "s": "S",
	"east": "E", "e": "E",
	"west": "W", "w": "W",
}

// stopWords are capitalized words that frequently precede a street type in
// disruption text without being part of a street name
var stopWords = map[string]bool{
	"the":          true,
	"major":        true,
	"minor":        true,
	"watermain":    true,
	"emergency":    true,
	"planned":      true,
	"ongoing":      true,
	"construction": true,
	"maintenance":  true,
	"expect":       true,
	"city":         true,
	"toronto":      true,
	"ttc":          true,
	"metrolinx":    true,
	"go":           true,
	"new":          true,
	"full":         true,
	"partial":      true,
	"southbound":   true,
	"northbound":   true,
	"eastbound":    true,
	"westbound":    true,
}

var (
	streetNameRegexp = buildStreetNameRegexp()
	asciiFolder      = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

func buildStreetNameRegexp() *regexp.Regexp {
	suffixes := make([]string, 0, len(streetTypes))
	for spelling := range streetTypes {
		suffixes = append(suffixes, strings.ToUpper(spelling[:1])+spelling[1:])
	}
	// longest alternatives first so "Street" is not cut short at "St"
	sort.Slice(suffixes, func(i, j int) bool {
		return len(suffixes[i]) > len(suffixes[j])
	})
	return regexp.MustCompile(
		`\b([A-Z][a-z']+(?: [A-Z][a-z']+){0,2}) (` + strings.Join(suffixes, "|") + `)\b\.?` +
			`(?: (North|South|East|West|N|S|E|W)\b)?`)
}

// ExtractStreetNames scans free text for street name candidates of the form
// one to three capitalized words followed by a street type and an optional
// direction, skipping common non-street capitalized words. Candidates are
// returned in the reference data's abbreviated form ("Bloor St W"), distinct,
// in order of first occurrence.
func ExtractStreetNames(text string) []string {
	names := []string{}
	seen := map[string]bool{}
	for _, m := range streetNameRegexp.FindAllStringSubmatch(text, -1) {
		words := strings.Fields(m[1])
		for len(words) > 0 && stopWords[strings.ToLower(words[0])] {
			words = words[1:]
		}
		if len(words) == 0 {
			continue
		}
		name := strings.Join(words, " ") + " " + streetTypes[strings.ToLower(m[2])]
		if m[3] != "" {
			name += " " + directions[strings.ToLower(m[3])]
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// NormalizeStreetName lowercases and trims a street name and rewrites street
// types and directions to the abbreviated convention of the reference data.
// Normalization is idempotent.
func NormalizeStreetName(name string) string {
	folded, _, err := transform.String(asciiFolder, name)
	if err != nil {
		folded = name
	}
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(folded)))
	for i, token := range tokens {
		token = strings.TrimRight(token, ".")
		if abbr, ok := streetTypes[token]; ok {
			token = strings.ToLower(abbr)
		} else if abbr, ok := directions[token]; ok {
			token = strings.ToLower(abbr)
		}
		tokens[i] = token
	}
	// strings.Fields already collapsed runs of whitespace
	return strings.Join(tokens, " ")
}

// LevenshteinDistance returns the edit distance between a and b, counting
// insertions, deletions and substitutions as unit cost.
func LevenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = altmath.Min(prev[j-1]+cost, altmath.Min(prev[j]+1, curr[j-1]+1))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// FindBestMatch scores name against every reference name. A normalized exact
// match wins immediately with confidence 1.0. Otherwise the reference name
// with the minimum edit distance wins if the distance is within
// maxFuzzyDistance, with confidence 1 - distance/10; ties go to the first
// reference name reaching the minimum. Beyond the threshold the result is a
// non-match with confidence 0.
func FindBestMatch(name string, referenceNames []string, maxFuzzyDistance int) Match {
	normalized := NormalizeStreetName(name)

	for _, ref := range referenceNames {
		if NormalizeStreetName(ref) == normalized {
			return Match{
				Name:       ref,
				Type:       MatchTypeExact,
				Distance:   0,
				Confidence: 1.0,
			}
		}
	}

	best := Match{Type: MatchTypeNone, Distance: -1}
	for _, ref := range referenceNames {
		distance := LevenshteinDistance(normalized, NormalizeStreetName(ref))
		if best.Distance < 0 || distance < best.Distance {
			best.Name = ref
			best.Distance = distance
		}
	}
	if best.Distance < 0 || best.Distance > maxFuzzyDistance {
		return Match{Type: MatchTypeNone, Distance: best.Distance, Confidence: 0}
	}
	best.Type = MatchTypeFuzzy
	best.Confidence = 1 - float64(best.Distance)/10
	// the floor stays within [0, 1] even for thresholds above 10 edits
	floor := 1 - float64(maxFuzzyDistance)/10
	if floor < 0 {
		floor = 0
	}
	if best.Confidence < floor {
		best.Confidence = floor
	}
	return best
}
