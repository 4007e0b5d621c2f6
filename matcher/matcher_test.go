package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractStreetNames(t *testing.T) {
	names := ExtractStreetNames("Major watermain repairs on Bloor Street West near Jane")
	assert.Equal(t, []string{"Bloor St W"}, names)
}

func TestExtractStreetNamesMultiple(t *testing.T) {
	names := ExtractStreetNames(
		"Lane closures on Dundas Street West between Ossington Avenue and Dovercourt Road")
	assert.Equal(t, []string{"Dundas St W", "Ossington Ave", "Dovercourt Rd"}, names)
}

func TestExtractStreetNamesMultiWord(t *testing.T) {
	names := ExtractStreetNames("Streetcar diversion via St Clair Avenue West")
	assert.Equal(t, []string{"St Clair Ave W"}, names)
}

func TestExtractStreetNamesDistinct(t *testing.T) {
	names := ExtractStreetNames("Yonge Street closed. Yonge Street reopens Monday.")
	assert.Equal(t, []string{"Yonge St"}, names)
}

func TestExtractStreetNamesSkipsStopWords(t *testing.T) {
	names := ExtractStreetNames("The City Road crews remain on site")
	assert.Empty(t, names)
}

func TestExtractStreetNamesNoCandidates(t *testing.T) {
	assert.Empty(t, ExtractStreetNames("Service has resumed to normal levels"))
	assert.Empty(t, ExtractStreetNames(""))
}

func TestNormalizeStreetName(t *testing.T) {
	assert.Equal(t, "bloor st w", NormalizeStreetName("Bloor Street West"))
	assert.Equal(t, "bloor st w", NormalizeStreetName("  Bloor St. W  "))
	assert.Equal(t, "queens quay e", NormalizeStreetName("Queens Quay East"))
	assert.Equal(t, "roncesvalles ave", NormalizeStreetName("Roncesvalles Avenue"))
}

func TestNormalizeStreetNameIdempotent(t *testing.T) {
	inputs := []string{
		"Bloor Street West",
		"bloor st w",
		"ST CLAIR AVENUE WEST",
		"Gerrard   Street  East",
		"Chemin Étienne Boulevard",
	}
	for _, input := range inputs {
		once := NormalizeStreetName(input)
		assert.Equal(t, once, NormalizeStreetName(once), "input %q", input)
	}
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, LevenshteinDistance("bloor st w", "bloor st w"))
	assert.Equal(t, 3, LevenshteinDistance("kitten", "sitting"))
	assert.Equal(t, 5, LevenshteinDistance("", "bloor"))
	assert.Equal(t, 5, LevenshteinDistance("bloor", ""))
	assert.Equal(t, 1, LevenshteinDistance("bloor st", "bloor rt"))
}

func TestFindBestMatchExact(t *testing.T) {
	match := FindBestMatch("Bloor St W",
		[]string{"Bloor Street West", "Dundas Street West"}, 3)
	assert.Equal(t, MatchTypeExact, match.Type)
	assert.Equal(t, "Bloor Street West", match.Name)
	assert.Equal(t, 0, match.Distance)
	assert.Equal(t, 1.0, match.Confidence)
}

func TestFindBestMatchExactPrecedence(t *testing.T) {
	// "bloor st e" is one edit from the input but "Bloor Street West"
	// normalizes to an exact match and must win regardless of order
	match := FindBestMatch("Bloor St W",
		[]string{"Bloor St E", "Bloor Street West"}, 3)
	assert.Equal(t, MatchTypeExact, match.Type)
	assert.Equal(t, "Bloor Street West", match.Name)
}

func TestFindBestMatchFuzzy(t *testing.T) {
	match := FindBestMatch("Bloor St E",
		[]string{"Dundas Street West", "Bloor Street West"}, 3)
	assert.Equal(t, MatchTypeFuzzy, match.Type)
	assert.Equal(t, "Bloor Street West", match.Name)
	assert.Equal(t, 1, match.Distance)
	assert.InDelta(t, 0.9, match.Confidence, 1e-9)
}

func TestFindBestMatchFuzzyTieBreak(t *testing.T) {
	// both candidates are at distance 1; the first one encountered wins
	match := FindBestMatch("King Sq", []string{"Kings Sq", "Kin Sq"}, 3)
	assert.Equal(t, MatchTypeFuzzy, match.Type)
	assert.Equal(t, "Kings Sq", match.Name)
}

func TestFindBestMatchConfidenceStaysInRange(t *testing.T) {
	// a threshold above 10 edits would push 1 - distance/10 below zero
	distance := LevenshteinDistance("king st", "roncesvalles ave")
	assert.Greater(t, distance, 10)

	match := FindBestMatch("King St", []string{"Roncesvalles Ave"}, 15)
	assert.Equal(t, MatchTypeFuzzy, match.Type)
	assert.GreaterOrEqual(t, match.Confidence, 0.0)
	assert.LessOrEqual(t, match.Confidence, 1.0)
}

func TestFindBestMatchNone(t *testing.T) {
	match := FindBestMatch("Bloor St W", []string{"Roncesvalles Ave"}, 3)
	assert.Equal(t, MatchTypeNone, match.Type)
	assert.Empty(t, match.Name)
	assert.Zero(t, match.Confidence)
}

func TestFindBestMatchEmptyReference(t *testing.T) {
	match := FindBestMatch("Bloor St W", nil, 3)
	assert.Equal(t, MatchTypeNone, match.Type)
	assert.Zero(t, match.Confidence)
}
