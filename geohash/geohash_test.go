package geohash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeKnownCells(t *testing.T) {
	// reference values from geohash.org
	assert.Equal(t, "ezs42", Encode(42.605, -5.603, 5))
	assert.Equal(t, "u4pruydqqvj", Encode(57.64911, 10.40744, 11))
	assert.Equal(t, "dpz83", Encode(43.6487, -79.39705, 5))
}

func TestDecodeContainsPoint(t *testing.T) {
	points := []struct {
		lat, lon float64
	}{
		{43.6487, -79.39705},
		{-33.8688, 151.2093},
		{0, 0},
		{89.9, 179.9},
		{-89.9, -179.9},
	}
	for _, p := range points {
		for precision := 1; precision <= 9; precision++ {
			box, err := Decode(Encode(p.lat, p.lon, precision))
			require.NoError(t, err)
			assert.True(t, box.MinLat <= p.lat && p.lat <= box.MaxLat)
			assert.True(t, box.MinLon <= p.lon && p.lon <= box.MaxLon)
		}
	}
}

func TestEncodePrecisionMonotonicity(t *testing.T) {
	for precision := 1; precision < 12; precision++ {
		shorter := Encode(43.6487, -79.39705, precision)
		longer := Encode(43.6487, -79.39705, precision+1)
		assert.True(t, strings.HasPrefix(longer, shorter))
	}
}

func TestDecodeInvalidCharacter(t *testing.T) {
	_, err := Decode("dpz8a") // 'a' is not in the alphabet
	require.Error(t, err)
	_, err = Decode("dpz8!")
	require.Error(t, err)
}

func TestNeighborsOfInteriorCell(t *testing.T) {
	neighbors, err := Neighbors("gbsuv")
	require.NoError(t, err)
	assert.Len(t, neighbors, 8)
	assert.NotContains(t, neighbors, "gbsuv")
	assert.ElementsMatch(t, []string{
		"gbsvh", "gbsvj", "gbsvn",
		"gbsuu", "gbsuy",
		"gbsus", "gbsut", "gbsuw",
	}, neighbors)
}

func TestNeighborsNearPole(t *testing.T) {
	cell := Encode(89.99, 0, 3)
	neighbors, err := Neighbors(cell)
	require.NoError(t, err)
	// the northern row is clipped, and remaining cells must be distinct
	assert.True(t, len(neighbors) < 8)
	assert.NotContains(t, neighbors, cell)
}

func TestWithNeighbors(t *testing.T) {
	cells := WithNeighbors(43.6487, -79.39705, 6)
	assert.Equal(t, Encode(43.6487, -79.39705, 6), cells[0])
	assert.Len(t, cells, 9)
}
