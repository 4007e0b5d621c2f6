package dataobjects

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeContentHashDeterministic(t *testing.T) {
	a := ComputeContentHash("road", "major", "Bloor St W closed", "watermain break")
	b := ComputeContentHash("road", "major", "Bloor St W closed", "watermain break")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestComputeContentHashNormalizes(t *testing.T) {
	a := ComputeContentHash("road", "major", "Bloor St W closed", "watermain break")
	b := ComputeContentHash(" Road ", "MAJOR", "  Bloor St W closed", "Watermain Break ")
	assert.Equal(t, a, b)
}

func TestComputeContentHashFieldSensitivity(t *testing.T) {
	base := ComputeContentHash("road", "major", "Bloor St W closed", "watermain break")
	assert.NotEqual(t, base, ComputeContentHash("transit", "major", "Bloor St W closed", "watermain break"))
	assert.NotEqual(t, base, ComputeContentHash("road", "minor", "Bloor St W closed", "watermain break"))
	assert.NotEqual(t, base, ComputeContentHash("road", "major", "Bloor St E closed", "watermain break"))
	assert.NotEqual(t, base, ComputeContentHash("road", "major", "Bloor St W closed", ""))
}

func TestComputeContentHashFieldBoundaries(t *testing.T) {
	// content is joined with a separator, so shifting text between fields
	// must change the hash
	assert.NotEqual(t,
		ComputeContentHash("road", "major", "Bloor St W", "closed"),
		ComputeContentHash("road", "major", "Bloor St W closed", ""))
}
