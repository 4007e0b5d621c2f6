// Package geohash implements base-32 geohash encoding and decoding, plus
// neighbor cell lookup for proximity queries without a spatial index.
package geohash

import (
	"fmt"
	"strings"
)

const alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// Box is the bounding box of a geohash cell
type Box struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// Center returns the centroid of the box
func (b Box) Center() (lat float64, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Height returns the latitude span of the box
func (b Box) Height() float64 {
	return b.MaxLat - b.MinLat
}

// Width returns the longitude span of the box
func (b Box) Width() float64 {
	return b.MaxLon - b.MinLon
}

// Encode returns the geohash of the given coordinates with the given
// precision (number of base-32 characters). Longitude is bisected first,
// as in the original geohash scheme.
func Encode(lat float64, lon float64, precision int) string {
	var sb strings.Builder
	minLat, maxLat := -90.0, 90.0
	minLon, maxLon := -180.0, 180.0
	bits := 0
	ch := 0
	even := true

	for sb.Len() < precision {
		if even {
			mid := (minLon + maxLon) / 2
			if lon >= mid {
				ch = ch<<1 | 1
				minLon = mid
			} else {
				ch = ch << 1
				maxLon = mid
			}
		} else {
			mid := (minLat + maxLat) / 2
			if lat >= mid {
				ch = ch<<1 | 1
				minLat = mid
			} else {
				ch = ch << 1
				maxLat = mid
			}
		}
		even = !even
		bits++
		if bits == 5 {
			sb.WriteByte(alphabet[ch])
			bits = 0
			ch = 0
		}
	}
	return sb.String()
}

// Decode returns the bounding box of the cell identified by hash.
// It fails if hash contains characters outside the base-32 alphabet.
func Decode(hash string) (Box, error) {
	box := Box{
		MinLat: -90, MaxLat: 90,
		MinLon: -180, MaxLon: 180,
	}
	even := true
	for _, c := range strings.ToLower(hash) {
		idx := strings.IndexRune(alphabet, c)
		if idx < 0 {
			return Box{}, fmt.Errorf("Decode: invalid geohash character %q in %q", c, hash)
		}
		for bit := 4; bit >= 0; bit-- {
			set := idx>>uint(bit)&1 == 1
			if even {
				mid := (box.MinLon + box.MaxLon) / 2
				if set {
					box.MinLon = mid
				} else {
					box.MaxLon = mid
				}
			} else {
				mid := (box.MinLat + box.MaxLat) / 2
				if set {
					box.MinLat = mid
				} else {
					box.MaxLat = mid
				}
			}
			even = !even
		}
	}
	return box, nil
}

// Neighbors returns the up to 8 cells adjacent to hash at the same
// precision. Cells that collapse onto hash itself (possible near the poles)
// or onto each other are deduplicated.
func Neighbors(hash string) ([]string, error) {
	box, err := Decode(hash)
	if err != nil {
		return nil, err
	}
	lat, lon := box.Center()
	height, width := box.Height(), box.Width()

	neighbors := []string{}
	seen := map[string]bool{hash: true}
	for _, dLat := range []float64{height, 0, -height} {
		for _, dLon := range []float64{-width, 0, width} {
			if dLat == 0 && dLon == 0 {
				continue
			}
			nLat := lat + dLat
			nLon := lon + dLon
			if nLat > 90 || nLat < -90 {
				continue
			}
			// wrap around the antimeridian
			if nLon > 180 {
				nLon -= 360
			} else if nLon < -180 {
				nLon += 360
			}
			cell := Encode(nLat, nLon, len(hash))
			if !seen[cell] {
				seen[cell] = true
				neighbors = append(neighbors, cell)
			}
		}
	}
	return neighbors, nil
}

// WithNeighbors returns the cell containing the given coordinates followed
// by its neighbors, for use in range queries over geohash-indexed rows.
func WithNeighbors(lat float64, lon float64, precision int) []string {
	cell := Encode(lat, lon, precision)
	neighbors, _ := Neighbors(cell)
	return append([]string{cell}, neighbors...)
}
