// Package centreline loads the street centreline shapefile into the
// reference street segment set used by the matching stage.
package centreline

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	shp "github.com/jonas-p/go-shp"
	geom "github.com/twpayne/go-geom"

	"github.com/gbl08ma/sqalx"
	"github.com/opencivic/disruptionsto/dataobjects"
	"github.com/opencivic/disruptionsto/geohash"
	"github.com/opencivic/disruptionsto/matcher"
)

// attribute names vary between centreline releases
var (
	idFieldNames   = []string{"centreline_id", "geo_id", "id"}
	nameFieldNames = []string{"linear_name_full", "lf_name", "name"}
)

// LoadShapefile parses a centreline shapefile into street segments,
// computing for each one its normalized name, centroid and geohash cell at
// the given precision. Records without a usable identifier, name or
// geometry are skipped.
func LoadShapefile(path string, geohashPrecision int) ([]*dataobjects.StreetSegment, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadShapefile: %s", err)
	}
	defer reader.Close()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	idIdx, ok := findField(fieldIdx, idFieldNames)
	if !ok {
		return nil, fmt.Errorf("LoadShapefile: no identifier field in %s", path)
	}
	nameIdx, ok := findField(fieldIdx, nameFieldNames)
	if !ok {
		return nil, fmt.Errorf("LoadShapefile: no name field in %s", path)
	}

	segments := []*dataobjects.StreetSegment{}
	for reader.Next() {
		_, shape := reader.Shape()
		polyline, ok := shape.(*shp.PolyLine)
		if !ok || len(polyline.Points) == 0 {
			continue
		}

		id, err := strconv.ParseInt(strings.TrimSpace(reader.Attribute(idIdx)), 10, 64)
		if err != nil {
			continue
		}
		name := strings.TrimSpace(reader.Attribute(nameIdx))
		if name == "" {
			continue
		}

		coords := make([]geom.Coord, len(polyline.Points))
		var sumLat, sumLon float64
		for i, point := range polyline.Points {
			coords[i] = geom.Coord{point.X, point.Y}
			sumLon += point.X
			sumLat += point.Y
		}
		lineString := geom.NewLineString(geom.XY)
		if _, err := lineString.SetCoords(coords); err != nil {
			continue
		}

		centroidLat := sumLat / float64(len(polyline.Points))
		centroidLon := sumLon / float64(len(polyline.Points))

		segments = append(segments, &dataobjects.StreetSegment{
			ID:             id,
			Name:           name,
			NormalizedName: matcher.NormalizeStreetName(name),
			Geometry:       lineString,
			CentroidLat:    centroidLat,
			CentroidLon:    centroidLon,
			Geohash:        geohash.Encode(centroidLat, centroidLon, geohashPrecision),
		})
	}
	return segments, nil
}

func findField(fieldIdx map[string]int, candidates []string) (int, bool) {
	for _, candidate := range candidates {
		if idx, ok := fieldIdx[candidate]; ok {
			return idx, true
		}
	}
	return 0, false
}

// Refresh loads the shapefile at path and swaps the stored segment set
func Refresh(node sqalx.Node, path string, geohashPrecision int, log *log.Logger) error {
	segments, err := LoadShapefile(path, geohashPrecision)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return fmt.Errorf("Refresh: centreline file %s yielded no segments", path)
	}
	log.Println("Centreline refresh loaded", len(segments), "segments")
	return dataobjects.ReplaceStreetSegments(node, segments)
}
