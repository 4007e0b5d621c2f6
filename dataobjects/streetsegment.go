package dataobjects

import (
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/gbl08ma/sqalx"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// StreetSegment is one centreline segment of the reference street geometry.
// Segments are read-only from the pipeline's perspective and are replaced
// wholesale by the daily refresh.
type StreetSegment struct {
	ID             int64
	Name           string
	NormalizedName string
	Geometry       *geom.LineString
	CentroidLat    float64
	CentroidLon    float64
	Geohash        string
}

// GetStreetSegments returns a slice with all registered street segments
func GetStreetSegments(node sqalx.Node) ([]*StreetSegment, error) {
	return getStreetSegmentsWithSelect(node, sdb.Select())
}

// GetStreetSegmentsInCells returns the street segments whose geohash is one
// of the given cells, typically a cell plus its neighbors
func GetStreetSegmentsInCells(node sqalx.Node, cells []string) ([]*StreetSegment, error) {
	s := sdb.Select().
		Where(sq.Eq{"geohash": cells})
	return getStreetSegmentsWithSelect(node, s)
}

// GetStreetSegmentsByNormalizedName returns the street segments carrying the
// given normalized name
func GetStreetSegmentsByNormalizedName(node sqalx.Node, normalizedName string) ([]*StreetSegment, error) {
	s := sdb.Select().
		Where(sq.Eq{"normalized_name": normalizedName})
	return getStreetSegmentsWithSelect(node, s)
}

func getStreetSegmentsWithSelect(node sqalx.Node, sbuilder sq.SelectBuilder) ([]*StreetSegment, error) {
	segments := []*StreetSegment{}

	tx, err := node.Beginx()
	if err != nil {
		return segments, err
	}
	defer tx.Commit() // read-only tx

	rows, err := sbuilder.Columns("id", "name", "normalized_name", "geometry",
		"centroid_lat", "centroid_lon", "geohash").
		From("street_segment").
		RunWith(tx).Query()
	if err != nil {
		return segments, fmt.Errorf("getStreetSegmentsWithSelect: %s", err)
	}
	defer rows.Close()

	for rows.Next() {
		var segment StreetSegment
		var geometry []byte
		err := rows.Scan(
			&segment.ID,
			&segment.Name,
			&segment.NormalizedName,
			&geometry,
			&segment.CentroidLat,
			&segment.CentroidLon,
			&segment.Geohash)
		if err != nil {
			return segments, fmt.Errorf("getStreetSegmentsWithSelect: %s", err)
		}
		if len(geometry) > 0 {
			var g geom.T
			if err := geojson.Unmarshal(geometry, &g); err != nil {
				return segments, fmt.Errorf("getStreetSegmentsWithSelect: %s", err)
			}
			if ls, ok := g.(*geom.LineString); ok {
				segment.Geometry = ls
			}
		}
		segments = append(segments, &segment)
	}
	if err := rows.Err(); err != nil {
		return segments, fmt.Errorf("getStreetSegmentsWithSelect: %s", err)
	}
	return segments, nil
}

// Update adds or updates the street segment
func (segment *StreetSegment) Update(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var geometry []byte
	if segment.Geometry != nil {
		geometry, err = geojson.Marshal(segment.Geometry)
		if err != nil {
			return errors.New("AddStreetSegment: " + err.Error())
		}
	}

	_, err = sdb.Insert("street_segment").
		Columns("id", "name", "normalized_name", "geometry",
			"centroid_lat", "centroid_lon", "geohash").
		Values(segment.ID, segment.Name, segment.NormalizedName, geometry,
			segment.CentroidLat, segment.CentroidLon, segment.Geohash).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = ?, normalized_name = ?, "+
			"geometry = ?, centroid_lat = ?, centroid_lon = ?, geohash = ?",
			segment.Name, segment.NormalizedName, geometry,
			segment.CentroidLat, segment.CentroidLon, segment.Geohash).
		RunWith(tx).Exec()
	if err != nil {
		return errors.New("AddStreetSegment: " + err.Error())
	}
	return tx.Commit()
}

// ReplaceStreetSegments swaps the whole reference segment set in a single
// transaction so readers never observe a partially loaded set
func ReplaceStreetSegments(node sqalx.Node, segments []*StreetSegment) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = sdb.Delete("street_segment").RunWith(tx).Exec()
	if err != nil {
		return fmt.Errorf("ReplaceStreetSegments: %s", err)
	}
	for _, segment := range segments {
		err = segment.Update(tx)
		if err != nil {
			return fmt.Errorf("ReplaceStreetSegments: %s", err)
		}
	}
	return tx.Commit()
}

// Delete deletes the street segment
func (segment *StreetSegment) Delete(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = sdb.Delete("street_segment").
		Where(sq.Eq{"id": segment.ID}).RunWith(tx).Exec()
	if err != nil {
		return fmt.Errorf("RemoveStreetSegment: %s", err)
	}
	return tx.Commit()
}
