package models

import (
	"encoding/json"
	"errors"
)

// FeatureCollectionType is the fixed type tag of the feature-collection envelope.
const FeatureCollectionType = "FeatureCollection"

// Position is a [longitude, latitude] pair.
type Position [2]float64

// Lon returns the longitude.
func (p Position) Lon() float64 { return p[0] }

// Lat returns the latitude.
func (p Position) Lat() float64 { return p[1] }

// GeoFeature is a normalized detection placed on the map as a closed polygon ring.
type GeoFeature struct {
	Label      string
	Confidence float64
	// Ring has five positions with the first repeated as the last.
	Ring      []Position
	BBox      BBox
	Projected bool
}

// Center returns the arithmetic mean of the ring's distinct vertices.
func (f GeoFeature) Center() (lon, lat float64) {
	pts := f.Ring
	if n := len(pts); n > 1 && pts[0] == pts[n-1] {
		pts = pts[:n-1]
	}
	if len(pts) == 0 {
		return 0, 0
	}
	for _, p := range pts {
		lon += p.Lon()
		lat += p.Lat()
	}
	n := float64(len(pts))
	return lon / n, lat / n
}

type featureJSON struct {
	Type       string           `json:"type"`
	Geometry   geometryJSON     `json:"geometry"`
	Properties featurePropsJSON `json:"properties"`
}

type geometryJSON struct {
	Type        string       `json:"type"`
	Coordinates [][]Position `json:"coordinates"`
}

type featurePropsJSON struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
	Projected  bool    `json:"projected"`
}

// MarshalJSON renders the feature as a GeoJSON Feature with Polygon geometry.
func (f GeoFeature) MarshalJSON() ([]byte, error) {
	ring := f.Ring
	if ring == nil {
		ring = []Position{}
	}
	return json.Marshal(featureJSON{
		Type:     "Feature",
		Geometry: geometryJSON{Type: "Polygon", Coordinates: [][]Position{ring}},
		Properties: featurePropsJSON{
			Label:      f.Label,
			Confidence: f.Confidence,
			BBox:       f.BBox,
			Projected:  f.Projected,
		},
	})
}

// UnmarshalJSON reads a GeoJSON Feature written by MarshalJSON.
func (f *GeoFeature) UnmarshalJSON(data []byte) error {
	var fj featureJSON
	if err := json.Unmarshal(data, &fj); err != nil {
		return err
	}
	if fj.Geometry.Type != "Polygon" {
		return errors.New("feature geometry is not a polygon")
	}
	*f = GeoFeature{
		Label:      fj.Properties.Label,
		Confidence: fj.Properties.Confidence,
		BBox:       fj.Properties.BBox,
		Projected:  fj.Properties.Projected,
	}
	if len(fj.Geometry.Coordinates) > 0 {
		f.Ring = fj.Geometry.Coordinates[0]
	}
	return nil
}

// FeatureCollection is the envelope returned for the latest detections.
type FeatureCollection struct {
	Type     string       `json:"type"`
	Features []GeoFeature `json:"features"`
}

// NewFeatureCollection wraps features; a nil slice becomes empty.
func NewFeatureCollection(features []GeoFeature) FeatureCollection {
	if features == nil {
		features = []GeoFeature{}
	}
	return FeatureCollection{Type: FeatureCollectionType, Features: features}
}

// Len returns the number of features.
func (c FeatureCollection) Len() int { return len(c.Features) }
