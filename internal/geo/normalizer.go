package geo

import (
	"encoding/json"
	"math"

	"github.com/hyperjump/geoint/internal/models"
)

// Normalizer converts detection-service payloads into GeoFeatures.
type Normalizer struct {
	projection Projection
}

// NewNormalizer returns a normalizer using projection for detections without coordinates.
func NewNormalizer(projection Projection) *Normalizer {
	return &Normalizer{projection: projection}
}

// Normalize decodes {"detections":[...]} and returns one feature per placeable detection,
// in input order. It never fails: an absent or malformed payload yields an empty slice,
// and detections that fail to decode or lack a bounding box are dropped.
func (n *Normalizer) Normalize(payload []byte) []models.GeoFeature {
	features := []models.GeoFeature{}
	if len(payload) == 0 {
		return features
	}
	var envelope struct {
		Detections []json.RawMessage `json:"detections"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return features
	}
	for _, raw := range envelope.Detections {
		var d models.DetectionRaw
		if err := json.Unmarshal(raw, &d); err != nil {
			continue
		}
		if f, ok := n.Feature(d); ok {
			features = append(features, f)
		}
	}
	return features
}

// Feature places a single detection. It returns false when the detection has no box.
func (n *Normalizer) Feature(d models.DetectionRaw) (models.GeoFeature, bool) {
	if d.BBox == nil {
		return models.GeoFeature{}, false
	}
	box := *d.BBox

	var lon, lat float64
	projected := d.Geo == nil
	if projected {
		lon, lat = n.projection.Point(box.X1, box.Y1)
	} else {
		lon, lat = d.Geo.Lon, d.Geo.Lat
	}
	halfW, halfH := n.projection.HalfExtent(box.Width(), box.Height())

	label := d.Label
	if label == "" {
		label = models.UnknownLabel
	}
	return models.GeoFeature{
		Label:      label,
		Confidence: clampConfidence(d.Confidence),
		Ring:       rectangle(lon, lat, halfW, halfH),
		BBox:       box,
		Projected:  projected,
	}, true
}

// rectangle returns a closed counter-clockwise ring centered on (lon, lat).
func rectangle(lon, lat, halfW, halfH float64) []models.Position {
	sw := models.Position{lon - halfW, lat - halfH}
	return []models.Position{
		sw,
		{lon + halfW, lat - halfH},
		{lon + halfW, lat + halfH},
		{lon - halfW, lat + halfH},
		sw,
	}
}

func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c) || math.IsInf(c, 0):
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
