// Package models defines core data structures for detections, retrieval, prompts and reports.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// UnknownLabel is used for detections that arrive without a class label.
const UnknownLabel = "unknown"

// BBox is a pixel-space bounding box with (X1, Y1) the top-left corner.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the absolute pixel width.
func (b BBox) Width() float64 { return math.Abs(b.X2 - b.X1) }

// Height returns the absolute pixel height.
func (b BBox) Height() float64 { return math.Abs(b.Y2 - b.Y1) }

// UnmarshalJSON accepts {x1,y1,x2,y2}, {x,y,width,height} or [x1,y1,x2,y2].
func (b *BBox) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var arr []float64
		if err := json.Unmarshal(data, &arr); err != nil {
			return fmt.Errorf("bbox array: %w", err)
		}
		if len(arr) != 4 {
			return fmt.Errorf("bbox array: expected 4 values, got %d", len(arr))
		}
		*b = BBox{X1: arr[0], Y1: arr[1], X2: arr[2], Y2: arr[3]}
		return nil
	}
	var obj struct {
		X1, Y1, X2, Y2 *float64
		X              *float64 `json:"x"`
		Y              *float64 `json:"y"`
		Width          *float64 `json:"width"`
		Height         *float64 `json:"height"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("bbox object: %w", err)
	}
	switch {
	case obj.X1 != nil && obj.Y1 != nil && obj.X2 != nil && obj.Y2 != nil:
		*b = BBox{X1: *obj.X1, Y1: *obj.Y1, X2: *obj.X2, Y2: *obj.Y2}
	case obj.X != nil && obj.Y != nil && obj.Width != nil && obj.Height != nil:
		*b = BBox{X1: *obj.X, Y1: *obj.Y, X2: *obj.X + *obj.Width, Y2: *obj.Y + *obj.Height}
	default:
		return errors.New("bbox: incomplete coordinates")
	}
	return nil
}

// GeoPoint is an explicit geocoordinate supplied by the detection service.
type GeoPoint struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// DetectionRaw is one detection as reported by the detection service.
// BBox and Geo are nil when absent from the payload.
type DetectionRaw struct {
	Label      string
	Confidence float64
	BBox       *BBox
	Geo        *GeoPoint
}

// UnmarshalJSON reads the label from label, class_name or class (first non-empty wins)
// and the coordinate from lat/lon or latitude/longitude.
func (d *DetectionRaw) UnmarshalJSON(data []byte) error {
	var raw struct {
		Label      string   `json:"label"`
		ClassName  string   `json:"class_name"`
		Class      string   `json:"class"`
		Confidence *float64 `json:"confidence"`
		BBox       *BBox    `json:"bbox"`
		Lat        *float64 `json:"lat"`
		Lon        *float64 `json:"lon"`
		Latitude   *float64 `json:"latitude"`
		Longitude  *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = DetectionRaw{BBox: raw.BBox}
	for _, l := range []string{raw.Label, raw.ClassName, raw.Class} {
		if l != "" {
			d.Label = l
			break
		}
	}
	if raw.Confidence != nil {
		d.Confidence = *raw.Confidence
	}
	switch {
	case raw.Lat != nil && raw.Lon != nil:
		d.Geo = &GeoPoint{Lon: *raw.Lon, Lat: *raw.Lat}
	case raw.Latitude != nil && raw.Longitude != nil:
		d.Geo = &GeoPoint{Lon: *raw.Longitude, Lat: *raw.Latitude}
	}
	return nil
}
