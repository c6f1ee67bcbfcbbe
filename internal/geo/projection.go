// Package geo turns raw detector output into map features.
package geo

import "github.com/hyperjump/geoint/internal/config"

// Projection is a linear pixel to lon/lat mapping around a fixed origin. It is a
// local-tangent-plane approximation, not a georeferencing transform.
type Projection struct {
	OriginLon      float64
	OriginLat      float64
	CenterX        float64
	CenterY        float64
	ScaleX         float64
	ScaleY         float64
	FootprintScale float64
}

// NewProjection builds a Projection from config. Unset fields read as zero, so
// callers pass a config that has been through config.ApplyDefaults.
func NewProjection(cfg config.ProjectionConfig) Projection {
	return Projection{
		OriginLon:      value(cfg.OriginLon),
		OriginLat:      value(cfg.OriginLat),
		CenterX:        value(cfg.CenterX),
		CenterY:        value(cfg.CenterY),
		ScaleX:         value(cfg.ScaleX),
		ScaleY:         value(cfg.ScaleY),
		FootprintScale: value(cfg.FootprintScale),
	}
}

func value(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// Point projects the pixel (x, y).
func (p Projection) Point(x, y float64) (lon, lat float64) {
	return p.OriginLon + (x-p.CenterX)*p.ScaleX, p.OriginLat + (y-p.CenterY)*p.ScaleY
}

// HalfExtent returns the half-width and half-height in degrees for a pixel box size.
func (p Projection) HalfExtent(width, height float64) (halfW, halfH float64) {
	return width * p.FootprintScale / 2, height * p.FootprintScale / 2
}
