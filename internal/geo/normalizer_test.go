package geo

import (
	"fmt"
	"math"
	"testing"

	"github.com/hyperjump/geoint/internal/config"
	"github.com/hyperjump/geoint/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProjection = Projection{
	OriginLon:      -77.0,
	OriginLat:      38.9,
	CenterX:        320,
	CenterY:        320,
	ScaleX:         0.0001,
	ScaleY:         -0.0001,
	FootprintScale: 0.00001,
}

func assertClosedRectangle(t *testing.T, f models.GeoFeature) {
	t.Helper()
	require.Len(t, f.Ring, 5)
	assert.Equal(t, f.Ring[0], f.Ring[4], "ring must be closed")
	// Axis aligned: consecutive vertices share either lon or lat.
	for i := 0; i < 4; i++ {
		a, b := f.Ring[i], f.Ring[i+1]
		assert.True(t, a.Lon() == b.Lon() || a.Lat() == b.Lat(), "edge %d not axis aligned", i)
	}
}

func TestNormalize_WorkedExample(t *testing.T) {
	n := NewNormalizer(testProjection)
	payload := `{"detections":[{"label":"ship","confidence":0.91,"bbox":{"x1":300,"y1":220,"x2":340,"y2":260}}]}`

	features := n.Normalize([]byte(payload))

	require.Len(t, features, 1)
	f := features[0]
	assert.Equal(t, "ship", f.Label)
	assert.Equal(t, 0.91, f.Confidence)
	assert.True(t, f.Projected)
	assertClosedRectangle(t, f)

	lon, lat := f.Center()
	assert.InDelta(t, -77.0+(300-320)*0.0001, lon, 1e-9)
	assert.InDelta(t, 38.9+(220-320)*-0.0001, lat, 1e-9)

	// 40 px box -> 0.0004 deg footprint.
	assert.InDelta(t, 0.0004, f.Ring[1].Lon()-f.Ring[0].Lon(), 1e-12)
	assert.InDelta(t, 0.0004, f.Ring[2].Lat()-f.Ring[1].Lat(), 1e-12)
}

func TestNormalize_ExplicitCoordinateIsCenter(t *testing.T) {
	n := NewNormalizer(testProjection)
	for i, pt := range []models.GeoPoint{{Lon: 10, Lat: 20}, {Lon: -120.5, Lat: -33.25}, {Lon: 0, Lat: 0}} {
		t.Run(fmt.Sprintf("point %d", i), func(t *testing.T) {
			payload := fmt.Sprintf(`{"detections":[{"label":"tank","bbox":[5,5,105,55],"lat":%v,"lon":%v}]}`, pt.Lat, pt.Lon)
			features := n.Normalize([]byte(payload))
			require.Len(t, features, 1)
			assert.False(t, features[0].Projected)
			assertClosedRectangle(t, features[0])
			lon, lat := features[0].Center()
			assert.InDelta(t, pt.Lon, lon, 1e-12)
			assert.InDelta(t, pt.Lat, lat, 1e-12)
		})
	}
}

func TestNormalize_DefaultsAndDrops(t *testing.T) {
	n := NewNormalizer(testProjection)
	payload := `{"detections":[
		{"confidence":0.4,"bbox":[0,0,10,10]},
		{"label":"ship","confidence":0.9},
		{"label":"bad","bbox":"nope"},
		{"class_name":"vehicle","confidence":1.7,"bbox":[1,1,2,2]},
		{"label":"","confidence":-3,"bbox":[1,1,2,2]}
	]}`
	features := n.Normalize([]byte(payload))

	require.Len(t, features, 3)
	assert.Equal(t, models.UnknownLabel, features[0].Label)
	assert.Equal(t, "vehicle", features[1].Label)
	assert.Equal(t, 1.0, features[1].Confidence)
	assert.Equal(t, models.UnknownLabel, features[2].Label)
	assert.Equal(t, 0.0, features[2].Confidence)
}

func TestNormalize_MalformedPayloads(t *testing.T) {
	n := NewNormalizer(testProjection)
	for _, payload := range []string{
		``,
		`null`,
		`not json`,
		`{}`,
		`{"results":[{"label":"ship","bbox":[1,1,2,2]}]}`,
		`{"detections":"many"}`,
		`{"detections":null}`,
		`[1,2,3]`,
	} {
		t.Run(payload, func(t *testing.T) {
			features := n.Normalize([]byte(payload))
			assert.NotNil(t, features)
			assert.Empty(t, features)
		})
	}
}

func TestNormalize_PreservesOrder(t *testing.T) {
	n := NewNormalizer(testProjection)
	payload := `{"detections":[
		{"label":"a","bbox":[0,0,1,1]},
		{"label":"b"},
		{"label":"c","bbox":[0,0,1,1]},
		{"label":"d","bbox":[0,0,1,1]}
	]}`
	features := n.Normalize([]byte(payload))
	labels := make([]string, len(features))
	for i, f := range features {
		labels[i] = f.Label
	}
	assert.Equal(t, []string{"a", "c", "d"}, labels)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, clampConfidence(math.NaN()))
	assert.Equal(t, 0.0, clampConfidence(math.Inf(1)))
	assert.Equal(t, 0.5, clampConfidence(0.5))
}

func TestProjection_Point(t *testing.T) {
	lon, lat := testProjection.Point(320, 320)
	assert.Equal(t, -77.0, lon)
	assert.Equal(t, 38.9, lat)
}

func TestNewProjection_ZeroOriginAndCenter(t *testing.T) {
	cfg := config.Config{Projection: config.ProjectionConfig{
		OriginLon: config.Float(0),
		OriginLat: config.Float(0),
		CenterX:   config.Float(0),
		CenterY:   config.Float(0),
	}}
	config.ApplyDefaults(&cfg)
	p := NewProjection(cfg.Projection)

	lon, lat := p.Point(0, 0)
	assert.Equal(t, 0.0, lon)
	assert.Equal(t, 0.0, lat)
	assert.Equal(t, 0.0001, p.ScaleX, "unset scale takes the default")
}
