package models

import (
	"encoding/json"
	"time"
)

// Image is an uploaded image forwarded to the upstream services.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// DetectResponse is returned by the detect endpoint.
type DetectResponse struct {
	Detections json.RawMessage   `json:"detections"`
	GeoJSON    FeatureCollection `json:"geojson"`
	Count      int               `json:"count"`
}

// PipelineResponse is returned by the combined pipeline. A failed half is null.
type PipelineResponse struct {
	Detections json.RawMessage    `json:"detections"`
	GeoJSON    *FeatureCollection `json:"geojson"`
	Analysis   json.RawMessage    `json:"analysis"`
}

// SummaryResponse is returned by the detection summary endpoint.
type SummaryResponse struct {
	Summary string `json:"summary"`
	Count   int    `json:"count"`
}

// ServiceHealth is the liveness of one upstream.
type ServiceHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// StatusResponse describes the running service.
type StatusResponse struct {
	Services         map[string]ServiceHealth `json:"services"`
	RetrievalBackend string                   `json:"retrieval_backend"`
	Reports          int                      `json:"reports"`
	Chunks           int                      `json:"chunks"`
	StorageBytes     int64                    `json:"storage_bytes"`
	Detections       int                      `json:"detections"`
	DetectionsAt     *time.Time               `json:"detections_updated_at,omitempty"`
}
