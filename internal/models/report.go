package models

// ReportChunk is a window of an ingested intelligence report.
type ReportChunk struct {
	ID         string         `json:"id"`
	ReportID   string         `json:"report_id"`
	Content    string         `json:"content"`
	ChunkIndex int            `json:"chunk_index"`
	Metadata   map[string]any `json:"metadata"`
}

// ReportInput is the body of the report ingest endpoint.
type ReportInput struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// IngestResult summarizes one ingest call.
type IngestResult struct {
	ReportID string `json:"report_id"`
	Chunks   int    `json:"chunks"`
}
