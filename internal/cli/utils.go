// Package cli provides output and HTTP helpers for the geoint command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/geoint/internal/models"
	"github.com/hyperjump/geoint/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteChat writes a chat answer with its cited sources.
func WriteChat(w io.Writer, resp *models.ChatResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	fmt.Fprintf(w, "%s\n", strings.TrimSpace(resp.Response))
	if len(resp.Sources) > 0 {
		fmt.Fprintf(w, "\n--- Sources ---\n")
		for i, src := range resp.Sources {
			fmt.Fprintf(w, "[Source %d] %s\n", i+1, sourceLabel(src))
			fmt.Fprintf(w, "  %s\n", TruncateWords(src.Text, 30))
		}
	}
	if len(resp.Detections) > 0 {
		fmt.Fprintf(w, "\n%d detection(s) in context\n", len(resp.Detections))
	}
	return nil
}

// WriteDetections writes a feature collection, one detection per line in text mode.
func WriteDetections(w io.Writer, fc models.FeatureCollection, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, fc)
	}
	if fc.Len() == 0 {
		fmt.Fprintln(w, "No detections.")
		return nil
	}
	fmt.Fprintf(w, "%d detection(s)\n", fc.Len())
	for i, f := range fc.Features {
		writeFeature(w, i+1, f)
	}
	return nil
}

// WriteDetect writes the result of a detect call.
func WriteDetect(w io.Writer, resp *models.DetectResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, resp)
	}
	fmt.Fprintf(w, "Detector reported %d object(s), %d placed on the map\n", resp.Count, resp.GeoJSON.Len())
	for i, f := range resp.GeoJSON.Features {
		writeFeature(w, i+1, f)
	}
	return nil
}

// WriteStatus writes service health and storage counts.
func WriteStatus(w io.Writer, st *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, st)
	}
	names := make([]string, 0, len(st.Services))
	for name := range st.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h := st.Services[name]
		if h.Error != "" {
			fmt.Fprintf(w, "%-18s %s (%s)\n", name+":", h.Status, h.Error)
			continue
		}
		fmt.Fprintf(w, "%-18s %s\n", name+":", h.Status)
	}
	fmt.Fprintf(w, "%-18s %s\n", "retrieval:", st.RetrievalBackend)
	fmt.Fprintf(w, "%-18s %d   # ingested reports\n", "reports:", st.Reports)
	fmt.Fprintf(w, "%-18s %d   # report chunks\n", "chunks:", st.Chunks)
	fmt.Fprintf(w, "%-18s %d   # indices on disk\n", "storage_bytes:", st.StorageBytes)
	fmt.Fprintf(w, "%-18s %d\n", "detections:", st.Detections)
	if st.DetectionsAt != nil {
		fmt.Fprintf(w, "%-18s %s\n", "detections_at:", st.DetectionsAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// WriteIngestResults writes one line per ingested report.
func WriteIngestResults(w io.Writer, results []models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		if results == nil {
			results = []models.IngestResult{}
		}
		return WriteJSON(w, results)
	}
	chunks := 0
	for _, r := range results {
		fmt.Fprintf(w, "%s  %d chunk(s)\n", r.ReportID, r.Chunks)
		chunks += r.Chunks
	}
	fmt.Fprintf(w, "Ingested %d report(s), %d chunk(s)\n", len(results), chunks)
	return nil
}

func writeFeature(w io.Writer, n int, f models.GeoFeature) {
	lon, lat := f.Center()
	fmt.Fprintf(w, "%3d. %-16s %5.1f%%  lon=%.6f lat=%.6f\n", n, f.Label, f.Confidence*100, lon, lat)
}

func sourceLabel(s models.ContextSnippet) string {
	for _, key := range []string{"source_file", "report_id"} {
		if v, ok := s.Metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return s.ID
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	return utils.Truncate(s, maxLen)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
