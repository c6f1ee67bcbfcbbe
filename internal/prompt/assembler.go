// Package prompt composes the bounded system prompt for analyst chat.
package prompt

import (
	"fmt"
	"strings"

	"github.com/hyperjump/geoint/internal/config"
	"github.com/hyperjump/geoint/internal/models"
	"github.com/hyperjump/geoint/pkg/utils"
)

const (
	contextHeader    = "Relevant intelligence context:"
	detectionsHeader = "--- RECENT AI DETECTIONS ---"
	detectionsFooter = "--- END DETECTIONS ---"
)

// Assembler builds AssembledPrompts in the fixed order persona, context, detections, user.
type Assembler struct {
	persona         string
	maxSnippetChars int
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithPersona replaces the built-in persona text.
func WithPersona(persona string) Option {
	return func(a *Assembler) {
		if persona != "" {
			a.persona = persona
		}
	}
}

// WithMaxSnippetChars caps each snippet body in the context segment. Zero disables the cap.
func WithMaxSnippetChars(n int) Option {
	return func(a *Assembler) { a.maxSnippetChars = n }
}

// NewAssembler returns an assembler with the default persona.
func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{persona: config.DefaultPersona}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble returns between two and four segments. The context segment is present only
// when snippets is non-empty and the detection segment only when includeDetections is
// set and the collection is non-empty. The user message is passed through verbatim.
func (a *Assembler) Assemble(message string, snippets []models.ContextSnippet, collection models.FeatureCollection, includeDetections bool) models.AssembledPrompt {
	segments := make([]models.Segment, 0, 4)
	segments = append(segments, models.Segment{
		Kind:    models.SegmentPersona,
		Role:    models.RoleSystem,
		Content: a.persona,
	})
	if len(snippets) > 0 {
		segments = append(segments, models.Segment{
			Kind:    models.SegmentContext,
			Role:    models.RoleSystem,
			Content: a.contextText(snippets),
		})
	}
	if includeDetections && collection.Len() > 0 {
		segments = append(segments, models.Segment{
			Kind:    models.SegmentDetections,
			Role:    models.RoleSystem,
			Content: DetectionSummary(collection.Features),
		})
	}
	segments = append(segments, models.Segment{
		Kind:    models.SegmentUser,
		Role:    models.RoleUser,
		Content: message,
	})
	return models.AssembledPrompt{Segments: segments}
}

func (a *Assembler) contextText(snippets []models.ContextSnippet) string {
	var b strings.Builder
	b.WriteString(contextHeader)
	for i, s := range snippets {
		fmt.Fprintf(&b, "\n\n[Source %d]: %s", i+1, utils.Truncate(s.Body(), a.maxSnippetChars))
	}
	return b.String()
}

// DetectionSummary renders features as the tactical detection block.
func DetectionSummary(features []models.GeoFeature) string {
	var b strings.Builder
	b.WriteString(detectionsHeader)
	fmt.Fprintf(&b, "\nTotal detections: %d", len(features))
	for i, f := range features {
		lon, lat := f.Center()
		fmt.Fprintf(&b, "\n  - Detection %d: %s (confidence %.0f%%) at (%.4f, %.4f)",
			i+1, f.Label, f.Confidence*100, lat, lon)
	}
	b.WriteString("\n")
	b.WriteString(detectionsFooter)
	return b.String()
}
