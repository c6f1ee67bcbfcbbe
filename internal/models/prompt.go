package models

// Role is the speaker of a prompt segment.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// SegmentKind identifies the source of a prompt segment.
type SegmentKind string

const (
	SegmentPersona    SegmentKind = "persona"
	SegmentContext    SegmentKind = "context"
	SegmentDetections SegmentKind = "detections"
	SegmentUser       SegmentKind = "user"
)

// Segment is one role-tagged piece of an assembled prompt.
type Segment struct {
	Kind    SegmentKind `json:"kind"`
	Role    Role        `json:"role"`
	Content string      `json:"content"`
}

// AssembledPrompt is the ordered segment list sent to the language model.
// Order is persona, context, detections, user; context and detections are optional.
type AssembledPrompt struct {
	Segments []Segment `json:"segments"`
}

// Has reports whether a segment of the given kind is present.
func (p AssembledPrompt) Has(kind SegmentKind) bool {
	for _, s := range p.Segments {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

// Segment returns the segment of the given kind.
func (p AssembledPrompt) Segment(kind SegmentKind) (Segment, bool) {
	for _, s := range p.Segments {
		if s.Kind == kind {
			return s, true
		}
	}
	return Segment{}, false
}
