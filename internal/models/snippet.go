package models

// ContextSnippet is one retrieval hit. Text is the preview returned to callers;
// Content holds the full chunk body for prompt assembly and is never serialized.
type ContextSnippet struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Content  string         `json:"-"`
}

// Body returns Content when known, otherwise the preview text.
func (s ContextSnippet) Body() string {
	if s.Content != "" {
		return s.Content
	}
	return s.Text
}
