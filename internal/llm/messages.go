package llm

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/hyperjump/geoint/internal/models"
)

// Message is one chat-completion message. Content is sent as a plain string unless
// Parts is set.
type Message struct {
	Role    string
	Content string
	Parts   []ContentPart
}

// ContentPart is one element of a multi-part message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image, usually as a data URL.
type ImageURL struct {
	URL string `json:"url"`
}

type messageJSON struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// MarshalJSON emits content as a string, or as a parts array when parts are present.
func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{Role: m.Role, Content: m.Content}
	if len(m.Parts) > 0 {
		out.Content = m.Parts
	}
	return json.Marshal(out)
}

// TextPart returns a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart returns an image_url content part carrying img inline.
func ImagePart(img models.Image) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: DataURL(img)}}
}

// DataURL encodes img as data:<mime>;base64,<data>.
func DataURL(img models.Image) string {
	mime := img.ContentType
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(img.Data)
	}
	if mime == "application/octet-stream" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// FromPrompt converts an assembled prompt into the message list, one message per segment.
func FromPrompt(p models.AssembledPrompt) []Message {
	msgs := make([]Message, 0, len(p.Segments))
	for _, s := range p.Segments {
		msgs = append(msgs, Message{Role: string(s.Role), Content: s.Content})
	}
	return msgs
}
