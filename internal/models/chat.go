package models

import (
	"strings"

	"github.com/hyperjump/geoint/internal/apperr"
)

// ChatRequest is the body of the chat endpoint.
type ChatRequest struct {
	Message       string `json:"message"`
	ContextWindow int    `json:"context_window,omitempty"`
	// IncludeDetections defaults to true when absent.
	IncludeDetections *bool `json:"include_detections,omitempty"`
}

// Validate applies the default context window, caps it at maxWindow, and rejects
// an empty message with apperr.ErrInvalidInput.
func (r *ChatRequest) Validate(defaultWindow, maxWindow int) error {
	if strings.TrimSpace(r.Message) == "" {
		return apperr.InvalidInput("message is required")
	}
	if r.ContextWindow <= 0 {
		r.ContextWindow = defaultWindow
	}
	if maxWindow > 0 && r.ContextWindow > maxWindow {
		r.ContextWindow = maxWindow
	}
	if r.ContextWindow <= 0 {
		r.ContextWindow = 1
	}
	return nil
}

// WantsDetections reports whether the detection summary should be considered.
func (r *ChatRequest) WantsDetections() bool {
	return r.IncludeDetections == nil || *r.IncludeDetections
}

// ChatResponse is returned by the chat endpoint.
type ChatResponse struct {
	Response   string           `json:"response"`
	Sources    []ContextSnippet `json:"sources"`
	Detections []GeoFeature     `json:"detections"`
}
