package models

import (
	"errors"
	"testing"

	"github.com/hyperjump/geoint/internal/apperr"
)

func TestChatRequest_Validate(t *testing.T) {
	tests := []struct {
		name       string
		req        ChatRequest
		wantErr    bool
		wantWindow int
	}{
		{"empty message", ChatRequest{Message: ""}, true, 0},
		{"blank message", ChatRequest{Message: "   "}, true, 0},
		{"sets default window", ChatRequest{Message: "status?"}, false, 5},
		{"keeps explicit window", ChatRequest{Message: "x", ContextWindow: 3}, false, 3},
		{"caps window", ChatRequest{Message: "x", ContextWindow: 500}, false, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(5, 20)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if tt.req.ContextWindow != tt.wantWindow {
				t.Errorf("context window: got %d want %d", tt.req.ContextWindow, tt.wantWindow)
			}
		})
	}
}

func TestChatRequest_WantsDetections(t *testing.T) {
	no := false
	yes := true
	if !(&ChatRequest{}).WantsDetections() {
		t.Error("absent flag should default to true")
	}
	if (&ChatRequest{IncludeDetections: &no}).WantsDetections() {
		t.Error("explicit false should be honored")
	}
	if !(&ChatRequest{IncludeDetections: &yes}).WantsDetections() {
		t.Error("explicit true should be honored")
	}
}

func TestContextSnippet_Body(t *testing.T) {
	if (ContextSnippet{Text: "preview", Content: "full"}).Body() != "full" {
		t.Error("content should win")
	}
	if (ContextSnippet{Text: "preview"}).Body() != "preview" {
		t.Error("preview fallback")
	}
}
