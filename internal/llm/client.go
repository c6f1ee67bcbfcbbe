// Package llm calls an OpenAI-compatible chat-completions endpoint for text chat,
// image analysis and detection summaries.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/geoint/internal/config"
	"github.com/hyperjump/geoint/internal/gateway"
	"github.com/hyperjump/geoint/internal/models"
)

// ServiceName identifies the language-model service in errors and metrics.
const ServiceName = "language model"

const summaryPreamble = "You are a geospatial intelligence analyst. " +
	"Given the following object detection results from satellite imagery, " +
	"provide a concise tactical intelligence summary. " +
	"Highlight any militarily significant objects, patterns of life, or anomalies.\n\n"

// Client talks to the language-model server.
type Client struct {
	baseURL         string
	chatModel       string
	visionModel     string
	maxTokens       int
	visionMaxTokens int
	temperature     float64
	timeout         time.Duration
	healthTimeout   time.Duration
	gw              *gateway.Client
}

// NewClient creates a client from cfg. opts configure the underlying gateway client.
func NewClient(cfg config.LLMConfig, opts ...gateway.Option) *Client {
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		chatModel:       cfg.ChatModel,
		visionModel:     cfg.VisionModel,
		maxTokens:       cfg.MaxTokens,
		visionMaxTokens: cfg.VisionMaxTokens,
		temperature:     cfg.Temperature,
		timeout:         cfg.Timeout,
		healthTimeout:   cfg.HealthTimeout,
		gw:              gateway.New(ServiceName, opts...),
	}
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends messages to the chat model and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", gateway.InvalidInput("no messages to send")
	}
	temp := c.temperature
	out, err := c.post(ctx, completionRequest{
		Model:       c.chatModel,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	var resp completionResponse
	if err := gateway.DecodeJSON(out, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		return "", gateway.Malformed(ServiceName, fmt.Errorf("missing choices[0].message.content"))
	}
	return *resp.Choices[0].Message.Content, nil
}

// AnalyzeImage sends img with prompt to the vision model and returns the raw completion.
func (c *Client) AnalyzeImage(ctx context.Context, img models.Image, prompt string) (json.RawMessage, error) {
	if len(img.Data) == 0 {
		return nil, gateway.InvalidInput("image is empty")
	}
	out, err := c.post(ctx, completionRequest{
		Model: c.visionModel,
		Messages: []Message{{
			Role:  string(models.RoleUser),
			Parts: []ContentPart{TextPart(prompt), ImagePart(img)},
		}},
		MaxTokens: c.visionMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	if !json.Valid(out.Payload) {
		return nil, gateway.Malformed(ServiceName, fmt.Errorf("completion is not valid JSON"))
	}
	return json.RawMessage(out.Payload), nil
}

// DescribeDetections asks the chat model for a tactical summary of collection.
func (c *Client) DescribeDetections(ctx context.Context, collection models.FeatureCollection) (string, error) {
	if len(collection.Features) == 0 {
		return "", gateway.InvalidInput("no detections to summarize")
	}
	data, err := json.MarshalIndent(collection, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode detections: %w", err)
	}
	prompt := summaryPreamble + "Detection results:\n```json\n" + string(data) + "\n```"
	return c.Complete(ctx, []Message{{Role: string(models.RoleUser), Content: prompt}})
}

// Health checks GET /v1/models.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	return c.gw.Do(ctx, req, c.healthTimeout).Err()
}

func (c *Client) post(ctx context.Context, body completionRequest) (gateway.Outcome, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return gateway.Outcome{}, fmt.Errorf("marshal completion request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return gateway.Outcome{}, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	out := c.gw.Do(ctx, req, c.timeout)
	if err := out.Err(); err != nil {
		return out, err
	}
	return out, nil
}
