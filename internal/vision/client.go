// Package vision calls the object-detection model server.
package vision

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/geoint/internal/config"
	"github.com/hyperjump/geoint/internal/gateway"
	"github.com/hyperjump/geoint/internal/models"
)

// ServiceName identifies the detection service in errors and metrics.
const ServiceName = "detection"

// Client talks to a YOLO-style /predict endpoint.
type Client struct {
	baseURL       string
	timeout       time.Duration
	healthTimeout time.Duration
	gw            *gateway.Client
}

// NewClient creates a client from cfg. opts configure the underlying gateway client.
func NewClient(cfg config.VisionConfig, opts ...gateway.Option) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		timeout:       cfg.Timeout,
		healthTimeout: cfg.HealthTimeout,
		gw:            gateway.New(ServiceName, opts...),
	}
}

// Detect posts img as multipart field "image" with the confidence threshold and
// returns the raw detection payload.
func (c *Client) Detect(ctx context.Context, img models.Image, confidence float64) ([]byte, error) {
	if len(img.Data) == 0 {
		return nil, gateway.InvalidInput("image is empty")
	}
	body, contentType, err := multipartImage(img, confidence)
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/predict", body)
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	out := c.gw.Do(ctx, req, c.timeout)
	if err := out.Err(); err != nil {
		return nil, err
	}
	return out.Payload, nil
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	return c.gw.Do(ctx, req, c.healthTimeout).Err()
}

func multipartImage(img models.Image, confidence float64) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := img.Filename
	if filename == "" {
		filename = "image.jpg"
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(img.Data)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("confidence", strconv.FormatFloat(confidence, 'f', -1, 64)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
