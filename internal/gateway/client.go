package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/geoint/pkg/utils"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxBodyBytes = 32 << 20
	errorBodyLogBytes   = 512
)

// Observer receives one notification per completed call.
type Observer interface {
	ObserveUpstream(service string, kind Kind, elapsed time.Duration)
}

// Client issues bounded HTTP calls to one named upstream service.
type Client struct {
	service      string
	http         *http.Client
	logger       *zap.Logger
	observer     Observer
	maxBodyBytes int64
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for failed calls.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = utils.NopIfNil(l) }
}

// WithObserver sets a metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithHTTPClient replaces the underlying http.Client. Its Timeout should be zero;
// Do bounds every call with its own deadline.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New returns a client for the named service.
func New(service string, opts ...Option) *Client {
	c := &Client{
		service:      service,
		http:         &http.Client{},
		logger:       zap.NewNop(),
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Service returns the upstream name used in errors and metrics.
func (c *Client) Service() string { return c.service }

// Do sends req with a deadline of timeout (15s when timeout <= 0) and maps the result to
// exactly one Outcome kind.
func (c *Client) Do(ctx context.Context, req *http.Request, timeout time.Duration) Outcome {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out := c.do(req.WithContext(ctx))
	out.Elapsed = time.Since(start)

	if c.observer != nil {
		c.observer.ObserveUpstream(c.service, out.Kind, out.Elapsed)
	}
	if !out.OK() {
		c.logger.Warn("upstream call failed",
			zap.String("service", c.service),
			zap.String("method", req.Method),
			zap.String("url", req.URL.Redacted()),
			zap.String("outcome", out.Kind.String()),
			zap.Int("status", out.StatusCode),
			zap.Duration("elapsed", out.Elapsed),
			zap.Error(out.Cause),
		)
	}
	return out
}

func (c *Client) do(req *http.Request) Outcome {
	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLogBytes))
		out := httpStatus(c.service, resp.StatusCode)
		out.Cause = fmt.Errorf("status %d: %s", resp.StatusCode, string(snippet))
		return out
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return c.transportFailure(err)
	}
	return success(c.service, body)
}

func (c *Client) transportFailure(err error) Outcome {
	kind := KindConnectionRefused
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return Outcome{Service: c.service, Kind: kind, Cause: err}
}

// DecodeJSON unmarshals a successful outcome into v. Failed outcomes return their
// taxonomy error and decode failures return ErrMalformedPayload.
func DecodeJSON(out Outcome, v any) error {
	if err := out.Err(); err != nil {
		return err
	}
	if err := json.Unmarshal(out.Payload, v); err != nil {
		return Malformed(out.Service, err)
	}
	return nil
}
