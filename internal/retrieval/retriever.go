package retrieval

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/geoint/internal/models"
	"github.com/hyperjump/geoint/pkg/utils"
)

// DefaultPreviewChars is the preview length used when none is configured.
const DefaultPreviewChars = 200

// Result is the best-effort outcome of a retrieval. Err is set when the backend failed;
// Snippets is then empty, never nil.
type Result struct {
	Snippets []models.ContextSnippet
	Err      error
}

// Found reports whether any snippet was retrieved.
func (r Result) Found() bool {
	return len(r.Snippets) > 0
}

// Retriever bounds and previews backend hits. It never re-ranks or filters them.
type Retriever struct {
	backend      Backend
	timeout      time.Duration
	previewChars int
	logger       *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTimeout bounds each backend query.
func WithTimeout(d time.Duration) Option {
	return func(r *Retriever) { r.timeout = d }
}

// WithPreviewChars sets the preview length.
func WithPreviewChars(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.previewChars = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = utils.NopIfNil(l) }
}

// NewRetriever wraps backend.
func NewRetriever(backend Backend, opts ...Option) *Retriever {
	r := &Retriever{
		backend:      backend,
		previewChars: DefaultPreviewChars,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backend returns the wrapped backend.
func (r *Retriever) Backend() Backend {
	return r.backend
}

// Retrieve returns at most n snippets for query (n < 1 is treated as 1).
func (r *Retriever) Retrieve(ctx context.Context, query string, n int) (res Result) {
	if n < 1 {
		n = 1
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			res = Result{Snippets: []models.ContextSnippet{}, Err: fmt.Errorf("retrieval backend panic: %v", p)}
		}
		if res.Err != nil {
			r.logger.Warn("retrieval failed",
				zap.String("backend", r.backend.Name()), zap.Error(res.Err))
		}
	}()

	hits, err := r.backend.Query(ctx, query, n)
	if err != nil {
		return Result{Snippets: []models.ContextSnippet{}, Err: fmt.Errorf("%s query: %w", r.backend.Name(), err)}
	}
	if len(hits) > n {
		hits = hits[:n]
	}
	out := make([]models.ContextSnippet, 0, len(hits))
	for _, h := range hits {
		full := h.Content
		if full == "" {
			full = h.Text
		}
		md := h.Metadata
		if md == nil {
			md = map[string]any{}
		}
		out = append(out, models.ContextSnippet{
			ID:       h.ID,
			Text:     utils.Preview(full, r.previewChars),
			Metadata: md,
			Content:  full,
		})
	}
	return Result{Snippets: out}
}
