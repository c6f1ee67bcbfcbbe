// Package analyst orchestrates detection, image analysis, retrieval-augmented chat and
// report ingestion on top of the upstream clients.
package analyst

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/geoint/internal/config"
	"github.com/hyperjump/geoint/internal/detections"
	"github.com/hyperjump/geoint/internal/gateway"
	"github.com/hyperjump/geoint/internal/geo"
	"github.com/hyperjump/geoint/internal/ingest"
	"github.com/hyperjump/geoint/internal/llm"
	"github.com/hyperjump/geoint/internal/models"
	"github.com/hyperjump/geoint/internal/prompt"
	"github.com/hyperjump/geoint/internal/retrieval"
	"github.com/hyperjump/geoint/internal/storage"
	"github.com/hyperjump/geoint/internal/vision"
	"github.com/hyperjump/geoint/pkg/utils"
)

const (
	// DefaultAnalyzePrompt is used by Analyze when no prompt is given.
	DefaultAnalyzePrompt = "Describe what you see in this satellite image. " +
		"Identify any vehicles, buildings, ships, or infrastructure."
	// PipelinePrompt is the analysis prompt of the combined pipeline.
	PipelinePrompt = "Analyze this satellite image. Describe the terrain, " +
		"identify visible structures, vehicles, and any notable activity."

	// ServiceVision and ServiceLLM key the upstreams in StatusResponse.
	ServiceVision = "vision"
	ServiceLLM    = "llm"

	healthy     = "healthy"
	unavailable = "unavailable"

	defaultHealthTimeout = 5 * time.Second
)

// Detector is the object-detection upstream.
type Detector interface {
	Detect(ctx context.Context, img models.Image, confidence float64) ([]byte, error)
	Health(ctx context.Context) error
}

// LanguageModel is the chat and vision-model upstream.
type LanguageModel interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
	AnalyzeImage(ctx context.Context, img models.Image, prompt string) (json.RawMessage, error)
	DescribeDetections(ctx context.Context, collection models.FeatureCollection) (string, error)
	Health(ctx context.Context) error
}

// Broadcaster receives every new detection set.
type Broadcaster interface {
	Broadcast(collection models.FeatureCollection)
}

// Recorder receives service-level measurements.
type Recorder interface {
	ObserveRetrieval(found bool, err error)
	SetDetections(n int)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Detector   Detector
	Model      LanguageModel
	Normalizer *geo.Normalizer
	Store      *detections.Store
	Retriever  *retrieval.Retriever
	Assembler  *prompt.Assembler
	Ingester   *ingest.Ingester
}

// Service implements the analyst operations exposed over HTTP.
type Service struct {
	Deps
	broadcaster   Broadcaster
	recorder      Recorder
	logger        *zap.Logger
	defaultWindow int
	maxWindow     int
	healthTimeout time.Duration
	storagePaths  []string

	// publishMu orders store replacement with its broadcast.
	publishMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = utils.NopIfNil(l) }
}

// WithBroadcaster publishes every detection set to b.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.broadcaster = b }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithContextWindow sets the default and maximum number of retrieved snippets.
func WithContextWindow(defaultWindow, maxWindow int) Option {
	return func(s *Service) {
		s.defaultWindow = defaultWindow
		s.maxWindow = maxWindow
	}
}

// WithHealthTimeout bounds each check made by Status.
func WithHealthTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.healthTimeout = d
		}
	}
}

// WithStoragePaths lists the on-disk paths summed into StatusResponse.StorageBytes.
func WithStoragePaths(paths ...string) Option {
	return func(s *Service) { s.storagePaths = paths }
}

// New creates a Service. Normalizer, Store and Assembler default to zero-config
// instances when nil.
func New(deps Deps, opts ...Option) *Service {
	s := &Service{
		Deps:          deps,
		logger:        zap.NewNop(),
		defaultWindow: 5,
		maxWindow:     20,
		healthTimeout: defaultHealthTimeout,
	}
	if s.Normalizer == nil {
		var cfg config.Config
		config.ApplyDefaults(&cfg)
		s.Normalizer = geo.NewNormalizer(geo.NewProjection(cfg.Projection))
	}
	if s.Store == nil {
		s.Store = detections.NewStore()
	}
	if s.Assembler == nil {
		s.Assembler = prompt.NewAssembler()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Detect runs object detection, replaces the stored detection set and broadcasts it.
func (s *Service) Detect(ctx context.Context, img models.Image, confidence float64) (models.DetectResponse, error) {
	raw, err := s.detect(ctx, img, confidence)
	if err != nil {
		return models.DetectResponse{}, err
	}
	fc := s.publish(raw.payload)
	return models.DetectResponse{Detections: raw.list, GeoJSON: fc, Count: raw.count}, nil
}

// PublishDetections takes a detection payload pushed by an external producer,
// either a detection service body or a bare detections array, and publishes it the
// same way Detect does.
func (s *Service) PublishDetections(payload json.RawMessage) (models.DetectResponse, error) {
	payload = bytes.TrimSpace(payload)
	if !json.Valid(payload) || (payload[0] != '{' && payload[0] != '[') {
		return models.DetectResponse{}, gateway.InvalidInput("detection payload must be a JSON object or array")
	}
	if payload[0] == '[' {
		wrapped, err := json.Marshal(struct {
			Detections json.RawMessage `json:"detections"`
		}{payload})
		if err != nil {
			return models.DetectResponse{}, fmt.Errorf("wrap detections: %w", err)
		}
		payload = wrapped
	}
	raw, err := splitDetections(payload)
	if err != nil {
		return models.DetectResponse{}, err
	}
	fc := s.publish(raw.payload)
	return models.DetectResponse{Detections: raw.list, GeoJSON: fc, Count: raw.count}, nil
}

// Latest returns the current detection set.
func (s *Service) Latest() models.FeatureCollection {
	return s.Store.Latest()
}

// Chat answers message with retrieved report context and, when requested, the latest
// detections. Retrieval failures degrade to an answer without context.
func (s *Service) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	if err := req.Validate(s.defaultWindow, s.maxWindow); err != nil {
		return models.ChatResponse{}, err
	}

	snippets := []models.ContextSnippet{}
	if s.Retriever != nil {
		res := s.Retriever.Retrieve(ctx, req.Message, req.ContextWindow)
		if s.recorder != nil {
			s.recorder.ObserveRetrieval(res.Found(), res.Err)
		}
		if res.Err != nil {
			s.logger.Warn("chat continues without report context", zap.Error(res.Err))
		}
		snippets = res.Snippets
	}

	collection := models.NewFeatureCollection(nil)
	if req.WantsDetections() {
		collection = s.Store.Latest()
	}
	p := s.Assembler.Assemble(req.Message, snippets, collection, req.WantsDetections())

	answer, err := s.Model.Complete(ctx, llm.FromPrompt(p))
	if err != nil {
		return models.ChatResponse{}, fmt.Errorf("chat completion: %w", err)
	}

	used := []models.GeoFeature{}
	if p.Has(models.SegmentDetections) {
		used = collection.Features
	}
	return models.ChatResponse{Response: answer, Sources: snippets, Detections: used}, nil
}

// Analyze sends img to the vision model. An empty prompt uses DefaultAnalyzePrompt.
func (s *Service) Analyze(ctx context.Context, img models.Image, prompt string) (json.RawMessage, error) {
	if len(img.Data) == 0 {
		return nil, gateway.InvalidInput("image is empty")
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultAnalyzePrompt
	}
	return s.Model.AnalyzeImage(ctx, img, prompt)
}

// Pipeline runs detection and vision-model analysis concurrently. A failed half is
// reported as null; the call fails only when both halves fail.
func (s *Service) Pipeline(ctx context.Context, img models.Image, confidence float64) (models.PipelineResponse, error) {
	if err := validateImage(img, confidence); err != nil {
		return models.PipelineResponse{}, err
	}

	var (
		g        errgroup.Group
		raw      rawDetections
		analysis json.RawMessage
		detErr   error
		anErr    error
	)
	g.Go(func() error {
		raw, detErr = s.detect(ctx, img, confidence)
		return nil
	})
	g.Go(func() error {
		analysis, anErr = s.Model.AnalyzeImage(ctx, img, PipelinePrompt)
		return nil
	})
	_ = g.Wait()

	if detErr != nil && anErr != nil {
		return models.PipelineResponse{}, &gateway.ServiceError{
			Service: "upstream services",
			Err:     fmt.Errorf("%w: %v", gateway.ErrUpstreamUnavailable, errors.Join(detErr, anErr)),
		}
	}

	var resp models.PipelineResponse
	if detErr != nil {
		s.logger.Warn("pipeline detection failed", zap.Error(detErr))
	} else {
		fc := s.publish(raw.payload)
		resp.Detections = raw.list
		resp.GeoJSON = &fc
	}
	if anErr != nil {
		s.logger.Warn("pipeline analysis failed", zap.Error(anErr))
	} else {
		resp.Analysis = analysis
	}
	return resp, nil
}

// Summarize asks the language model for a tactical summary of the latest detections.
func (s *Service) Summarize(ctx context.Context) (models.SummaryResponse, error) {
	fc := s.Store.Latest()
	if fc.Len() == 0 {
		return models.SummaryResponse{}, gateway.InvalidInput("no detections available; run detection first")
	}
	summary, err := s.Model.DescribeDetections(ctx, fc)
	if err != nil {
		return models.SummaryResponse{}, fmt.Errorf("summarize detections: %w", err)
	}
	return models.SummaryResponse{Summary: summary, Count: fc.Len()}, nil
}

// IngestReport chunks and indexes a report submitted over the API.
func (s *Service) IngestReport(ctx context.Context, in models.ReportInput) (models.IngestResult, error) {
	if s.Ingester == nil {
		return models.IngestResult{}, errors.New("report ingestion is not configured")
	}
	return s.Ingester.IngestReport(ctx, in)
}

// DeleteReport removes every chunk of a report.
func (s *Service) DeleteReport(ctx context.Context, reportID string) error {
	if s.Ingester == nil {
		return errors.New("report ingestion is not configured")
	}
	return s.Ingester.DeleteReport(ctx, reportID)
}

// Status checks both upstreams and the retrieval backend concurrently.
func (s *Service) Status(ctx context.Context) models.StatusResponse {
	resp := models.StatusResponse{
		Services:   make(map[string]models.ServiceHealth, 2),
		Detections: s.Store.Len(),
	}
	if at := s.Store.UpdatedAt(); !at.IsZero() {
		resp.DetectionsAt = &at
	}

	ctx, cancel := context.WithTimeout(ctx, s.healthTimeout)
	defer cancel()

	var (
		g        errgroup.Group
		visErr   error
		llmErr   error
		counts   retrieval.Counts
		countErr error
		size     int64
	)
	g.Go(func() error {
		visErr = s.Detector.Health(ctx)
		return nil
	})
	g.Go(func() error {
		llmErr = s.Model.Health(ctx)
		return nil
	})
	if s.Retriever != nil {
		resp.RetrievalBackend = s.Retriever.Backend().Name()
		g.Go(func() error {
			counts, countErr = s.Retriever.Backend().Count(ctx)
			return nil
		})
	}
	g.Go(func() error {
		var err error
		if size, err = storage.DiskUsageBytes(s.storagePaths...); err != nil {
			s.logger.Debug("storage usage unavailable", zap.Error(err))
		}
		return nil
	})
	_ = g.Wait()

	resp.Services[ServiceVision] = health(visErr)
	resp.Services[ServiceLLM] = health(llmErr)
	if countErr != nil {
		s.logger.Warn("retrieval backend count failed", zap.Error(countErr))
	}
	resp.Reports = counts.Reports
	resp.Chunks = counts.Chunks
	resp.StorageBytes = size
	return resp
}

func health(err error) models.ServiceHealth {
	if err != nil {
		return models.ServiceHealth{Status: unavailable, Error: err.Error()}
	}
	return models.ServiceHealth{Status: healthy}
}

type rawDetections struct {
	payload []byte
	list    json.RawMessage
	count   int
}

func (s *Service) detect(ctx context.Context, img models.Image, confidence float64) (rawDetections, error) {
	if err := validateImage(img, confidence); err != nil {
		return rawDetections{}, err
	}
	payload, err := s.Detector.Detect(ctx, img, confidence)
	if err != nil {
		return rawDetections{}, fmt.Errorf("detect: %w", err)
	}
	return splitDetections(payload)
}

func validateImage(img models.Image, confidence float64) error {
	if len(img.Data) == 0 {
		return gateway.InvalidInput("image is empty")
	}
	if confidence < 0 || confidence > 1 {
		return gateway.InvalidInput("confidence must be between 0 and 1")
	}
	return nil
}

// publish normalizes payload, replaces the stored set and broadcasts it. The returned
// collection holds this payload's features, whatever later requests store.
func (s *Service) publish(payload []byte) models.FeatureCollection {
	fc := models.NewFeatureCollection(s.Normalizer.Normalize(payload))
	s.publishMu.Lock()
	s.Store.Replace(fc.Features)
	if s.recorder != nil {
		s.recorder.SetDetections(fc.Len())
	}
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(fc)
	}
	s.publishMu.Unlock()
	s.logger.Info("detections updated", zap.Int("features", fc.Len()))
	return fc
}

// splitDetections extracts the detections array of a detection payload. A payload
// that is not JSON is malformed; valid JSON without the array yields an empty list.
func splitDetections(payload []byte) (rawDetections, error) {
	if !json.Valid(payload) {
		return rawDetections{}, gateway.Malformed(vision.ServiceName, errors.New("detection payload is not JSON"))
	}
	out := rawDetections{payload: payload, list: json.RawMessage("[]")}
	var body struct {
		Detections []json.RawMessage `json:"detections"`
	}
	if json.Unmarshal(payload, &body) == nil && body.Detections != nil {
		list, err := json.Marshal(body.Detections)
		if err == nil {
			out.list = list
			out.count = len(body.Detections)
		}
	}
	return out, nil
}
