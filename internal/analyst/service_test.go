package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/geoint/internal/config"
	"github.com/hyperjump/geoint/internal/embedding"
	"github.com/hyperjump/geoint/internal/gateway"
	"github.com/hyperjump/geoint/internal/ingest"
	"github.com/hyperjump/geoint/internal/llm"
	"github.com/hyperjump/geoint/internal/models"
	"github.com/hyperjump/geoint/internal/retrieval"
)

const twoDetections = `{"detections":[
	{"label":"ship","confidence":0.91,"bbox":{"x1":10,"y1":10,"x2":30,"y2":20}},
	{"class_name":"truck","confidence":0.5,"bbox":[100,100,110,120],"lat":38.9,"lon":-77.0}
],"count":2}`

type fakeDetector struct {
	payload   string
	err       error
	healthErr error
	calls     int
	mu        sync.Mutex
}

func (f *fakeDetector) Detect(_ context.Context, _ models.Image, _ float64) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.payload), nil
}

func (f *fakeDetector) Health(context.Context) error { return f.healthErr }

type fakeModel struct {
	answer    string
	err       error
	analysis  string
	healthErr error

	mu       sync.Mutex
	messages []llm.Message
	prompts  []string
	summary  models.FeatureCollection
}

func (f *fakeModel) Complete(_ context.Context, messages []llm.Message) (string, error) {
	f.mu.Lock()
	f.messages = messages
	f.mu.Unlock()
	return f.answer, f.err
}

func (f *fakeModel) AnalyzeImage(_ context.Context, _ models.Image, prompt string) (json.RawMessage, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.analysis), nil
}

func (f *fakeModel) DescribeDetections(_ context.Context, fc models.FeatureCollection) (string, error) {
	f.summary = fc
	return f.answer, f.err
}

func (f *fakeModel) Health(context.Context) error { return f.healthErr }

type recordingBroadcaster struct {
	sent []models.FeatureCollection
}

func (r *recordingBroadcaster) Broadcast(fc models.FeatureCollection) { r.sent = append(r.sent, fc) }

type failingBackend struct{ retrieval.Backend }

func (failingBackend) Name() string { return "failing" }

func (failingBackend) Query(context.Context, string, int) ([]models.ContextSnippet, error) {
	return nil, errors.New("index offline")
}

func (failingBackend) Count(context.Context) (retrieval.Counts, error) {
	return retrieval.Counts{}, errors.New("index offline")
}

var image = models.Image{Filename: "pier.jpg", ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}

func unavailableErr(service string) error {
	return gateway.Outcome{Service: service, Kind: gateway.KindConnectionRefused}.Err()
}

func newChromem(t *testing.T) *retrieval.Chromem {
	t.Helper()
	backend, err := retrieval.NewChromem("", "", embedding.NewHashEmbedder(64))
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func newService(t *testing.T, det *fakeDetector, model *fakeModel, opts ...Option) *Service {
	t.Helper()
	backend := newChromem(t)
	return New(Deps{
		Detector:  det,
		Model:     model,
		Retriever: retrieval.NewRetriever(backend),
		Ingester:  ingest.NewIngester(backend, config.IngestConfig{ChunkSize: 500, ChunkStride: 450}),
	}, opts...)
}

func TestDetect_ReplacesStoreAndBroadcasts(t *testing.T) {
	b := &recordingBroadcaster{}
	s := newService(t, &fakeDetector{payload: twoDetections}, &fakeModel{}, WithBroadcaster(b))

	resp, err := s.Detect(context.Background(), image, 0.25)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.GeoJSON.Features, 2)
	assert.Equal(t, "ship", resp.GeoJSON.Features[0].Label)
	assert.Equal(t, "truck", resp.GeoJSON.Features[1].Label)

	var list []json.RawMessage
	require.NoError(t, json.Unmarshal(resp.Detections, &list))
	assert.Len(t, list, 2)

	assert.Equal(t, 2, s.Latest().Len())
	require.Len(t, b.sent, 1)
	assert.Equal(t, 2, b.sent[0].Len())
}

// labelDetector reports one detection labelled with the image's file name.
type labelDetector struct{}

func (labelDetector) Detect(_ context.Context, img models.Image, _ float64) ([]byte, error) {
	return []byte(fmt.Sprintf(`{"detections":[{"label":%q,"confidence":0.9,"bbox":{"x1":1,"y1":1,"x2":5,"y2":5}}],"count":1}`,
		img.Filename)), nil
}

func (labelDetector) Health(context.Context) error { return nil }

type lockedBroadcaster struct {
	mu   sync.Mutex
	last models.FeatureCollection
}

func (b *lockedBroadcaster) Broadcast(fc models.FeatureCollection) {
	b.mu.Lock()
	b.last = fc
	b.mu.Unlock()
}

func TestDetect_ConcurrentRequestsGetTheirOwnFeatures(t *testing.T) {
	b := &lockedBroadcaster{}
	s := New(Deps{Detector: labelDetector{}, Model: &fakeModel{}}, WithBroadcaster(b))

	const workers, calls = 16, 200
	var wg sync.WaitGroup
	var mismatches sync.Map
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			label := fmt.Sprintf("site-%d", w)
			img := models.Image{Filename: label, ContentType: "image/jpeg", Data: []byte{0xff}}
			for i := 0; i < calls; i++ {
				resp, err := s.Detect(context.Background(), img, 0.25)
				if err != nil || len(resp.GeoJSON.Features) != 1 || resp.GeoJSON.Features[0].Label != label {
					mismatches.Store(label, resp.GeoJSON.Features)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	mismatches.Range(func(k, v any) bool {
		t.Errorf("%s received %v", k, v)
		return true
	})
	latest := s.Latest()
	require.Len(t, latest.Features, 1)
	require.Len(t, b.last.Features, 1)
	assert.Equal(t, latest.Features[0].Label, b.last.Features[0].Label, "last broadcast must match the stored set")
}

func TestPublishDetections(t *testing.T) {
	t.Run("envelope replaces and broadcasts", func(t *testing.T) {
		b := &recordingBroadcaster{}
		det := &fakeDetector{payload: twoDetections}
		s := newService(t, det, &fakeModel{}, WithBroadcaster(b))

		resp, err := s.PublishDetections(json.RawMessage(twoDetections))
		require.NoError(t, err)
		assert.Equal(t, 2, resp.Count)
		assert.Len(t, resp.GeoJSON.Features, 2)
		assert.Equal(t, 2, s.Latest().Len())
		require.Len(t, b.sent, 1)
		assert.Equal(t, 0, det.calls, "pushed detections must not call the detector")
	})
	t.Run("bare array", func(t *testing.T) {
		s := newService(t, &fakeDetector{}, &fakeModel{})
		resp, err := s.PublishDetections(json.RawMessage(` [{"label":"tank","confidence":1.4,"bbox":{"x1":1,"y1":1,"x2":5,"y2":5}}]`))
		require.NoError(t, err)
		assert.Equal(t, 1, resp.Count)
		require.Len(t, resp.GeoJSON.Features, 1)
		assert.Equal(t, "tank", resp.GeoJSON.Features[0].Label)
		assert.Equal(t, 1.0, resp.GeoJSON.Features[0].Confidence, "confidence is clamped")
	})
	t.Run("empty array clears the set", func(t *testing.T) {
		s := newService(t, &fakeDetector{}, &fakeModel{})
		_, err := s.PublishDetections(json.RawMessage(twoDetections))
		require.NoError(t, err)
		_, err = s.PublishDetections(json.RawMessage(`[]`))
		require.NoError(t, err)
		assert.Equal(t, 0, s.Latest().Len())
	})
	t.Run("rejects non json and scalars", func(t *testing.T) {
		s := newService(t, &fakeDetector{}, &fakeModel{})
		_, err := s.PublishDetections(json.RawMessage(twoDetections))
		require.NoError(t, err)
		for _, body := range []string{"", "<html>", `"ship"`, "42"} {
			_, err := s.PublishDetections(json.RawMessage(body))
			assert.ErrorIs(t, err, gateway.ErrInvalidInput, "body %q", body)
		}
		assert.Equal(t, 2, s.Latest().Len(), "rejected payloads keep the previous set")
	})
}

func TestDetect_NoDetectionsKey(t *testing.T) {
	s := newService(t, &fakeDetector{payload: `{"status":"ok"}`}, &fakeModel{})
	resp, err := s.Detect(context.Background(), image, 0.25)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Count)
	assert.JSONEq(t, `[]`, string(resp.Detections))
	assert.NotNil(t, resp.GeoJSON.Features)
}

func TestDetect_Errors(t *testing.T) {
	t.Run("upstream down keeps previous set", func(t *testing.T) {
		det := &fakeDetector{payload: twoDetections}
		s := newService(t, det, &fakeModel{})
		_, err := s.Detect(context.Background(), image, 0.25)
		require.NoError(t, err)

		det.err = unavailableErr("detection")
		_, err = s.Detect(context.Background(), image, 0.25)
		assert.ErrorIs(t, err, gateway.ErrUpstreamUnavailable)
		assert.Equal(t, 2, s.Latest().Len())
	})
	t.Run("not json", func(t *testing.T) {
		s := newService(t, &fakeDetector{payload: `<html>`}, &fakeModel{})
		_, err := s.Detect(context.Background(), image, 0.25)
		assert.ErrorIs(t, err, gateway.ErrMalformedPayload)
	})
	t.Run("invalid input", func(t *testing.T) {
		det := &fakeDetector{payload: twoDetections}
		s := newService(t, det, &fakeModel{})
		_, err := s.Detect(context.Background(), models.Image{}, 0.25)
		assert.ErrorIs(t, err, gateway.ErrInvalidInput)
		_, err = s.Detect(context.Background(), image, 1.5)
		assert.ErrorIs(t, err, gateway.ErrInvalidInput)
		assert.Equal(t, 0, det.calls)
	})
}

func TestChat_UsesContextAndDetections(t *testing.T) {
	model := &fakeModel{answer: "Two vessels are moored at the pier [Source 1]."}
	s := newService(t, &fakeDetector{payload: twoDetections}, model)
	ctx := context.Background()

	_, err := s.IngestReport(ctx, models.ReportInput{ID: "harbor", Content: "Two frigates moored at the north pier."})
	require.NoError(t, err)
	_, err = s.Detect(ctx, image, 0.25)
	require.NoError(t, err)

	resp, err := s.Chat(ctx, models.ChatRequest{Message: "What is at the pier?"})
	require.NoError(t, err)
	assert.Equal(t, model.answer, resp.Response)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "harbor-chunk-0", resp.Sources[0].ID)
	assert.Len(t, resp.Detections, 2)

	require.Len(t, model.messages, 4)
	assert.Equal(t, "system", model.messages[0].Role)
	assert.Contains(t, model.messages[1].Content, "[Source 1]: Two frigates")
	assert.Contains(t, model.messages[2].Content, "Total detections: 2")
	assert.Equal(t, llm.Message{Role: "user", Content: "What is at the pier?"}, model.messages[3])
}

func TestChat_DetectionsOptOut(t *testing.T) {
	model := &fakeModel{answer: "ok"}
	s := newService(t, &fakeDetector{payload: twoDetections}, model)
	_, err := s.Detect(context.Background(), image, 0.25)
	require.NoError(t, err)

	off := false
	resp, err := s.Chat(context.Background(), models.ChatRequest{Message: "status?", IncludeDetections: &off})
	require.NoError(t, err)
	assert.Empty(t, resp.Detections)
	assert.NotNil(t, resp.Detections)
	assert.NotNil(t, resp.Sources)
	require.Len(t, model.messages, 2)
}

func TestChat_RetrievalFailureDegrades(t *testing.T) {
	model := &fakeModel{answer: "no context"}
	s := New(Deps{
		Detector:  &fakeDetector{},
		Model:     model,
		Retriever: retrieval.NewRetriever(failingBackend{}),
	})
	resp, err := s.Chat(context.Background(), models.ChatRequest{Message: "anything"})
	require.NoError(t, err)
	assert.Equal(t, "no context", resp.Response)
	assert.Empty(t, resp.Sources)
	assert.Len(t, model.messages, 2)
}

func TestChat_Errors(t *testing.T) {
	s := newService(t, &fakeDetector{}, &fakeModel{err: unavailableErr("language model")})

	_, err := s.Chat(context.Background(), models.ChatRequest{Message: "  "})
	assert.ErrorIs(t, err, gateway.ErrInvalidInput)

	_, err = s.Chat(context.Background(), models.ChatRequest{Message: "hello"})
	assert.ErrorIs(t, err, gateway.ErrUpstreamUnavailable)
	assert.Equal(t, "language model", gateway.ServiceOf(err))
}

func TestAnalyze_DefaultPrompt(t *testing.T) {
	model := &fakeModel{analysis: `{"choices":[]}`}
	s := newService(t, &fakeDetector{}, model)

	out, err := s.Analyze(context.Background(), image, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"choices":[]}`, string(out))

	_, err = s.Analyze(context.Background(), image, "count the ships")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultAnalyzePrompt, "count the ships"}, model.prompts)
}

func TestPipeline(t *testing.T) {
	tests := []struct {
		name         string
		detErr       error
		modelErr     error
		wantErr      bool
		wantDetect   bool
		wantAnalysis bool
	}{
		{name: "both succeed", wantDetect: true, wantAnalysis: true},
		{name: "detection fails", detErr: unavailableErr("detection"), wantAnalysis: true},
		{name: "analysis fails", modelErr: &gateway.RejectedError{Service: "language model", StatusCode: 500}, wantDetect: true},
		{name: "both fail", detErr: unavailableErr("detection"), modelErr: unavailableErr("language model"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := &fakeDetector{payload: twoDetections, err: tt.detErr}
			model := &fakeModel{analysis: `{"id":"x"}`, err: tt.modelErr}
			s := newService(t, det, model)

			resp, err := s.Pipeline(context.Background(), image, 0.25)
			if tt.wantErr {
				assert.ErrorIs(t, err, gateway.ErrUpstreamUnavailable)
				assert.NotEmpty(t, gateway.ServiceOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDetect, resp.GeoJSON != nil)
			assert.Equal(t, tt.wantDetect, resp.Detections != nil)
			assert.Equal(t, tt.wantAnalysis, resp.Analysis != nil)
			if tt.wantDetect {
				assert.Equal(t, 2, s.Latest().Len())
			} else {
				assert.Equal(t, 0, s.Latest().Len())
			}
			assert.Equal(t, []string{PipelinePrompt}, model.prompts)

			data, err := json.Marshal(resp)
			require.NoError(t, err)
			if !tt.wantDetect {
				assert.Contains(t, string(data), `"detections":null`)
				assert.Contains(t, string(data), `"geojson":null`)
			}
			if !tt.wantAnalysis {
				assert.Contains(t, string(data), `"analysis":null`)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	model := &fakeModel{answer: "One vessel, one truck."}
	s := newService(t, &fakeDetector{payload: twoDetections}, model)

	_, err := s.Summarize(context.Background())
	assert.ErrorIs(t, err, gateway.ErrInvalidInput)

	_, err = s.Detect(context.Background(), image, 0.25)
	require.NoError(t, err)
	resp, err := s.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SummaryResponse{Summary: "One vessel, one truck.", Count: 2}, resp)
	assert.Equal(t, 2, model.summary.Len())
}

func TestReports(t *testing.T) {
	s := newService(t, &fakeDetector{}, &fakeModel{})
	ctx := context.Background()

	res, err := s.IngestReport(ctx, models.ReportInput{Title: "Convoy", Content: strings.Repeat("convoy sighted ", 60)})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ReportID)
	assert.Equal(t, 2, res.Chunks)

	counts, err := s.Retriever.Backend().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, retrieval.Counts{Reports: 1, Chunks: 2}, counts)

	require.NoError(t, s.DeleteReport(ctx, res.ReportID))
	counts, err = s.Retriever.Backend().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, retrieval.Counts{}, counts)
}

func TestStatus(t *testing.T) {
	det := &fakeDetector{payload: twoDetections}
	model := &fakeModel{healthErr: unavailableErr("language model")}
	s := newService(t, det, model, WithHealthTimeout(time.Second), WithStoragePaths(t.TempDir()))
	ctx := context.Background()

	_, err := s.IngestReport(ctx, models.ReportInput{ID: "r1", Content: "airfield activity"})
	require.NoError(t, err)
	_, err = s.Detect(ctx, image, 0.25)
	require.NoError(t, err)

	st := s.Status(ctx)
	assert.Equal(t, "healthy", st.Services[ServiceVision].Status)
	assert.Equal(t, "unavailable", st.Services[ServiceLLM].Status)
	assert.NotEmpty(t, st.Services[ServiceLLM].Error)
	assert.Equal(t, retrieval.BackendChromem, st.RetrievalBackend)
	assert.Equal(t, 1, st.Reports)
	assert.Equal(t, 1, st.Chunks)
	assert.Equal(t, 2, st.Detections)
	require.NotNil(t, st.DetectionsAt)
}

func TestStatus_BackendCountFailure(t *testing.T) {
	s := New(Deps{
		Detector:  &fakeDetector{},
		Model:     &fakeModel{},
		Retriever: retrieval.NewRetriever(failingBackend{}),
	})
	st := s.Status(context.Background())
	assert.Equal(t, "failing", st.RetrievalBackend)
	assert.Equal(t, 0, st.Reports)
	assert.Nil(t, st.DetectionsAt)
}
