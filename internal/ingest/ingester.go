package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/geoint/internal/config"
	"github.com/hyperjump/geoint/internal/extract"
	"github.com/hyperjump/geoint/internal/gateway"
	"github.com/hyperjump/geoint/internal/models"
	"github.com/hyperjump/geoint/internal/reportid"
	"github.com/hyperjump/geoint/pkg/utils"
)

// Store is the part of a retrieval backend the ingester writes to.
type Store interface {
	Upsert(ctx context.Context, chunks []*models.ReportChunk) error
	ChunkIDs(ctx context.Context, reportID string) ([]string, error)
	DeleteChunks(ctx context.Context, ids []string) error
	DeleteReport(ctx context.Context, reportID string) error
}

// Ingester chunks reports and writes them to a Store.
type Ingester struct {
	store      Store
	chunker    *Chunker
	extractor  *extract.Extractor
	extensions []string
	logger     *zap.Logger
	onIngested func(models.IngestResult)
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Ingester) { i.logger = utils.NopIfNil(l) }
}

// WithOnIngested registers a callback run after every successful ingestion.
func WithOnIngested(fn func(models.IngestResult)) Option {
	return func(i *Ingester) { i.onIngested = fn }
}

// NewIngester creates an ingester using cfg's chunking and extension settings.
func NewIngester(store Store, cfg config.IngestConfig, opts ...Option) *Ingester {
	i := &Ingester{
		store:      store,
		chunker:    NewChunker(cfg.ChunkSize, cfg.ChunkStride),
		extractor:  extract.NewExtractor(),
		extensions: cfg.Extensions,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IngestText replaces the chunks of reportID with chunks of text. New chunks are
// written before stale ones are removed, so a failed write keeps the previous version.
func (i *Ingester) IngestText(ctx context.Context, reportID, sourceFile, text string) (models.IngestResult, error) {
	if reportID == "" {
		return models.IngestResult{}, gateway.InvalidInput("report id is required")
	}
	if strings.TrimSpace(text) == "" {
		return models.IngestResult{}, gateway.InvalidInput("report %q has no content", reportID)
	}
	chunks := i.chunker.Chunk(reportID, sourceFile, text)
	previous, err := i.store.ChunkIDs(ctx, reportID)
	if err != nil {
		return models.IngestResult{}, fmt.Errorf("list report %s: %w", reportID, err)
	}
	if err := i.store.Upsert(ctx, chunks); err != nil {
		return models.IngestResult{}, fmt.Errorf("store report %s: %w", reportID, err)
	}
	if stale := staleIDs(previous, chunks); len(stale) > 0 {
		if err := i.store.DeleteChunks(ctx, stale); err != nil {
			return models.IngestResult{}, fmt.Errorf("prune report %s: %w", reportID, err)
		}
	}
	i.logger.Info("report ingested",
		zap.String("report_id", reportID),
		zap.String("source_file", sourceFile),
		zap.Int("chunks", len(chunks)))
	res := models.IngestResult{ReportID: reportID, Chunks: len(chunks)}
	if i.onIngested != nil {
		i.onIngested(res)
	}
	return res, nil
}

// IngestReport ingests a report submitted over the API. A missing ID gets a random one.
func (i *Ingester) IngestReport(ctx context.Context, in models.ReportInput) (models.IngestResult, error) {
	id := reportid.Sanitize(in.ID)
	if in.ID != "" && id == "" {
		return models.IngestResult{}, gateway.InvalidInput("report id %q has no usable characters", in.ID)
	}
	if id == "" {
		id = reportid.New()
	}
	source := in.Title
	if source == "" {
		source = id
	}
	return i.IngestText(ctx, id, source, in.Content)
}

// IngestFile extracts and ingests one report file. The report ID is the base name
// without extension.
func (i *Ingester) IngestFile(ctx context.Context, path string) (models.IngestResult, error) {
	if !i.allowed(path) {
		return models.IngestResult{}, gateway.InvalidInput("extension %q not in allowed list", filepath.Ext(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return models.IngestResult{}, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return models.IngestResult{}, gateway.InvalidInput("not a regular file: %s", path)
	}
	text, err := i.extractor.Extract(path)
	if err != nil {
		return models.IngestResult{}, fmt.Errorf("extract %s: %w", path, err)
	}
	return i.IngestText(ctx, reportid.FromPath(path), filepath.Base(path), text)
}

// IngestDirectory ingests every allowed file directly inside dir, in name order.
// Subdirectories are not descended. Files that fail are skipped and their errors joined.
func (i *Ingester) IngestDirectory(ctx context.Context, dir string) ([]models.IngestResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].Name() < entries[b].Name() })

	var (
		results []models.IngestResult
		errs    []error
	)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		path := filepath.Join(dir, e.Name())
		if e.IsDir() || !i.allowed(path) {
			continue
		}
		res, err := i.IngestFile(ctx, path)
		if err != nil {
			i.logger.Warn("report ingest failed", zap.String("path", path), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// DeleteReport removes a report's chunks.
func (i *Ingester) DeleteReport(ctx context.Context, reportID string) error {
	if reportID == "" {
		return gateway.InvalidInput("report id is required")
	}
	if err := i.store.DeleteReport(ctx, reportID); err != nil {
		return fmt.Errorf("delete report %s: %w", reportID, err)
	}
	i.logger.Info("report deleted", zap.String("report_id", reportID))
	return nil
}

// DeleteFile removes the report ingested from path.
func (i *Ingester) DeleteFile(ctx context.Context, path string) error {
	return i.DeleteReport(ctx, reportid.FromPath(path))
}

// staleIDs returns the previous IDs not reused by chunks.
func staleIDs(previous []string, chunks []*models.ReportChunk) []string {
	current := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		current[c.ID] = true
	}
	var stale []string
	for _, id := range previous {
		if !current[id] {
			stale = append(stale, id)
		}
	}
	return stale
}

func (i *Ingester) allowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !i.extractor.Supported(ext) {
		return false
	}
	if len(i.extensions) == 0 {
		return true
	}
	for _, a := range i.extensions {
		if strings.ToLower("."+strings.TrimPrefix(a, ".")) == ext {
			return true
		}
	}
	return false
}
