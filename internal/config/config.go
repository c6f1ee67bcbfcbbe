// Package config provides configuration loading and structs for the geoint server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Vision     VisionConfig     `yaml:"vision"`
	LLM        LLMConfig        `yaml:"llm"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Projection ProjectionConfig `yaml:"projection"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// VisionConfig points at the object-detection model server.
type VisionConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	HealthTimeout     time.Duration `yaml:"health_timeout"`
	DefaultConfidence float64       `yaml:"default_confidence"`
}

// LLMConfig points at the OpenAI-compatible language-model endpoint.
type LLMConfig struct {
	BaseURL         string        `yaml:"base_url"`
	ChatModel       string        `yaml:"chat_model"`
	VisionModel     string        `yaml:"vision_model"`
	Timeout         time.Duration `yaml:"timeout"`
	HealthTimeout   time.Duration `yaml:"health_timeout"`
	MaxTokens       int           `yaml:"max_tokens"`
	VisionMaxTokens int           `yaml:"vision_max_tokens"`
	Temperature     float64       `yaml:"temperature"`
	// Persona replaces the built-in system preamble when set.
	Persona string `yaml:"persona"`
}

// RetrievalConfig selects and tunes the similarity-search backend.
type RetrievalConfig struct {
	// Backend is "local" (sqlite + bleve + vector index) or "chromem".
	Backend              string        `yaml:"backend"`
	Collection           string        `yaml:"collection"`
	DefaultContextWindow int           `yaml:"default_context_window"`
	MaxContextWindow     int           `yaml:"max_context_window"`
	PreviewChars         int           `yaml:"preview_chars"`
	MaxSnippetChars      int           `yaml:"max_snippet_chars"`
	Timeout              time.Duration `yaml:"timeout"`
}

// ProjectionConfig holds the pixel to lon/lat linear projection constants. Fields
// are pointers so an explicit zero (an origin on the equator, a zero scale) is
// kept; nil fields are filled by ApplyDefaults.
type ProjectionConfig struct {
	OriginLon      *float64 `yaml:"origin_lon,omitempty"`
	OriginLat      *float64 `yaml:"origin_lat,omitempty"`
	CenterX        *float64 `yaml:"center_x,omitempty"`
	CenterY        *float64 `yaml:"center_y,omitempty"`
	ScaleX         *float64 `yaml:"scale_x,omitempty"`
	ScaleY         *float64 `yaml:"scale_y,omitempty"`
	FootprintScale *float64 `yaml:"footprint_scale,omitempty"`
}

// Float returns a pointer to v, for building ProjectionConfig literals.
func Float(v float64) *float64 {
	return &v
}

// StorageConfig holds paths for database and indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
	ChromemPath     string `yaml:"chromem_path"`
}

// EmbeddingConfig holds ONNX embedder settings.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// IngestConfig holds report ingestion settings.
type IngestConfig struct {
	ReportsDirs []string `yaml:"reports_dirs"`
	Extensions  []string `yaml:"extensions"`
	ChunkSize   int      `yaml:"chunk_size"`
	ChunkStride int      `yaml:"chunk_stride"`
	Watch       bool     `yaml:"watch"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// EnabledOrDefault returns whether /metrics is served; defaults to true when unset.
func (m *MetricsConfig) EnabledOrDefault() bool {
	if m.Enabled != nil {
		return *m.Enabled
	}
	return true
}

// Load reads and parses the config file at path, applies defaults and environment
// overrides, and expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg, os.LookupEnv)
	ApplyDefaults(&cfg)
	cfg.expandPaths(filepath.Dir(path))

	return &cfg, nil
}

// Default returns a config built only from defaults and environment overrides.
// Relative paths resolve against the working directory.
func Default() *Config {
	var cfg Config
	ApplyEnv(&cfg, os.LookupEnv)
	ApplyDefaults(&cfg)
	if cwd, err := os.Getwd(); err == nil {
		cfg.expandPaths(cwd)
	}
	return &cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) expandPaths(configDir string) {
	c.Storage.DatabasePath = expandPath(c.Storage.DatabasePath, configDir)
	c.Storage.BleveIndexPath = expandPath(c.Storage.BleveIndexPath, configDir)
	c.Storage.VectorIndexPath = expandPath(c.Storage.VectorIndexPath, configDir)
	c.Storage.ChromemPath = expandPath(c.Storage.ChromemPath, configDir)
	c.Embedding.ModelPath = expandPath(c.Embedding.ModelPath, configDir)
	for i := range c.Ingest.ReportsDirs {
		c.Ingest.ReportsDirs[i] = expandPath(c.Ingest.ReportsDirs[i], configDir)
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	return filepath.Join(configDir, path)
}
