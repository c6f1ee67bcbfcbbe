package config

import "time"

// DefaultPersona is the fixed system preamble for analyst chat.
const DefaultPersona = "You are a GEOINT analyst assistant deployed on Azure Local infrastructure. " +
	"You help analysts interpret geospatial intelligence data, satellite imagery analysis results, " +
	"and tactical information. You have access to local intelligence reports and AI detection results. " +
	"Be concise, professional, and use standard intelligence terminology. " +
	"When referencing source documents, cite them as [Source N]."

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 180 * time.Second
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 32 << 20
	}

	if cfg.Vision.BaseURL == "" {
		cfg.Vision.BaseURL = "http://localhost:8000"
	}
	if cfg.Vision.Timeout == 0 {
		cfg.Vision.Timeout = 60 * time.Second
	}
	if cfg.Vision.HealthTimeout == 0 {
		cfg.Vision.HealthTimeout = 10 * time.Second
	}
	if cfg.Vision.DefaultConfidence == 0 {
		cfg.Vision.DefaultConfidence = 0.25
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:5273"
	}
	if cfg.LLM.ChatModel == "" {
		cfg.LLM.ChatModel = "phi-4-mini"
	}
	if cfg.LLM.VisionModel == "" {
		cfg.LLM.VisionModel = "microsoft/Phi-3.5-vision-instruct"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 120 * time.Second
	}
	if cfg.LLM.HealthTimeout == 0 {
		cfg.LLM.HealthTimeout = 10 * time.Second
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.VisionMaxTokens == 0 {
		cfg.LLM.VisionMaxTokens = 512
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.3
	}
	if cfg.LLM.Persona == "" {
		cfg.LLM.Persona = DefaultPersona
	}

	if cfg.Retrieval.Backend == "" {
		cfg.Retrieval.Backend = "local"
	}
	if cfg.Retrieval.Collection == "" {
		cfg.Retrieval.Collection = "geoint_reports"
	}
	if cfg.Retrieval.DefaultContextWindow == 0 {
		cfg.Retrieval.DefaultContextWindow = 5
	}
	if cfg.Retrieval.MaxContextWindow == 0 {
		cfg.Retrieval.MaxContextWindow = 20
	}
	if cfg.Retrieval.PreviewChars == 0 {
		cfg.Retrieval.PreviewChars = 200
	}
	if cfg.Retrieval.MaxSnippetChars == 0 {
		cfg.Retrieval.MaxSnippetChars = 2000
	}
	if cfg.Retrieval.Timeout == 0 {
		cfg.Retrieval.Timeout = 10 * time.Second
	}

	// Demo calibration around a 640x640 detector input; not a georeferencing transform.
	defaultFloat(&cfg.Projection.OriginLon, -77.0365)
	defaultFloat(&cfg.Projection.OriginLat, 38.8977)
	defaultFloat(&cfg.Projection.CenterX, 320)
	defaultFloat(&cfg.Projection.CenterY, 320)
	defaultFloat(&cfg.Projection.ScaleX, 0.0001)
	defaultFloat(&cfg.Projection.ScaleY, -0.0001)
	defaultFloat(&cfg.Projection.FootprintScale, 0.00001)

	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/db/reports.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "./data/indices/bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "./data/indices/vectors.bin"
	}
	if cfg.Storage.ChromemPath == "" {
		cfg.Storage.ChromemPath = "./data/chromem"
	}

	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "./data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}

	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".txt", ".md", ".rst", ".json", ".pdf", ".docx", ".xlsx"}
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 500
	}
	if cfg.Ingest.ChunkStride == 0 {
		cfg.Ingest.ChunkStride = 450
	}
}

func defaultFloat(field **float64, v float64) {
	if *field == nil {
		*field = Float(v)
	}
}
