package config

import (
	"strconv"
	"strings"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides file values with environment variables. It runs before ApplyDefaults
// so that unset variables leave defaults in charge.
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	if v, ok := nonEmpty(lookup, "FOUNDRY_URL"); ok {
		cfg.LLM.BaseURL = v
	}
	if v, ok := nonEmpty(lookup, "FOUNDRY_MODEL"); ok {
		cfg.LLM.ChatModel = v
	}
	if v, ok := nonEmpty(lookup, "VISION_MODEL"); ok {
		cfg.LLM.VisionModel = v
	}
	// YOLO_URL is the older name; VISION_API_URL wins when both are set.
	if v, ok := nonEmpty(lookup, "YOLO_URL"); ok {
		cfg.Vision.BaseURL = v
	}
	if v, ok := nonEmpty(lookup, "VISION_API_URL"); ok {
		cfg.Vision.BaseURL = v
	}
	if v, ok := nonEmpty(lookup, "REPORTS_DIR"); ok {
		cfg.Ingest.ReportsDirs = strings.Split(v, ",")
	}
	if v, ok := nonEmpty(lookup, "RETRIEVAL_BACKEND"); ok {
		cfg.Retrieval.Backend = v
	}
	if v, ok := nonEmpty(lookup, "GEOINT_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

func nonEmpty(lookup LookupFunc, key string) (string, bool) {
	v, ok := lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
