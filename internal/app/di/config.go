// Package di provides dependency injection factories for creating application components.
package di

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"emblem_backend/internal/feature/emblem/adapters/chatcompletion"
	"emblem_backend/internal/feature/emblem/adapters/gemini"
	"emblem_backend/internal/feature/emblem/usecase"
)

const (
	DetectorONNX   = "onnx"
	DetectorVision = "vision"

	ProviderHunyuan = "hunyuan"
	ProviderGemini  = "gemini"
)

// Config holds the detector and enrichment settings read from the environment.
type Config struct {
	Detector      string
	ModelPath     string
	ModelClasses  string
	ONNXLibrary   string
	MinConfidence float32
	LabelTable    string
	FontPath      string

	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RatePerMin int
	CacheTTL   time.Duration
}

// LoadConfig reads DETECTOR, MODEL_*, ENRICH_* and related variables.
// Malformed numeric values are logged and replaced with defaults.
func LoadConfig() Config {
	cfg := Config{
		Detector:      strings.ToLower(getenv("DETECTOR", DetectorONNX)),
		ModelPath:     getenv("MODEL_PATH", "models/best.onnx"),
		ModelClasses:  os.Getenv("MODEL_CLASSES"),
		ONNXLibrary:   os.Getenv("ONNXRUNTIME_LIB"),
		MinConfidence: float32(parseFloat("MIN_CONFIDENCE", 0)),
		LabelTable:    os.Getenv("LABEL_TABLE"),
		FontPath:      os.Getenv("ANNOTATION_FONT"),

		Provider:   strings.ToLower(getenv("ENRICH_PROVIDER", ProviderHunyuan)),
		Model:      os.Getenv("ENRICH_MODEL"),
		BaseURL:    getenv("ENRICH_BASE_URL", chatcompletion.DefaultBaseURL),
		APIKey:     os.Getenv("ENRICH_API_KEY"),
		Timeout:    parseDuration("ENRICH_TIMEOUT", chatcompletion.DefaultTimeout),
		RatePerMin: parseInt("ENRICH_RATE_PER_MIN", 0),
		CacheTTL:   parseDuration("ENRICH_CACHE_TTL", 0),
	}
	if cfg.Model == "" {
		switch cfg.Provider {
		case ProviderGemini:
			cfg.Model = gemini.DefaultModel
		default:
			cfg.Model = usecase.DefaultModel
		}
	}
	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func parseFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		slog.Warn("invalid number in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func parseDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
