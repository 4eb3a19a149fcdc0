package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/genai"

	"emblem_backend/internal/feature/emblem/adapters/annotate"
	"emblem_backend/internal/feature/emblem/adapters/chatcompletion"
	"emblem_backend/internal/feature/emblem/adapters/gemini"
	"emblem_backend/internal/feature/emblem/adapters/labels"
	"emblem_backend/internal/feature/emblem/adapters/onnx"
	"emblem_backend/internal/feature/emblem/adapters/vision"
	"emblem_backend/internal/feature/emblem/usecase"
	"emblem_backend/internal/platform/cache"
	platformhttp "emblem_backend/internal/platform/http"
	"emblem_backend/internal/shared/ratelimiter"
)

// cacheRefreshHour is the local hour (Asia/Shanghai) at which cached answers expire by default.
const cacheRefreshHour = 4

// DetectorCloser is a Detector holding native or remote resources.
type DetectorCloser interface {
	usecase.Detector
	Close() error
}

// NewDetector creates the detector selected by cfg.Detector.
func NewDetector(ctx context.Context, cfg Config) (DetectorCloser, error) {
	switch cfg.Detector {
	case DetectorONNX:
		var classes []string
		if cfg.ModelClasses != "" {
			names, err := labels.LoadClassNames(cfg.ModelClasses)
			if err != nil {
				return nil, err
			}
			classes = names
		}
		d, err := onnx.NewDetector(onnx.Config{
			ModelPath:   cfg.ModelPath,
			LibraryPath: cfg.ONNXLibrary,
			Classes:     classes,
		})
		if err != nil {
			return nil, err
		}
		return d, nil
	case DetectorVision:
		d, err := vision.NewLogoDetector(ctx)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown DETECTOR %q", cfg.Detector)
	}
}

// NewLabelResolver loads the label table, overlaying LABEL_TABLE on the built-in entries.
func NewLabelResolver(cfg Config) (*usecase.LabelResolver, error) {
	table, err := labels.LoadTable(cfg.LabelTable)
	if err != nil {
		return nil, err
	}
	return usecase.NewLabelResolver(table), nil
}

// NewAnnotator creates the box renderer.
func NewAnnotator(cfg Config) (*annotate.Annotator, error) {
	return annotate.New(cfg.FontPath, 0)
}

// NewInfoService creates the remote information service selected by cfg.Provider.
// When rdb is non-nil, answers are cached in Redis.
func NewInfoService(ctx context.Context, cfg Config, rdb *redis.Client) (usecase.InfoService, error) {
	svc, err := newRemoteInfoService(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if rdb == nil {
		return svc, nil
	}
	if cfg.CacheTTL > 0 {
		return cache.NewCachingInfoService(rdb, cfg.CacheTTL, svc, "enrich"), nil
	}
	return cache.NewCachingInfoService(rdb, 0, svc, "enrich", cache.WithDailyRefresh(cacheRefreshHour)), nil
}

func newRemoteInfoService(ctx context.Context, cfg Config) (usecase.InfoService, error) {
	switch cfg.Provider {
	case ProviderHunyuan:
		c, err := chatcompletion.NewClient(chatcompletion.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		}, platformhttp.NewHTTPClient(cfg.Timeout))
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderGemini:
		if cfg.APIKey == "" {
			g, err := gemini.NewInfoService(ctx)
			if err != nil {
				return nil, err
			}
			return g, nil
		}
		g, err := gemini.NewInfoServiceWithConfig(ctx, &genai.ClientConfig{
			APIKey:     cfg.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: platformhttp.NewHTTPClient(cfg.Timeout),
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown ENRICH_PROVIDER %q", cfg.Provider)
	}
}

// NewEnrichmentResolver wires the info service with the rate limiter.
func NewEnrichmentResolver(svc usecase.InfoService, cfg Config, forecast bool) *usecase.EnrichmentResolver {
	opts := []usecase.EnrichOption{}
	if cfg.RatePerMin > 0 {
		opts = append(opts, usecase.WithRateLimiter(ratelimiter.NewRateLimiter(cfg.RatePerMin, time.Minute)))
	}
	if forecast {
		opts = append(opts, usecase.WithForecast())
	}
	return usecase.NewEnrichmentResolver(svc, cfg.Model, opts...)
}
