package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"emblem_backend/internal/feature/emblem/domain"
	"emblem_backend/internal/feature/emblem/domain/entity"
	"emblem_backend/internal/shared/ratelimiter"
)

const (
	// DefaultModel は情報サービスのデフォルトモデル識別子です。
	DefaultModel = "hunyuan-pro"
	// Temperature は照会時のサンプリング温度です（固定）。
	Temperature float32 = 0.7
	// FailurePrefix は照会失敗時の診断メッセージの接頭辞です。
	FailurePrefix = "识别失败："

	// EnrichmentPromptTemplate は大学情報照会のプロンプトテンプレートです。
	EnrichmentPromptTemplate = `你是一个大学信息查询助手。请根据提供的大学名称“%s”返回如下结构化信息：
- 学校名（中文）
- 所属国家
- QS 世界大学排名（若无请写“无”）
- 软科大学排名
- 官网链接

请严格按如下格式输出：
学校名：...
国家：...
QS排名：...
软科排名：...
官网链接：...

此外，还请给出这个学校的相关百科、近年来的获得奖项、杰出校友，
并请你查询后给出该大学近年高考浙江省投档线分数；

`
	commentaryRequest = "最后，请配上几句你对这个大学的评价。"
	forecastRequest   = "最后，请配上几句你对这个大学的评价，以及预测一下这个大学在未来十年中的发展趋势。"
)

// InfoService はリモート情報サービスのインターフェースです。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type InfoService interface {
	// Ask はリクエストを送信し、第一候補の回答本文を返します。
	Ask(ctx context.Context, req entity.InfoRequest) (string, error)
}

// EnrichmentResolver は正規名からプロンプトを組み立て、情報サービスへ照会します。
// 失敗は呼び出し元へ伝播させず、Failed=true の結果として返します。
type EnrichmentResolver struct {
	svc      InfoService
	model    string
	limiter  ratelimiter.Limiter
	forecast bool
}

// EnrichOption はEnrichmentResolverの設定を変更します。
type EnrichOption func(*EnrichmentResolver)

// WithRateLimiter は照会前に待機するレートリミッターを設定します。
func WithRateLimiter(l ratelimiter.Limiter) EnrichOption {
	return func(r *EnrichmentResolver) { r.limiter = l }
}

// WithForecast はプロンプトに今後十年の発展予測を含めます。
func WithForecast() EnrichOption {
	return func(r *EnrichmentResolver) { r.forecast = true }
}

// NewEnrichmentResolver はEnrichmentResolverの新しいインスタンスを生成します。
// model が空の場合は DefaultModel を使います。
func NewEnrichmentResolver(svc InfoService, model string, opts ...EnrichOption) *EnrichmentResolver {
	if model == "" {
		model = DefaultModel
	}
	r := &EnrichmentResolver{svc: svc, model: model}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Model は照会に使うモデル識別子を返します。
func (r *EnrichmentResolver) Model() string {
	return r.model
}

// BuildPrompt は正規名を埋め込んだプロンプトを返します。
func BuildPrompt(canonicalName string, forecast bool) string {
	closing := commentaryRequest
	if forecast {
		closing = forecastRequest
	}
	return fmt.Sprintf(EnrichmentPromptTemplate, canonicalName) + closing
}

// Enrich は正規名について1回照会し、結果を返します。
func (r *EnrichmentResolver) Enrich(ctx context.Context, canonicalName string) entity.EnrichmentResult {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return entity.EnrichmentResult{
				Label:  canonicalName,
				Text:   FailurePrefix + err.Error(),
				Failed: true,
			}
		}
	}

	req := entity.InfoRequest{
		CanonicalName: canonicalName,
		Prompt:        BuildPrompt(canonicalName, r.forecast),
		Model:         r.model,
		Temperature:   Temperature,
	}

	text, err := r.ask(ctx, req)
	if err != nil {
		slog.Warn("enrichment failed", "label", canonicalName, "model", r.model, "error", err)
		return entity.EnrichmentResult{
			Label:  canonicalName,
			Text:   FailurePrefix + err.Error(),
			Failed: true,
		}
	}
	return entity.EnrichmentResult{Label: canonicalName, Text: text}
}

// ask は情報サービスを呼び出し、パニックや空の回答もエラーとして扱います。
func (r *EnrichmentResolver) ask(ctx context.Context, req entity.InfoRequest) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", domain.ErrEnrichmentTransport, p)
		}
	}()

	if r.svc == nil {
		return "", fmt.Errorf("%w: no information service configured", domain.ErrEnrichmentTransport)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrEnrichmentTransport, err)
	}

	text, err = r.svc.Ask(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrEnrichmentTransport, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty response", domain.ErrEnrichmentTransport)
	}
	return text, nil
}
