// Package gemini はGoogle Gemini APIを使用した大学情報照会クライアントを提供します。
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"emblem_backend/internal/feature/emblem/domain/entity"
	"emblem_backend/internal/feature/emblem/usecase"
)

const (
	// DefaultModel はGemini APIのデフォルトモデルです。
	DefaultModel = "gemini-2.5-flash"
)

// InfoService はGemini APIで大学情報を生成します。
type InfoService struct {
	models *genai.Models
}

// InfoServiceがusecase.InfoServiceを実装していることをコンパイル時に検証します。
var _ usecase.InfoService = (*InfoService)(nil)

// NewInfoService はADCを使用してInfoServiceの新しいインスタンスを生成します。
// 環境変数 GOOGLE_GENAI_USE_VERTEXAI, GOOGLE_CLOUD_PROJECT, GOOGLE_CLOUD_LOCATION
// または GOOGLE_API_KEY が必要です。
func NewInfoService(ctx context.Context) (*InfoService, error) {
	return NewInfoServiceWithConfig(ctx, nil)
}

// NewInfoServiceWithConfig は明示的なクライアント設定でInfoServiceを生成します。
func NewInfoServiceWithConfig(ctx context.Context, cfg *genai.ClientConfig) (*InfoService, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &InfoService{models: client.Models}, nil
}

// Ask はリクエストのモデルと温度でコンテンツを生成し、本文を返します。
func (g *InfoService) Ask(ctx context.Context, req entity.InfoRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}

	resp, err := g.models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini API request failed: %w", err)
	}
	return resp.Text(), nil
}
