// Package chatcompletion はOpenAI互換のChat Completions APIを使った情報照会クライアントを提供します。
// 混元（Hunyuan）のOpenAI互換エンドポイントをデフォルトとします。
package chatcompletion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"emblem_backend/internal/feature/emblem/domain/entity"
	"emblem_backend/internal/feature/emblem/usecase"
	platformhttp "emblem_backend/internal/platform/http"
)

const (
	// DefaultBaseURL は混元のOpenAI互換APIのベースURLです。
	DefaultBaseURL = "https://api.hunyuan.cloud.tencent.com/v1"
	// DefaultTimeout は1回の照会のタイムアウトです。
	DefaultTimeout = 60 * time.Second
)

// ErrNoChoices は応答に候補が1件も含まれていなかったことを示します。
var ErrNoChoices = errors.New("no choices in response")

// Config はクライアントの接続設定です。
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client はChat Completions APIへ1回のリクエストを送り、第一候補の本文を返します。
type Client struct {
	api *openai.Client
}

// ClientがInfoServiceを実装していることをコンパイル時に検証します。
var _ usecase.InfoService = (*Client)(nil)

// NewClient はClientの新しいインスタンスを生成します。httpClient が nil の場合は
// cfg.Timeout のクライアントを作成します。
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = platformhttp.NewHTTPClient(cfg.Timeout)
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = httpClient
	return &Client{api: openai.NewClientWithConfig(oc)}, nil
}

// Ask はプロンプトを1件のユーザーメッセージとして送信します。
func (c *Client) Ask(ctx context.Context, req entity.InfoRequest) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: req.Temperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("chat completion error (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", fmt.Errorf("chat completion returned status %d: %w", reqErr.HTTPStatusCode, err)
		}
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}
