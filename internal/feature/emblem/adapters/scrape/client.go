// Package scrape はWebページから画像を抽出・取得するクライアントを提供します。
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	_ "golang.org/x/image/webp"
	"golang.org/x/net/html"

	"emblem_backend/internal/feature/emblem/usecase"
	platformhttp "emblem_backend/internal/platform/http"
)

const (
	// DefaultUserAgent はブラウザを装うUser-Agentです。
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
	// DefaultTimeout はページと画像それぞれの取得タイムアウトです。
	DefaultTimeout = 10 * time.Second

	maxPageBytes  = 8 << 20
	maxImageBytes = 20 << 20
)

// Client はページ内の <img> を列挙し、画像を取得・デコードします。
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// ClientがImageFetcherを実装していることをコンパイル時に検証します。
var _ usecase.ImageFetcher = (*Client)(nil)

// NewClient はClientの新しいインスタンスを生成します。httpClient が nil の場合は
// DefaultTimeout で、公開アドレス以外（ループバック、プライベート、メタデータなど）への
// 接続を拒否するクライアントを使います。ページも画像も同じクライアントで取得します。
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = platformhttp.NewHTTPClient(DefaultTimeout,
			platformhttp.WithUserAgent(DefaultUserAgent),
			platformhttp.WithPublicOnly(),
		)
	}
	return &Client{httpClient: httpClient, userAgent: DefaultUserAgent}
}

// ImageURLs はページを取得し、<img src> を出現順に絶対URLへ変換して返します。
func (c *Client) ImageURLs(ctx context.Context, pageURL string) ([]string, error) {
	body, err := c.get(ctx, pageURL, maxPageBytes)
	if err != nil {
		return nil, err
	}
	return ExtractImageURLs(pageURL, bytes.NewReader(body))
}

// FetchImage は画像を取得してデコードします。JPEG/PNG/GIF/WebPに対応します。
func (c *Client) FetchImage(ctx context.Context, imageURL string) (image.Image, error) {
	body, err := c.get(ctx, imageURL, maxImageBytes)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", imageURL, err)
	}
	return img, nil
}

func (c *Client) get(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q in %s", req.URL.Scheme, url)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request to %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("body of %s exceeds %d bytes", url, limit)
	}
	return body, nil
}

// ExtractImageURLs はHTMLから <img> の src 属性を出現順に抽出し、pageURL を基準に解決します。
// src が空の <img> は無視します。
func ExtractImageURLs(pageURL string, r io.Reader) ([]string, error) {
	z := html.NewTokenizer(r)
	var urls []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, fmt.Errorf("failed to parse html: %w", err)
			}
			return urls, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "src" {
					if src := strings.TrimSpace(string(val)); src != "" {
						urls = append(urls, ResolveURL(pageURL, src))
					}
					break
				}
				if !more {
					break
				}
			}
		}
	}
}

// ResolveURL は src をページのオリジン（scheme://host）基準で絶対URLにします。
//   - "//host/x" は "https:" を付与
//   - "/x" はオリジン + src
//   - "http" で始まるものはそのまま
//   - それ以外はオリジン + "/" + src
func ResolveURL(pageURL, src string) string {
	switch {
	case strings.HasPrefix(src, "//"):
		return "https:" + src
	case strings.HasPrefix(src, "/"):
		return origin(pageURL) + src
	case strings.HasPrefix(src, "http"):
		return src
	default:
		return origin(pageURL) + "/" + src
	}
}

func origin(pageURL string) string {
	parts := strings.SplitN(pageURL, "/", 4)
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, "/")
}
