// Package handler はemblemフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	_ "golang.org/x/image/webp"

	"emblem_backend/internal/feature/emblem/domain"
	"emblem_backend/internal/feature/emblem/domain/entity"
	"emblem_backend/internal/feature/emblem/transport/http/dto"
	"emblem_backend/internal/feature/emblem/usecase"
)

// MaxUploadBytes はアップロード画像の最大サイズです。
const MaxUploadBytes = 10 << 20

// DetectUsecase は静止画の識別ユースケースです。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type DetectUsecase interface {
	DetectImage(ctx context.Context, img image.Image, origin string, sink usecase.Sink) (*usecase.Report, entity.AnnotatedFrame, error)
}

// ScrapeUsecase はWebページ内画像の識別ユースケースです。
type ScrapeUsecase interface {
	ScrapePage(ctx context.Context, fetcher usecase.ImageFetcher, pageURL string, sink usecase.Sink) (*usecase.Report, error)
}

// SessionUsecase は保存済みセッションの参照ユースケースです。
type SessionUsecase interface {
	GetSession(ctx context.Context, sessionID string) (*usecase.Report, error)
}

// EmblemHandler は校章識別のHTTPリクエストを処理します。
type EmblemHandler struct {
	detect   DetectUsecase
	scrape   ScrapeUsecase
	fetcher  usecase.ImageFetcher
	sessions SessionUsecase
}

// NewEmblemHandler はEmblemHandlerの新しいインスタンスを生成します。sessions は nil でもかまいません。
func NewEmblemHandler(detect DetectUsecase, scrape ScrapeUsecase, fetcher usecase.ImageFetcher, sessions SessionUsecase) *EmblemHandler {
	return &EmblemHandler{detect: detect, scrape: scrape, fetcher: fetcher, sessions: sessions}
}

// Detect は画像をアップロードして校章を識別します。
//
// エンドポイント: POST /v1/emblem/detect
// Content-Type: multipart/form-data
// フィールド: image（画像ファイル、最大10MB）
func (h *EmblemHandler) Detect(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes+1<<20)

	file, err := c.FormFile("image")
	if err != nil {
		slog.Warn("画像ファイルの取得に失敗", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "画像ファイルが必要です"})
		return
	}
	if file.Size > MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: "画像サイズは10MBまでです"})
		return
	}

	f, err := file.Open()
	if err != nil {
		slog.Error("画像ファイルのオープンに失敗", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "画像の読み込みに失敗しました"})
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("画像ファイルのクローズに失敗", "error", err)
		}
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("画像データの読み取りに失敗", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "画像の読み込みに失敗しました"})
		return
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Warn("画像のデコードに失敗", "error", err, "filename", file.Filename)
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "画像形式に対応していません"})
		return
	}

	report, frame, err := h.detect.DetectImage(c.Request.Context(), img, file.Filename, nil)
	if err != nil {
		slog.Error("校章識別に失敗", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "校章識別に失敗しました"})
		return
	}

	resp := dto.DetectResponse{
		SessionID:  report.SessionID,
		Detections: dto.NewDetections(frame.Detections),
		Results:    dto.NewOutcomes(report.Outcomes),
	}
	if frame.Image != nil {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: 90}); err != nil {
			slog.Warn("描画画像のエンコードに失敗", "error", err)
		} else {
			resp.AnnotatedImage = base64.StdEncoding.EncodeToString(buf.Bytes())
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Scrape はWebページ内の画像をすべて識別します。
//
// エンドポイント: POST /v1/emblem/scrape
// Content-Type: application/json
func (h *EmblemHandler) Scrape(c *gin.Context) {
	var req dto.ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("スクレイプリクエストのバリデーションに失敗", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "有効なURLが必要です"})
		return
	}

	report, err := h.scrape.ScrapePage(c.Request.Context(), h.fetcher, req.URL, nil)
	if err != nil {
		slog.Error("ページの取得に失敗", "error", err, "url", req.URL)
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{Error: "ページの取得に失敗しました"})
		return
	}

	c.JSON(http.StatusOK, dto.NewSessionResponse(report))
}

// GetSession は保存済みの実行結果を返します。
//
// エンドポイント: GET /v1/emblem/sessions/:id
func (h *EmblemHandler) GetSession(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "セッションの保存は無効です"})
		return
	}

	id := c.Param("id")
	report, err := h.sessions.GetSession(c.Request.Context(), id)
	switch {
	case errors.Is(err, domain.ErrInvalidSessionID):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "セッションIDが不正です"})
		return
	case errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "セッションが見つかりません"})
		return
	case err != nil:
		slog.Error("セッションの取得に失敗", "error", err, "session_id", id)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "セッションの取得に失敗しました"})
		return
	}

	c.JSON(http.StatusOK, dto.NewSessionResponse(report))
}
