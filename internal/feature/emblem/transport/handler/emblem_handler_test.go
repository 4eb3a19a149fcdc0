package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emblem_backend/internal/feature/emblem/domain"
	"emblem_backend/internal/feature/emblem/domain/entity"
	"emblem_backend/internal/feature/emblem/transport/handler"
	"emblem_backend/internal/feature/emblem/transport/http/dto"
	"emblem_backend/internal/feature/emblem/usecase"
)

// mockDetectUsecase はDetectUsecaseインターフェースのモック実装です。
type mockDetectUsecase struct {
	DetectImageFunc  func(ctx context.Context, img image.Image, origin string) (*usecase.Report, entity.AnnotatedFrame, error)
	DetectImageCalls int
}

func (m *mockDetectUsecase) DetectImage(ctx context.Context, img image.Image, origin string, sink usecase.Sink) (*usecase.Report, entity.AnnotatedFrame, error) {
	m.DetectImageCalls++
	return m.DetectImageFunc(ctx, img, origin)
}

// mockScrapeUsecase はScrapeUsecaseインターフェースのモック実装です。
type mockScrapeUsecase struct {
	ScrapePageFunc func(ctx context.Context, pageURL string) (*usecase.Report, error)
}

func (m *mockScrapeUsecase) ScrapePage(ctx context.Context, fetcher usecase.ImageFetcher, pageURL string, sink usecase.Sink) (*usecase.Report, error) {
	return m.ScrapePageFunc(ctx, pageURL)
}

// mockSessionUsecase はSessionUsecaseインターフェースのモック実装です。
type mockSessionUsecase struct {
	GetSessionFunc func(ctx context.Context, id string) (*usecase.Report, error)
}

func (m *mockSessionUsecase) GetSession(ctx context.Context, id string) (*usecase.Report, error) {
	return m.GetSessionFunc(ctx, id)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// createMultipartRequest はテスト用のマルチパートリクエストを生成するヘルパー関数です。
func createMultipartRequest(t *testing.T, fieldName, fileName string, content []byte) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(fieldName, fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/emblem/detect", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func sampleReport() *usecase.Report {
	start := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	return &usecase.Report{
		SessionID:     "0b6a3a8e-7c1f-4d8e-9f43-2f0d6c8a1b2c",
		Modality:      entity.ModalityImageSet,
		Policy:        entity.PerDetectionAlways,
		FramesRead:    2,
		FramesSampled: 1,
		Seen:          []string{"北京大学"},
		Outcomes: []entity.Outcome{
			{Kind: entity.OutcomeEnriched, FrameIndex: 0, Origin: "https://u.edu/a.png", Result: entity.EnrichmentResult{Label: "北京大学", Text: "学校名：北京大学"}},
			{Kind: entity.OutcomeFrameFailed, FrameIndex: 1, Origin: "https://u.edu/b.png", Result: entity.EnrichmentResult{Text: "图片加载失败：404", Failed: true}},
		},
		Stop:       usecase.StopEndOfStream,
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
	}
}

func newRouter(h *handler.EmblemHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/emblem/detect", h.Detect)
	r.POST("/v1/emblem/scrape", h.Scrape)
	r.GET("/v1/emblem/sessions/:id", h.GetSession)
	return r
}

func TestEmblemHandler_Detect(t *testing.T) {
	tests := []struct {
		name           string
		setupRequest   func(t *testing.T) *http.Request
		mockFunc       func(ctx context.Context, img image.Image, origin string) (*usecase.Report, entity.AnnotatedFrame, error)
		expectedStatus int
		expectedCalls  int
		validate       func(t *testing.T, body []byte)
	}{
		{
			name: "success: detections and annotated image",
			setupRequest: func(t *testing.T) *http.Request {
				return createMultipartRequest(t, "image", "logo.png", pngBytes(t))
			},
			mockFunc: func(ctx context.Context, img image.Image, origin string) (*usecase.Report, entity.AnnotatedFrame, error) {
				det := entity.Detection{Label: "pku", Confidence: 0.9, Box: entity.BoundingBox{X1: 1, Y1: 1, X2: 5, Y2: 4}}
				return &usecase.Report{
						SessionID: "sid",
						Outcomes: []entity.Outcome{{
							Kind:   entity.OutcomeEnriched,
							Origin: origin,
							Result: entity.EnrichmentResult{Label: "北京大学", Text: "学校名：北京大学"},
						}},
					}, entity.AnnotatedFrame{
						Frame:      entity.Frame{Origin: origin, Image: img},
						Detections: []entity.Detection{det},
						Image:      img,
					}, nil
			},
			expectedStatus: http.StatusOK,
			expectedCalls:  1,
			validate: func(t *testing.T, body []byte) {
				var resp dto.DetectResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, "sid", resp.SessionID)
				require.Len(t, resp.Detections, 1)
				assert.Equal(t, "pku", resp.Detections[0].Label)
				require.Len(t, resp.Results, 1)
				assert.Equal(t, "🎓 校徽：北京大学\n学校名：北京大学", resp.Results[0].Display)
				assert.Equal(t, "logo.png", resp.Results[0].Origin)

				raw, err := base64.StdEncoding.DecodeString(resp.AnnotatedImage)
				require.NoError(t, err)
				decoded, err := jpeg.Decode(bytes.NewReader(raw))
				require.NoError(t, err)
				assert.Equal(t, image.Rect(0, 0, 8, 6), decoded.Bounds())
			},
		},
		{
			name: "error: missing image field",
			setupRequest: func(t *testing.T) *http.Request {
				return createMultipartRequest(t, "file", "logo.png", pngBytes(t))
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "error: not an image",
			setupRequest: func(t *testing.T) *http.Request {
				return createMultipartRequest(t, "image", "notes.txt", []byte("hello"))
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "error: file too large",
			setupRequest: func(t *testing.T) *http.Request {
				return createMultipartRequest(t, "image", "big.png", make([]byte, handler.MaxUploadBytes+1))
			},
			expectedStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name: "error: pipeline failure",
			setupRequest: func(t *testing.T) *http.Request {
				return createMultipartRequest(t, "image", "logo.png", pngBytes(t))
			},
			mockFunc: func(ctx context.Context, img image.Image, origin string) (*usecase.Report, entity.AnnotatedFrame, error) {
				return nil, entity.AnnotatedFrame{}, errors.New("detector is required")
			},
			expectedStatus: http.StatusInternalServerError,
			expectedCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detect := &mockDetectUsecase{DetectImageFunc: tt.mockFunc}
			r := newRouter(handler.NewEmblemHandler(detect, &mockScrapeUsecase{}, nil, nil))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, tt.setupRequest(t))

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.expectedCalls, detect.DetectImageCalls)
			if tt.validate != nil {
				tt.validate(t, w.Body.Bytes())
			}
		})
	}
}

func TestEmblemHandler_Scrape(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		mockFunc       func(ctx context.Context, pageURL string) (*usecase.Report, error)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "success: per image results",
			body: `{"url":"https://u.edu/news"}`,
			mockFunc: func(ctx context.Context, pageURL string) (*usecase.Report, error) {
				return sampleReport(), nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   "图片加载失败：404",
		},
		{
			name:           "error: missing url",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "有効なURLが必要です",
		},
		{
			name:           "error: invalid url",
			body:           `{"url":"not a url"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "error: page unavailable",
			body: `{"url":"https://u.edu/news"}`,
			mockFunc: func(ctx context.Context, pageURL string) (*usecase.Report, error) {
				return nil, errors.New("status 500")
			},
			expectedStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scrape := &mockScrapeUsecase{ScrapePageFunc: tt.mockFunc}
			r := newRouter(handler.NewEmblemHandler(&mockDetectUsecase{}, scrape, nil, nil))

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/emblem/scrape", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.Contains(t, w.Body.String(), tt.expectedBody)
			}
		})
	}
}

func TestEmblemHandler_GetSession(t *testing.T) {
	tests := []struct {
		name           string
		sessions       handler.SessionUsecase
		expectedStatus int
		validate       func(t *testing.T, body []byte)
	}{
		{
			name: "success",
			sessions: &mockSessionUsecase{GetSessionFunc: func(ctx context.Context, id string) (*usecase.Report, error) {
				return sampleReport(), nil
			}},
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, body []byte) {
				var resp dto.SessionResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, "image_set", resp.Modality)
				assert.Equal(t, "per_detection_always", resp.Policy)
				assert.Equal(t, "end_of_stream", resp.Stop)
				assert.Equal(t, 1, resp.Failed)
				assert.Equal(t, "2025-09-01T10:00:00Z", resp.StartedAt)
				assert.Equal(t, []string{"北京大学"}, resp.Seen)
				require.Len(t, resp.Results, 2)
				assert.Equal(t, "frame_failed", resp.Results[1].Kind)
			},
		},
		{
			name: "error: invalid id",
			sessions: &mockSessionUsecase{GetSessionFunc: func(ctx context.Context, id string) (*usecase.Report, error) {
				return nil, domain.ErrInvalidSessionID
			}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "error: not found",
			sessions: &mockSessionUsecase{GetSessionFunc: func(ctx context.Context, id string) (*usecase.Report, error) {
				return nil, domain.ErrSessionNotFound
			}},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "error: storage failure",
			sessions: &mockSessionUsecase{GetSessionFunc: func(ctx context.Context, id string) (*usecase.Report, error) {
				return nil, errors.New("db down")
			}},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "error: persistence disabled",
			sessions:       nil,
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(handler.NewEmblemHandler(&mockDetectUsecase{}, &mockScrapeUsecase{}, nil, tt.sessions))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/emblem/sessions/0b6a3a8e-7c1f-4d8e-9f43-2f0d6c8a1b2c", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.validate != nil {
				tt.validate(t, w.Body.Bytes())
			}
		})
	}
}
