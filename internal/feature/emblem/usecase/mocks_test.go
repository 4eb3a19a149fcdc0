package usecase_test

import (
	"context"
	"errors"
	"image"
	"image/color"

	"emblem_backend/internal/feature/emblem/domain/entity"
	"emblem_backend/internal/feature/emblem/usecase"
)

// ErrAPI はモックと期待値の間で共有されるセンチネルエラーです。
var ErrAPI = errors.New("api error")

// mockDetector はDetectorインターフェースのモック実装です。
type mockDetector struct {
	DetectFunc  func(ctx context.Context, img image.Image) ([]entity.Detection, error)
	DetectCalls int
}

func (m *mockDetector) Detect(ctx context.Context, img image.Image) ([]entity.Detection, error) {
	m.DetectCalls++
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, img)
	}
	return nil, errors.New("DetectFunc is not implemented")
}

// mockEnricher は照会された正規名を順に記録するEnricherのモック実装です。
type mockEnricher struct {
	EnrichFunc func(ctx context.Context, name string) entity.EnrichmentResult
	Names      []string
}

func (m *mockEnricher) Enrich(ctx context.Context, name string) entity.EnrichmentResult {
	m.Names = append(m.Names, name)
	if m.EnrichFunc != nil {
		return m.EnrichFunc(ctx, name)
	}
	return entity.EnrichmentResult{Label: name, Text: "info:" + name}
}

// mockInfoService はInfoServiceインターフェースのモック実装です。
type mockInfoService struct {
	AskFunc  func(ctx context.Context, req entity.InfoRequest) (string, error)
	AskCalls int
	Requests []entity.InfoRequest
}

func (m *mockInfoService) Ask(ctx context.Context, req entity.InfoRequest) (string, error) {
	m.AskCalls++
	m.Requests = append(m.Requests, req)
	if m.AskFunc != nil {
		return m.AskFunc(ctx, req)
	}
	return "", errors.New("AskFunc is not implemented")
}

// stubAnnotator は描画の代わりに呼び出し回数だけを記録します。
type stubAnnotator struct {
	Calls int
}

func (a *stubAnnotator) Annotate(img image.Image, detections []entity.Detection) image.Image {
	a.Calls++
	return img
}

// recordingSink は出力されたフレームとエントリを記録します。
type recordingSink struct {
	Frames   []entity.AnnotatedFrame
	Outcomes []entity.Outcome

	FrameErr   func(frame entity.AnnotatedFrame) error
	OutcomeErr func(outcome entity.Outcome) error
}

func (s *recordingSink) EmitFrame(ctx context.Context, frame entity.AnnotatedFrame) error {
	s.Frames = append(s.Frames, frame)
	if s.FrameErr != nil {
		return s.FrameErr(frame)
	}
	return nil
}

func (s *recordingSink) EmitOutcome(ctx context.Context, outcome entity.Outcome) error {
	s.Outcomes = append(s.Outcomes, outcome)
	if s.OutcomeErr != nil {
		return s.OutcomeErr(outcome)
	}
	return nil
}

// mockRecorder はReportRecorderインターフェースのモック実装です。
type mockRecorder struct {
	Reports []*usecase.Report
	Err     error
}

func (m *mockRecorder) SaveReport(ctx context.Context, report *usecase.Report) error {
	m.Reports = append(m.Reports, report)
	return m.Err
}

// mockFetcher はImageFetcherインターフェースのモック実装です。
type mockFetcher struct {
	URLs       []string
	URLsErr    error
	FetchErrs  map[string]error
	FetchCalls int
}

func (m *mockFetcher) ImageURLs(ctx context.Context, pageURL string) ([]string, error) {
	return m.URLs, m.URLsErr
}

func (m *mockFetcher) FetchImage(ctx context.Context, imageURL string) (image.Image, error) {
	m.FetchCalls++
	if err := m.FetchErrs[imageURL]; err != nil {
		return nil, err
	}
	return testImage(), nil
}

// failingSource は指定フレーム数の後に読み取りエラーを返すソースです。
type failingSource struct {
	frames int
	next   int
	err    error
	closed bool
}

func (s *failingSource) Next(ctx context.Context) (entity.Frame, error) {
	if s.next >= s.frames {
		return entity.Frame{}, s.err
	}
	i := s.next
	s.next++
	return entity.Frame{Index: i, Image: testImage()}, nil
}

func (s *failingSource) Close() error {
	s.closed = true
	return nil
}

// testImage は検出器に渡すための小さな画像を返します。
func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.White)
	return img
}

// frames は n 枚のフレームを返すソースを生成します。
func frames(n int) *usecase.SliceSource {
	imgs := make([]image.Image, n)
	for i := range imgs {
		imgs[i] = testImage()
	}
	return usecase.NewSliceSource(imgs, nil)
}

// detectionsByFrame はフレーム番号ごとの検出結果を返す検出器を生成します。
// 検出器はフレーム番号を知らないため、呼び出し順から番号を復元します。
func detectionsByFrame(rate int, table map[int][]string) *mockDetector {
	call := 0
	return &mockDetector{
		DetectFunc: func(ctx context.Context, img image.Image) ([]entity.Detection, error) {
			index := call * rate
			call++
			return dets(table[index]...), nil
		},
	}
}

func dets(labels ...string) []entity.Detection {
	if len(labels) == 0 {
		return nil
	}
	out := make([]entity.Detection, len(labels))
	for i, l := range labels {
		out[i] = entity.Detection{
			Label:      l,
			Confidence: 0.9,
			Box:        entity.BoundingBox{X1: 1, Y1: 1, X2: 4, Y2: 4},
		}
	}
	return out
}

func enrichedNames(outcomes []entity.Outcome) []string {
	var out []string
	for _, o := range outcomes {
		if o.Kind == entity.OutcomeEnriched {
			out = append(out, o.Result.Label)
		}
	}
	return out
}

var _ usecase.Sink = (*recordingSink)(nil)
var _ usecase.FrameSource = (*failingSource)(nil)
