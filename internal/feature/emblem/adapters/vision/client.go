// Package vision はGoogle Cloud Vision APIのロゴ検出を校章検出器として提供します。
package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	gvision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"

	"emblem_backend/internal/feature/emblem/domain"
	"emblem_backend/internal/feature/emblem/domain/entity"
	"emblem_backend/internal/feature/emblem/usecase"
)

// DefaultMaxResults は1画像あたりのロゴ検出の最大件数です。
const DefaultMaxResults = 10

// annotator はBatchAnnotateImagesだけを必要とするため、テストで差し替えられるように抽象化しています。
type annotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
}

// LogoDetector はCloud Visionのロゴ検出結果をDetectionに変換します。
// ラベルはVisionが返すロゴの説明文です。
type LogoDetector struct {
	client annotator
	closer func() error
}

// LogoDetectorがDetectorを実装していることをコンパイル時に検証します。
var _ usecase.Detector = (*LogoDetector)(nil)

// NewLogoDetector はADCを使用してLogoDetectorの新しいインスタンスを生成します。
func NewLogoDetector(ctx context.Context) (*LogoDetector, error) {
	client, err := gvision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return &LogoDetector{client: client, closer: client.Close}, nil
}

// Close はVision APIクライアントを解放します。
func (v *LogoDetector) Close() error {
	if v.closer == nil {
		return nil
	}
	return v.closer()
}

// Detect は画像をJPEGにエンコードしてロゴ検出を行います。
func (v *LogoDetector) Detect(ctx context.Context, img image.Image) ([]entity.Detection, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("%w: failed to encode frame: %w", domain.ErrModelInference, err)
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: buf.Bytes()},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_LOGO_DETECTION, MaxResults: DefaultMaxResults},
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: vision API request failed: %w", domain.ErrModelInference, err)
	}
	if len(resp.Responses) == 0 {
		return nil, nil
	}
	if resp.Responses[0].Error != nil {
		return nil, fmt.Errorf("%w: vision API error: %s", domain.ErrModelInference, resp.Responses[0].Error.Message)
	}

	origin := img.Bounds().Min
	logos := resp.Responses[0].LogoAnnotations
	detections := make([]entity.Detection, 0, len(logos))
	for _, logo := range logos {
		detections = append(detections, entity.Detection{
			Label:      logo.Description,
			Confidence: logo.Score,
			Box:        boxFromPoly(logo.BoundingPoly, origin),
		})
	}
	return detections, nil
}

// boxFromPoly は頂点の外接矩形を返します。Visionは0の座標を省略するため欠けた値は0として扱います。
func boxFromPoly(poly *visionpb.BoundingPoly, origin image.Point) entity.BoundingBox {
	if poly == nil || len(poly.Vertices) == 0 {
		return entity.BoundingBox{}
	}
	minX, minY := poly.Vertices[0].GetX(), poly.Vertices[0].GetY()
	maxX, maxY := minX, minY
	for _, p := range poly.Vertices[1:] {
		minX = min(minX, p.GetX())
		minY = min(minY, p.GetY())
		maxX = max(maxX, p.GetX())
		maxY = max(maxY, p.GetY())
	}
	return entity.BoundingBox{
		X1: float32(minX) + float32(origin.X),
		Y1: float32(minY) + float32(origin.Y),
		X2: float32(maxX) + float32(origin.X),
		Y2: float32(maxY) + float32(origin.Y),
	}
}
