package dto

import (
	"time"

	"emblem_backend/internal/feature/emblem/domain/entity"
	"emblem_backend/internal/feature/emblem/usecase"
)

// ErrorResponse はエラーレスポンスDTOです。
type ErrorResponse struct {
	Error string `json:"error"`
}

// ScrapeRequest はWebページ画像識別のリクエストDTOです。
type ScrapeRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// DetectionResponse は1件の検出結果です。
type DetectionResponse struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
	X1         float32 `json:"x1"`
	Y1         float32 `json:"y1"`
	X2         float32 `json:"x2"`
	Y2         float32 `json:"y2"`
}

// OutcomeResponse は出力ストリームの1エントリです。
type OutcomeResponse struct {
	Kind    string `json:"kind"`
	Frame   int    `json:"frame"`
	Origin  string `json:"origin,omitempty"`
	Label   string `json:"label,omitempty"`
	Text    string `json:"text"`
	Failed  bool   `json:"failed"`
	Display string `json:"display"` // 表示用テキストブロック
}

// DetectResponse は画像1枚の識別結果です。
type DetectResponse struct {
	SessionID      string              `json:"session_id"`
	Detections     []DetectionResponse `json:"detections"`
	Results        []OutcomeResponse   `json:"results"`
	AnnotatedImage string              `json:"annotated_image,omitempty"` // base64 JPEG
}

// SessionResponse は1回の実行の要約です。
type SessionResponse struct {
	SessionID     string            `json:"session_id"`
	Modality      string            `json:"modality"`
	Policy        string            `json:"policy"`
	FramesRead    int               `json:"frames_read"`
	FramesSampled int               `json:"frames_sampled"`
	Seen          []string          `json:"seen"`
	Stop          string            `json:"stop"`
	Failed        int               `json:"failed"`
	StartedAt     string            `json:"started_at"`
	FinishedAt    string            `json:"finished_at"`
	Results       []OutcomeResponse `json:"results"`
}

// NewDetections は検出結果をDTOへ変換します。
func NewDetections(dets []entity.Detection) []DetectionResponse {
	out := make([]DetectionResponse, 0, len(dets))
	for _, d := range dets {
		out = append(out, DetectionResponse{
			Label:      d.Label,
			Confidence: d.Confidence,
			X1:         d.Box.X1,
			Y1:         d.Box.Y1,
			X2:         d.Box.X2,
			Y2:         d.Box.Y2,
		})
	}
	return out
}

// NewOutcomes は出力エントリをDTOへ変換します。
func NewOutcomes(outcomes []entity.Outcome) []OutcomeResponse {
	out := make([]OutcomeResponse, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, OutcomeResponse{
			Kind:    o.Kind.String(),
			Frame:   o.FrameIndex,
			Origin:  o.Origin,
			Label:   o.Result.Label,
			Text:    o.Result.Text,
			Failed:  o.Result.Failed,
			Display: usecase.FormatOutcome(o),
		})
	}
	return out
}

// NewSessionResponse は実行結果をDTOへ変換します。
func NewSessionResponse(r *usecase.Report) SessionResponse {
	seen := r.Seen
	if seen == nil {
		seen = []string{}
	}
	return SessionResponse{
		SessionID:     r.SessionID,
		Modality:      r.Modality.String(),
		Policy:        r.Policy.String(),
		FramesRead:    r.FramesRead,
		FramesSampled: r.FramesSampled,
		Seen:          seen,
		Stop:          r.Stop.String(),
		Failed:        r.FailedCount(),
		StartedAt:     r.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:    r.FinishedAt.UTC().Format(time.RFC3339),
		Results:       NewOutcomes(r.Outcomes),
	}
}
