package usecase

import (
	"time"

	"emblem_backend/internal/feature/emblem/domain/entity"
)

// StopReason は実行が終了した理由です。
type StopReason int

const (
	StopEndOfStream StopReason = iota // 入力の終端
	StopSessionDone                   // OnceThenStop で照会が完了
	StopRequested                     // 利用者による終了要求
	StopCancelled                     // コンテキストのキャンセル
	StopReadFailed                    // フレーム取得の失敗
)

func (s StopReason) String() string {
	switch s {
	case StopEndOfStream:
		return "end_of_stream"
	case StopSessionDone:
		return "session_done"
	case StopRequested:
		return "stop_requested"
	case StopCancelled:
		return "cancelled"
	case StopReadFailed:
		return "read_failed"
	default:
		return "unknown"
	}
}

// Report は1回の実行の結果です。
type Report struct {
	SessionID      string
	Modality       entity.Modality
	Policy         entity.QueryPolicy
	DecimationRate int
	FramesRead     int
	FramesSampled  int
	Seen           []string // 正規名（初出順）
	Outcomes       []entity.Outcome
	Stop           StopReason
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Results は照会結果のみを出力順に返します。
func (r *Report) Results() []entity.EnrichmentResult {
	out := make([]entity.EnrichmentResult, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Kind == entity.OutcomeEnriched {
			out = append(out, o.Result)
		}
	}
	return out
}

// FailedCount は失敗した照会とフレームの件数を返します。
func (r *Report) FailedCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Result.Failed {
			n++
		}
	}
	return n
}

// FormatOutcome は出力エントリを利用者向けのテキストブロックにします。
func FormatOutcome(o entity.Outcome) string {
	switch {
	case o.Kind == entity.OutcomeNoEmblem:
		return o.Result.Text
	case o.Result.Failed:
		return "⚠️ " + o.Result.Text
	default:
		return "🎓 校徽：" + o.Result.Label + "\n" + o.Result.Text
	}
}
