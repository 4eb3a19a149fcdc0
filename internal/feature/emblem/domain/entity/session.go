package entity

import (
	"fmt"
	"strings"
)

// QueryPolicy は検出結果から情報照会を行うかどうかを決める方針です。
type QueryPolicy int

const (
	// PolicyDefault は入力種別のデフォルト方針（Modality.DefaultPolicy）を使うことを表すゼロ値です。
	PolicyDefault QueryPolicy = iota
	// PerDetectionAlways は処理したフレームの全検出について毎回照会します。
	PerDetectionAlways
	// OnceThenStop は最初に検出があったフレームの異なるラベルだけを照会し、セッションを終了します。
	OnceThenStop
	// CollectOnly は照会せずにラベルを収集し、終了時に一覧を報告します。
	CollectOnly
)

func (p QueryPolicy) String() string {
	switch p {
	case PolicyDefault:
		return "default"
	case PerDetectionAlways:
		return "per_detection_always"
	case OnceThenStop:
		return "once_then_stop"
	case CollectOnly:
		return "collect_only"
	default:
		return fmt.Sprintf("QueryPolicy(%d)", int(p))
	}
}

// ParseQueryPolicy は文字列表現から QueryPolicy を返します。
func ParseQueryPolicy(s string) (QueryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return PolicyDefault, nil
	case "per_detection_always", "always":
		return PerDetectionAlways, nil
	case "once_then_stop", "once":
		return OnceThenStop, nil
	case "collect_only", "collect":
		return CollectOnly, nil
	}
	return PolicyDefault, fmt.Errorf("unknown query policy %q", s)
}

// Modality は入力の種類です。
type Modality int

const (
	ModalityCamera Modality = iota
	ModalityVideo
	ModalityImage
	ModalityImageSet
)

func (m Modality) String() string {
	switch m {
	case ModalityCamera:
		return "camera"
	case ModalityVideo:
		return "video"
	case ModalityImage:
		return "image"
	case ModalityImageSet:
		return "image_set"
	default:
		return fmt.Sprintf("Modality(%d)", int(m))
	}
}

// DefaultPolicy は入力種別ごとの照会方針です。PolicyDefault は返しません。
func (m Modality) DefaultPolicy() QueryPolicy {
	switch m {
	case ModalityCamera:
		return OnceThenStop
	case ModalityVideo:
		return CollectOnly
	default:
		return PerDetectionAlways
	}
}

// Resolve は p が PolicyDefault の場合に m のデフォルト方針を返します。
func (p QueryPolicy) Resolve(m Modality) QueryPolicy {
	if p == PolicyDefault {
		return m.DefaultPolicy()
	}
	return p
}

// DefaultDecimation は入力種別ごとの推論間隔です。静止画は全フレームを推論します。
func (m Modality) DefaultDecimation() int {
	switch m {
	case ModalityCamera, ModalityVideo:
		return 10
	default:
		return 1
	}
}

// SessionState は1回の実行で解決済みのラベル集合と完了フラグを保持します。
// 1つの実行だけが所有し、実行間で共有してはいけません。
type SessionState struct {
	seen  map[string]struct{}
	order []string
	done  bool
}

// NewSessionState は空のセッション状態を生成します。
func NewSessionState() *SessionState {
	return &SessionState{seen: make(map[string]struct{})}
}

// Observe はラベルを記録し、初出であれば true を返します。seen は縮小しません。
func (s *SessionState) Observe(label string) bool {
	if _, ok := s.seen[label]; ok {
		return false
	}
	s.seen[label] = struct{}{}
	s.order = append(s.order, label)
	return true
}

// Seen はラベルが記録済みかどうかを返します。
func (s *SessionState) Seen(label string) bool {
	_, ok := s.seen[label]
	return ok
}

// Labels は記録済みラベルを初出順で返します。
func (s *SessionState) Labels() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// MarkDone はセッションを完了にします。完了後は検出器を呼び出しません。
func (s *SessionState) MarkDone() {
	s.done = true
}

// Done はセッションが完了しているかどうかを返します。
func (s *SessionState) Done() bool {
	return s.done
}
