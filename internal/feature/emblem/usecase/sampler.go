package usecase

import "emblem_backend/internal/feature/emblem/domain/entity"

// DefaultDecimationRate は推論を行うフレーム間隔のデフォルト値です。
const DefaultDecimationRate = 10

// Sampler はフレーム列を間引き、直近の検出セットを保持します。
// サンプリング間のフレームには直近の検出セットをそのまま渡します。
type Sampler struct {
	rate      int
	last      []entity.Detection
	lastIndex int
}

// NewSampler は指定間隔のSamplerを生成します。0以下の場合はDefaultDecimationRateを使います。
func NewSampler(rate int) *Sampler {
	if rate <= 0 {
		rate = DefaultDecimationRate
	}
	return &Sampler{rate: rate, lastIndex: -1}
}

// Rate は推論間隔を返します。
func (s *Sampler) Rate() int {
	return s.rate
}

// ShouldSample はフレーム番号 index で検出器を呼ぶべきかを返します。
func (s *Sampler) ShouldSample(index int) bool {
	return index%s.rate == 0
}

// Record はサンプリングしたフレームの検出セットを保持します。
func (s *Sampler) Record(index int, detections []entity.Detection) {
	s.last = detections
	s.lastIndex = index
}

// Current は直近の検出セットとそのフレーム番号を返します。未サンプリングの場合は -1 です。
func (s *Sampler) Current() ([]entity.Detection, int) {
	return s.last, s.lastIndex
}
