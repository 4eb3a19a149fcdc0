package entity

// EnrichmentResult は1回の情報照会の結果です。生成後は変更しません。
type EnrichmentResult struct {
	Label  string // 照会した正規名
	Text   string // 回答本文、または失敗時の診断メッセージ
	Failed bool   // 照会に失敗した場合 true
}

// InfoRequest はリモート情報サービスへのリクエストです。
type InfoRequest struct {
	CanonicalName string
	Prompt        string
	Model         string
	Temperature   float32
}

// OutcomeKind は出力ストリームのエントリ種別です。
type OutcomeKind int

const (
	// OutcomeEnriched は照会結果（成功・失敗を含む）です。
	OutcomeEnriched OutcomeKind = iota
	// OutcomeFrameFailed はフレーム単位の失敗（取得・デコード・推論）です。
	OutcomeFrameFailed
	// OutcomeNoEmblem は静止画で校章が検出されなかったことを表します。
	OutcomeNoEmblem
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeEnriched:
		return "enriched"
	case OutcomeFrameFailed:
		return "frame_failed"
	case OutcomeNoEmblem:
		return "no_emblem"
	default:
		return "unknown"
	}
}

// Outcome は出力ストリームの1エントリです。
type Outcome struct {
	Kind       OutcomeKind
	FrameIndex int
	Origin     string
	Result     EnrichmentResult
}
