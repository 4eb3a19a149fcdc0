package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"emblem_backend/internal/feature/emblem/domain"
	"emblem_backend/internal/feature/emblem/domain/entity"
)

const (
	// FrameFailurePrefix は画像の取得・デコード失敗の診断メッセージの接頭辞です。
	FrameFailurePrefix = "图片加载失败："
	// InferenceFailurePrefix は推論失敗の診断メッセージの接頭辞です。
	InferenceFailurePrefix = "推理失败："
	// NoEmblemText は校章が検出されなかった静止画に付けるメッセージです。
	NoEmblemText = "未检测到大学Logo"
)

// Detector は1フレームから検出結果を返す検出器のインターフェースです。
// 実装は画像を変更してはいけません。
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]entity.Detection, error)
}

// Annotator は検出セットを画像のコピーに描画します。
type Annotator interface {
	Annotate(img image.Image, detections []entity.Detection) image.Image
}

// Enricher は正規名から照会結果を返します。失敗も結果として返します。
type Enricher interface {
	Enrich(ctx context.Context, canonicalName string) entity.EnrichmentResult
}

// FrameSource はフレームを順に返す入力ソースです。
// 終端では domain.ErrEndOfStream を返します。
type FrameSource interface {
	Next(ctx context.Context) (entity.Frame, error)
	Close() error
}

// Sink は描画済みフレームと出力エントリを受け取ります。
// domain.ErrStopRequested を返すと実行を終了します。
type Sink interface {
	EmitFrame(ctx context.Context, frame entity.AnnotatedFrame) error
	EmitOutcome(ctx context.Context, outcome entity.Outcome) error
}

// ReportRecorder は実行結果を永続化します。
type ReportRecorder interface {
	SaveReport(ctx context.Context, report *Report) error
}

// RunOptions は1回の実行の設定です。
type RunOptions struct {
	Modality       entity.Modality
	Policy         entity.QueryPolicy // PolicyDefault の場合は入力種別のデフォルト
	DecimationRate int                // 0以下の場合は入力種別のデフォルト
	MinConfidence  float32            // この値未満の検出を捨てる（0は無効）
}

// DefaultRunOptions は入力種別ごとのデフォルト設定を返します。
func DefaultRunOptions(m entity.Modality) RunOptions {
	return RunOptions{
		Modality:       m,
		Policy:         m.DefaultPolicy(),
		DecimationRate: m.DefaultDecimation(),
	}
}

// Pipeline はサンプリング・検出・重複排除・照会・描画を1本のループで実行します。
// 検出器とラベル表は読み取り専用で、複数の実行から共有できます。
type Pipeline struct {
	detector  Detector
	labels    *LabelResolver
	enricher  Enricher
	annotator Annotator
	recorder  ReportRecorder
	minConf   float32
	newID     func() string
	now       func() time.Time
}

// PipelineOption はPipelineの設定を変更します。
type PipelineOption func(*Pipeline)

// WithRecorder は実行結果の保存先を設定します。
func WithRecorder(r ReportRecorder) PipelineOption {
	return func(p *Pipeline) { p.recorder = r }
}

// WithMinConfidence は RunOptions.MinConfidence が未指定の実行に使う閾値を設定します。
func WithMinConfidence(c float32) PipelineOption {
	return func(p *Pipeline) { p.minConf = c }
}

// NewPipeline はPipelineの新しいインスタンスを生成します。annotator は nil でも構いません。
func NewPipeline(detector Detector, labels *LabelResolver, enricher Enricher, annotator Annotator, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		detector:  detector,
		labels:    labels,
		enricher:  enricher,
		annotator: annotator,
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run は1回の実行が専有する状態です。
type run struct {
	opts    RunOptions
	sink    Sink
	state   *entity.SessionState
	sampler *Sampler
	report  *Report
	stop    bool
}

// Run はソースが尽きるか、セッションが完了するか、キャンセルされるまでフレームを処理します。
// フレーム単位・ラベル単位の失敗は出力エントリとして報告し、エラーとしては返しません。
func (p *Pipeline) Run(ctx context.Context, src FrameSource, opts RunOptions, sink Sink) (*Report, error) {
	if src == nil {
		return nil, fmt.Errorf("frame source is required")
	}
	if p.detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	defer func() {
		if err := src.Close(); err != nil {
			slog.Warn("failed to close frame source", "error", err)
		}
	}()

	opts.Policy = opts.Policy.Resolve(opts.Modality)
	if opts.DecimationRate <= 0 {
		opts.DecimationRate = opts.Modality.DefaultDecimation()
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = p.minConf
	}
	if sink == nil {
		sink = SinkFuncs{}
	}

	r := &run{
		opts:    opts,
		sink:    sink,
		state:   entity.NewSessionState(),
		sampler: NewSampler(opts.DecimationRate),
		report: &Report{
			SessionID:      p.newID(),
			Modality:       opts.Modality,
			Policy:         opts.Policy,
			DecimationRate: opts.DecimationRate,
			StartedAt:      p.now(),
		},
	}

	slog.Info("pipeline started",
		"session_id", r.report.SessionID,
		"modality", opts.Modality.String(),
		"policy", opts.Policy.String(),
		"decimation_rate", opts.DecimationRate,
	)

	r.report.Stop = p.loop(ctx, src, r)
	r.report.Seen = r.state.Labels()
	r.report.FinishedAt = p.now()

	slog.Info("pipeline finished",
		"session_id", r.report.SessionID,
		"stop", r.report.Stop.String(),
		"frames_read", r.report.FramesRead,
		"frames_sampled", r.report.FramesSampled,
		"seen", len(r.report.Seen),
		"outcomes", len(r.report.Outcomes),
	)

	p.record(ctx, r.report)
	return r.report, nil
}

func (p *Pipeline) loop(ctx context.Context, src FrameSource, r *run) StopReason {
	for {
		if ctx.Err() != nil {
			return StopCancelled
		}

		frame, err := src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrEndOfStream):
				return StopEndOfStream
			case errors.Is(err, domain.ErrFrameUnavailable):
				r.report.FramesRead++
				slog.Warn("frame unavailable", "index", frame.Index, "origin", frame.Origin, "error", err)
				p.emit(ctx, r, entity.Outcome{
					Kind:       entity.OutcomeFrameFailed,
					FrameIndex: frame.Index,
					Origin:     frame.Origin,
					Result:     entity.EnrichmentResult{Text: FrameFailurePrefix + err.Error(), Failed: true},
				})
				if r.stop {
					return StopRequested
				}
				continue
			case ctx.Err() != nil:
				return StopCancelled
			default:
				slog.Warn("frame source unreadable", "error", fmt.Errorf("%w: %w", domain.ErrFrameRead, err))
				return StopReadFailed
			}
		}
		r.report.FramesRead++

		if r.sampler.ShouldSample(frame.Index) {
			p.sample(ctx, frame, r)
		}

		if err := r.sink.EmitFrame(ctx, p.annotate(frame, r.sampler)); err != nil {
			if errors.Is(err, domain.ErrStopRequested) {
				return StopRequested
			}
			slog.Warn("failed to emit frame", "index", frame.Index, "error", err)
		}
		if r.stop {
			return StopRequested
		}
		if r.state.Done() {
			return StopSessionDone
		}
	}
}

// sample はサンプリング対象フレームで検出を行い、方針に従って照会します。
func (p *Pipeline) sample(ctx context.Context, frame entity.Frame, r *run) {
	detections, err := p.detect(ctx, frame.Image, r.opts.MinConfidence)
	if err != nil {
		slog.Warn("inference failed", "index", frame.Index, "origin", frame.Origin, "error", err)
		p.emit(ctx, r, entity.Outcome{
			Kind:       entity.OutcomeFrameFailed,
			FrameIndex: frame.Index,
			Origin:     frame.Origin,
			Result:     entity.EnrichmentResult{Text: InferenceFailurePrefix + err.Error(), Failed: true},
		})
		return
	}
	r.sampler.Record(frame.Index, detections)
	r.report.FramesSampled++

	switch r.opts.Policy {
	case entity.CollectOnly:
		for _, d := range detections {
			r.state.Observe(p.labels.Resolve(d.Label))
		}

	case entity.OnceThenStop:
		if len(detections) == 0 {
			return
		}
		for _, d := range detections {
			name := p.labels.Resolve(d.Label)
			if r.state.Seen(name) {
				continue
			}
			p.enrich(ctx, frame, name, r)
			r.state.Observe(name)
		}
		r.state.MarkDone()

	case entity.PerDetectionAlways:
		if len(detections) == 0 {
			if r.opts.Modality == entity.ModalityImage || r.opts.Modality == entity.ModalityImageSet {
				p.emit(ctx, r, entity.Outcome{
					Kind:       entity.OutcomeNoEmblem,
					FrameIndex: frame.Index,
					Origin:     frame.Origin,
					Result:     entity.EnrichmentResult{Text: NoEmblemText},
				})
			}
			return
		}
		for _, d := range detections {
			name := p.labels.Resolve(d.Label)
			p.enrich(ctx, frame, name, r)
			r.state.Observe(name)
		}
	}
}

func (p *Pipeline) detect(ctx context.Context, img image.Image, minConfidence float32) ([]entity.Detection, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: empty frame", domain.ErrModelInference)
	}
	detections, err := p.detector.Detect(ctx, img)
	if err != nil {
		if errors.Is(err, domain.ErrModelInference) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrModelInference, err)
	}
	if minConfidence <= 0 {
		return detections, nil
	}
	kept := make([]entity.Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence >= minConfidence {
			kept = append(kept, d)
		}
	}
	return kept, nil
}

func (p *Pipeline) enrich(ctx context.Context, frame entity.Frame, name string, r *run) {
	var result entity.EnrichmentResult
	if p.enricher == nil {
		result = entity.EnrichmentResult{Label: name, Text: FailurePrefix + "no enricher configured", Failed: true}
	} else {
		result = p.enricher.Enrich(ctx, name)
	}
	p.emit(ctx, r, entity.Outcome{
		Kind:       entity.OutcomeEnriched,
		FrameIndex: frame.Index,
		Origin:     frame.Origin,
		Result:     result,
	})
}

func (p *Pipeline) emit(ctx context.Context, r *run, o entity.Outcome) {
	r.report.Outcomes = append(r.report.Outcomes, o)
	if err := r.sink.EmitOutcome(ctx, o); err != nil {
		if errors.Is(err, domain.ErrStopRequested) {
			r.stop = true
			return
		}
		slog.Warn("failed to emit outcome", "index", o.FrameIndex, "error", err)
	}
}

// annotate は直近のサンプリング結果をフレームに描画します。検出セットは再計算しません。
func (p *Pipeline) annotate(frame entity.Frame, s *Sampler) entity.AnnotatedFrame {
	detections, idx := s.Current()
	af := entity.AnnotatedFrame{
		Frame:       frame,
		Detections:  detections,
		SampleIndex: idx,
		Image:       frame.Image,
	}
	if idx >= 0 && len(detections) > 0 && p.annotator != nil && frame.Image != nil {
		af.Image = p.annotator.Annotate(frame.Image, detections)
	}
	return af
}

func (p *Pipeline) record(ctx context.Context, report *Report) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.SaveReport(context.WithoutCancel(ctx), report); err != nil {
		slog.Error("failed to save report", "session_id", report.SessionID, "error", err)
	}
}

// DetectImage は1枚の静止画を PerDetectionAlways で処理し、結果と描画済みフレームを返します。
func (p *Pipeline) DetectImage(ctx context.Context, img image.Image, origin string, sink Sink) (*Report, entity.AnnotatedFrame, error) {
	capture := &lastFrameSink{next: sink}
	report, err := p.Run(ctx, NewImageSource(origin, img), DefaultRunOptions(entity.ModalityImage), capture)
	return report, capture.last, err
}

// ScrapePage はWebページ内の画像をすべて PerDetectionAlways で処理します。
func (p *Pipeline) ScrapePage(ctx context.Context, fetcher ImageFetcher, pageURL string, sink Sink) (*Report, error) {
	src, err := NewRemoteImageSource(ctx, fetcher, pageURL)
	if err != nil {
		return nil, err
	}
	slog.Info("page images extracted", "url", pageURL, "count", src.Len())
	return p.Run(ctx, src, DefaultRunOptions(entity.ModalityImageSet), sink)
}

// SinkFuncs は関数で構成するSinkです。nil のフィールドは何もしません。
type SinkFuncs struct {
	Frame   func(ctx context.Context, frame entity.AnnotatedFrame) error
	Outcome func(ctx context.Context, outcome entity.Outcome) error
}

// EmitFrame は Frame を呼び出します。
func (s SinkFuncs) EmitFrame(ctx context.Context, frame entity.AnnotatedFrame) error {
	if s.Frame == nil {
		return nil
	}
	return s.Frame(ctx, frame)
}

// EmitOutcome は Outcome を呼び出します。
func (s SinkFuncs) EmitOutcome(ctx context.Context, outcome entity.Outcome) error {
	if s.Outcome == nil {
		return nil
	}
	return s.Outcome(ctx, outcome)
}

// lastFrameSink は最後に出力されたフレームを保持し、後段のSinkへ転送します。
type lastFrameSink struct {
	next Sink
	last entity.AnnotatedFrame
}

func (s *lastFrameSink) EmitFrame(ctx context.Context, frame entity.AnnotatedFrame) error {
	s.last = frame
	if s.next == nil {
		return nil
	}
	return s.next.EmitFrame(ctx, frame)
}

func (s *lastFrameSink) EmitOutcome(ctx context.Context, outcome entity.Outcome) error {
	if s.next == nil {
		return nil
	}
	return s.next.EmitOutcome(ctx, outcome)
}
