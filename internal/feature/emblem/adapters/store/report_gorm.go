// Package store はパイプラインの実行結果をGORMで永続化します。
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"emblem_backend/internal/feature/emblem/domain"
	"emblem_backend/internal/feature/emblem/domain/entity"
	"emblem_backend/internal/feature/emblem/usecase"
)

type reportGorm struct {
	db *gorm.DB
}

var (
	_ usecase.ReportRecorder = (*reportGorm)(nil)
	_ usecase.ReportFinder   = (*reportGorm)(nil)
)

// NewReportRepository は実行結果リポジトリを生成します。
func NewReportRepository(db *gorm.DB) *reportGorm {
	return &reportGorm{db: db}
}

// SessionModel は1回の実行を表します。
type SessionModel struct {
	ID             string    `gorm:"primaryKey;size:36"`
	Modality       string    `gorm:"size:16;not null;index"`
	Policy         string    `gorm:"size:32;not null"`
	DecimationRate int       `gorm:"not null"`
	FramesRead     int       `gorm:"not null;default:0"`
	FramesSampled  int       `gorm:"not null;default:0"`
	Seen           []string  `gorm:"serializer:json"`
	StopReason     string    `gorm:"size:32;not null"`
	StartedAt      time.Time `gorm:"not null;index"`
	FinishedAt     time.Time `gorm:"not null"`

	Outcomes []OutcomeModel `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

func (SessionModel) TableName() string {
	return "emblem_sessions"
}

// OutcomeModel は出力ストリームの1エントリです。Seq は出力順です。
type OutcomeModel struct {
	ID         uint   `gorm:"primaryKey"`
	SessionID  string `gorm:"size:36;not null;uniqueIndex:outcome_session_seq,priority:1"`
	Seq        int    `gorm:"not null;uniqueIndex:outcome_session_seq,priority:2"`
	Kind       string `gorm:"size:16;not null"`
	FrameIndex int    `gorm:"not null"`
	Origin     string `gorm:"type:text"`
	Label      string `gorm:"size:255"`
	Text       string `gorm:"type:text"`
	Failed     bool   `gorm:"not null;default:false"`
}

func (OutcomeModel) TableName() string {
	return "emblem_outcomes"
}

// Models はマイグレーション対象のモデル一覧です。
func Models() []any {
	return []any{&SessionModel{}, &OutcomeModel{}}
}

func toModel(r *usecase.Report) SessionModel {
	m := SessionModel{
		ID:             r.SessionID,
		Modality:       r.Modality.String(),
		Policy:         r.Policy.String(),
		DecimationRate: r.DecimationRate,
		FramesRead:     r.FramesRead,
		FramesSampled:  r.FramesSampled,
		Seen:           r.Seen,
		StopReason:     r.Stop.String(),
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}
	m.Outcomes = make([]OutcomeModel, 0, len(r.Outcomes))
	for i, o := range r.Outcomes {
		m.Outcomes = append(m.Outcomes, OutcomeModel{
			SessionID:  r.SessionID,
			Seq:        i,
			Kind:       o.Kind.String(),
			FrameIndex: o.FrameIndex,
			Origin:     o.Origin,
			Label:      o.Result.Label,
			Text:       o.Result.Text,
			Failed:     o.Result.Failed,
		})
	}
	return m
}

func toEntity(m SessionModel) *usecase.Report {
	r := &usecase.Report{
		SessionID:      m.ID,
		Modality:       parseModality(m.Modality),
		DecimationRate: m.DecimationRate,
		FramesRead:     m.FramesRead,
		FramesSampled:  m.FramesSampled,
		Seen:           m.Seen,
		Stop:           parseStopReason(m.StopReason),
		StartedAt:      m.StartedAt,
		FinishedAt:     m.FinishedAt,
	}
	if p, err := entity.ParseQueryPolicy(m.Policy); err == nil {
		r.Policy = p
	}
	r.Outcomes = make([]entity.Outcome, 0, len(m.Outcomes))
	for _, o := range m.Outcomes {
		r.Outcomes = append(r.Outcomes, entity.Outcome{
			Kind:       parseOutcomeKind(o.Kind),
			FrameIndex: o.FrameIndex,
			Origin:     o.Origin,
			Result:     entity.EnrichmentResult{Label: o.Label, Text: o.Text, Failed: o.Failed},
		})
	}
	return r
}

// SaveReport は実行結果と出力エントリを1トランザクションで保存します。
func (r *reportGorm) SaveReport(ctx context.Context, report *usecase.Report) error {
	if report == nil || report.SessionID == "" {
		return errors.New("report without session id")
	}
	m := toModel(report)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Outcomes").Create(&m).Error; err != nil {
			return fmt.Errorf("failed to save session %s: %w", report.SessionID, err)
		}
		if len(m.Outcomes) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&m.Outcomes, 100).Error; err != nil {
			return fmt.Errorf("failed to save outcomes of %s: %w", report.SessionID, err)
		}
		return nil
	})
}

// FindReport はセッションIDで実行結果を取得します。見つからない場合は domain.ErrSessionNotFound を返します。
func (r *reportGorm) FindReport(ctx context.Context, sessionID string) (*usecase.Report, error) {
	var m SessionModel
	err := r.db.WithContext(ctx).
		Preload("Outcomes", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&m, "id = ?", sessionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return toEntity(m), nil
}

func parseModality(s string) entity.Modality {
	for _, m := range []entity.Modality{entity.ModalityCamera, entity.ModalityVideo, entity.ModalityImage, entity.ModalityImageSet} {
		if m.String() == s {
			return m
		}
	}
	return entity.ModalityImage
}

func parseOutcomeKind(s string) entity.OutcomeKind {
	for _, k := range []entity.OutcomeKind{entity.OutcomeEnriched, entity.OutcomeFrameFailed, entity.OutcomeNoEmblem} {
		if k.String() == s {
			return k
		}
	}
	return entity.OutcomeEnriched
}

func parseStopReason(s string) usecase.StopReason {
	for _, r := range []usecase.StopReason{usecase.StopEndOfStream, usecase.StopSessionDone, usecase.StopRequested, usecase.StopCancelled, usecase.StopReadFailed} {
		if r.String() == s {
			return r
		}
	}
	return usecase.StopEndOfStream
}
