package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"emblem_backend/internal/feature/emblem/domain"
)

// ReportFinder は保存済みの実行結果を取得するインターフェースです。
type ReportFinder interface {
	FindReport(ctx context.Context, sessionID string) (*Report, error)
}

// SessionUsecase は保存済みセッションの参照を扱います。
type SessionUsecase struct {
	finder ReportFinder
}

// NewSessionUsecase はSessionUsecaseの新しいインスタンスを生成します。
func NewSessionUsecase(finder ReportFinder) *SessionUsecase {
	return &SessionUsecase{finder: finder}
}

// GetSession はセッションIDを検証し、実行結果を返します。
func (u *SessionUsecase) GetSession(ctx context.Context, sessionID string) (*Report, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSessionID, err)
	}
	return u.finder.FindReport(ctx, sessionID)
}
