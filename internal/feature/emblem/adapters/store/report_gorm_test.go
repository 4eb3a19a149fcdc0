package store

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"emblem_backend/internal/feature/emblem/domain"
	"emblem_backend/internal/feature/emblem/domain/entity"
	"emblem_backend/internal/feature/emblem/usecase"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(Models()...))
	return db
}

func sampleReport(id string) *usecase.Report {
	start := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	return &usecase.Report{
		SessionID:      id,
		Modality:       entity.ModalityImageSet,
		Policy:         entity.PerDetectionAlways,
		DecimationRate: 1,
		FramesRead:     3,
		FramesSampled:  2,
		Seen:           []string{"北京大学", "清华大学"},
		Outcomes: []entity.Outcome{
			{Kind: entity.OutcomeEnriched, FrameIndex: 0, Origin: "https://u.edu/a.png", Result: entity.EnrichmentResult{Label: "北京大学", Text: "学校名：北京大学"}},
			{Kind: entity.OutcomeFrameFailed, FrameIndex: 1, Origin: "https://u.edu/b.png", Result: entity.EnrichmentResult{Text: "图片加载失败：404", Failed: true}},
			{Kind: entity.OutcomeEnriched, FrameIndex: 2, Origin: "https://u.edu/c.png", Result: entity.EnrichmentResult{Label: "清华大学", Text: "识别失败：timeout", Failed: true}},
		},
		Stop:       usecase.StopEndOfStream,
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
	}
}

func TestReportRepository_SaveAndFind(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()

	want := sampleReport("11111111-1111-1111-1111-111111111111")
	require.NoError(t, repo.SaveReport(ctx, want))

	got, err := repo.FindReport(ctx, want.SessionID)
	require.NoError(t, err)

	assert.Equal(t, want.SessionID, got.SessionID)
	assert.Equal(t, want.Modality, got.Modality)
	assert.Equal(t, want.Policy, got.Policy)
	assert.Equal(t, want.DecimationRate, got.DecimationRate)
	assert.Equal(t, want.FramesRead, got.FramesRead)
	assert.Equal(t, want.FramesSampled, got.FramesSampled)
	assert.Equal(t, want.Seen, got.Seen)
	assert.Equal(t, want.Stop, got.Stop)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, want.Outcomes, got.Outcomes)
	assert.Equal(t, 2, got.FailedCount())
}

func TestReportRepository_LongOrigin(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()

	// scraped data: URIs resolve to very long origins
	origin := "https://u.edu/data:image/png;base64," + strings.Repeat("iVBORw0KGgo", 1000)
	require.Greater(t, len(origin), 2048)

	r := sampleReport("33333333-3333-3333-3333-333333333333")
	r.Outcomes[0].Origin = origin
	require.NoError(t, repo.SaveReport(ctx, r))

	got, err := repo.FindReport(ctx, r.SessionID)
	require.NoError(t, err)
	require.Len(t, got.Outcomes, len(r.Outcomes))
	assert.Equal(t, origin, got.Outcomes[0].Origin)
}

func TestOutcomeModel_UnboundedTextColumns(t *testing.T) {
	t.Parallel()

	s, err := schema.Parse(&OutcomeModel{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	pg := postgres.New(postgres.Config{DSN: "host=unused"})
	for _, name := range []string{"Origin", "Text"} {
		field := s.LookUpField(name)
		require.NotNil(t, field, name)
		assert.Equal(t, "text", pg.DataTypeOf(field), "%s must not be a bounded varchar", name)
	}
}

func TestReportRepository_SaveWithoutOutcomes(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()

	r := sampleReport("22222222-2222-2222-2222-222222222222")
	r.Modality = entity.ModalityVideo
	r.Policy = entity.CollectOnly
	r.Outcomes = nil
	r.Stop = usecase.StopRequested
	require.NoError(t, repo.SaveReport(ctx, r))

	got, err := repo.FindReport(ctx, r.SessionID)
	require.NoError(t, err)
	assert.Empty(t, got.Outcomes)
	assert.Equal(t, entity.CollectOnly, got.Policy)
	assert.Equal(t, usecase.StopRequested, got.Stop)
}

func TestReportRepository_Errors(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()

	_, err := repo.FindReport(ctx, "33333333-3333-3333-3333-333333333333")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	assert.Error(t, repo.SaveReport(ctx, nil))
	assert.Error(t, repo.SaveReport(ctx, &usecase.Report{}))

	r := sampleReport("44444444-4444-4444-4444-444444444444")
	require.NoError(t, repo.SaveReport(ctx, r))
	assert.Error(t, repo.SaveReport(ctx, r), "duplicate session id")
}
