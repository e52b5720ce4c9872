package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"alfredoptarigan/applicant-screener/internal/models"
	"alfredoptarigan/applicant-screener/internal/testutil"
)

func TestSettingsSeedAndPatch(t *testing.T) {
	repo := NewSettingsRepository(testutil.NewDB(t))
	ctx := context.Background()

	_, err := repo.Get(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	seed := models.ScreeningSettings{
		ScreeningEnabled:       true,
		QualificationThreshold: 70,
		JobThresholds:          datatypes.NewJSONType(map[string]int{"j1": 80}),
		BatchSize:              10,
	}
	require.NoError(t, repo.EnsureSeeded(ctx, seed))

	seed.QualificationThreshold = 10
	require.NoError(t, repo.EnsureSeeded(ctx, seed), "second seed is a no-op")

	s, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 70, s.QualificationThreshold)
	assert.Equal(t, 80, s.Snapshot().ThresholdFor("j1"))

	batch := 400
	s, err = repo.Patch(ctx, models.SettingsPatch{BatchSize: &batch})
	require.NoError(t, err)
	assert.Equal(t, 100, s.BatchSize)
	assert.True(t, s.ScreeningEnabled)

	require.NoError(t, repo.SetScreeningEnabled(ctx, false))
	s, err = repo.Get(ctx)
	require.NoError(t, err)
	assert.False(t, s.ScreeningEnabled)
	assert.Equal(t, 70, s.QualificationThreshold)
}
