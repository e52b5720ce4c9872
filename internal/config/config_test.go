package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 70, cfg.Screening.QualificationThreshold)
	assert.InDelta(t, 0.25, cfg.Screening.SimilarityThreshold, 1e-9)
	assert.True(t, cfg.Screening.SimilarityFilterEnabled)
	assert.Equal(t, 60, cfg.Screening.EscalationLow)
	assert.Equal(t, 85, cfg.Screening.EscalationHigh)
	assert.Equal(t, 10, cfg.Screening.BatchSize)
	assert.Equal(t, 3, cfg.Screening.SafeguardTopN)
	assert.Equal(t, 5*time.Minute, cfg.Lock.StaleAfter)
	assert.Equal(t, "database", cfg.Lock.Backend)
	assert.Equal(t, "@every 2m", cfg.Scheduler.Schedule)
	assert.Equal(t, 50000, cfg.ATS.MaxResumeRunes)
}

func TestLoadClampsFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SCREENER_WORKER_CONCURRENCY", "40")
	t.Setenv("SCREENER_SCREENING_BATCH_SIZE", "500")
	t.Setenv("GEMINI_API_KEY", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, MaxWorkerConcurrency, cfg.Worker.Concurrency)
	assert.Equal(t, 100, cfg.Screening.BatchSize)
	assert.Equal(t, "secret", cfg.Gemini.APIKey)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "screener.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
screening:
  qualification-threshold: 75
  backlog-cutoff: "2025-03-01"
  job-thresholds:
    job-9: 80
lock:
  backend: redis
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 75, cfg.Screening.QualificationThreshold)
	assert.Equal(t, "redis", cfg.Lock.Backend)

	seed := cfg.Screening.SeedSettings()
	snap := seed.Snapshot()
	assert.Equal(t, 80, snap.ThresholdFor("job-9"))
	assert.Equal(t, 75, snap.ThresholdFor("job-1"))
	require.NotNil(t, snap.BacklogCutoff)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *snap.BacklogCutoff)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	bad := *cfg
	bad.Lock.Backend = "etcd"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Screening.EscalationLow = 90
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Screening.BacklogCutoff = "yesterday"
	assert.Error(t, bad.Validate())
}
