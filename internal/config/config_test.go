package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/pdf-ingest/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.AppEnv)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "pdf.conversion", cfg.ExchangeName)
	assert.Equal(t, "dead.letter", cfg.DLXName)
	assert.Equal(t, 50, cfg.SplitThreshold)
	assert.Equal(t, 25, cfg.SuggestedSplitSize)
	assert.Equal(t, 4, cfg.ConcurrentPartProcessing)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.ConverterTimeout)
	assert.Equal(t, 1, cfg.Prefetch)
	assert.Equal(t, 5*time.Second, cfg.ReconnectInitial)
	assert.Equal(t, 5, cfg.ReconnectMax)
	assert.Equal(t, config.TrackerBackendDocument, cfg.TrackerBackend)
}

func TestLoad_AllRolesByDefault(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	for _, r := range []string{"analyzer", "coordinator", "splitter", "converter", "storage", "merger"} {
		assert.True(t, cfg.HasRole(r), r)
	}
	assert.False(t, cfg.HasRole("chunker"))
}

func TestLoad_RoleSelection(t *testing.T) {
	t.Setenv("WORKER_ROLES", "converter,merger")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.HasRole("converter"))
	assert.True(t, cfg.HasRole("merger"))
	assert.False(t, cfg.HasRole("analyzer"))
}

func TestLoad_UnknownRoleRejected(t *testing.T) {
	t.Setenv("WORKER_ROLES", "analyzer,embedder")
	_, err := config.Load()
	require.Error(t, err)
}

func TestLoad_BadTrackerBackend(t *testing.T) {
	t.Setenv("TRACKER_BACKEND", "mongo")
	_, err := config.Load()
	require.Error(t, err)
}

func TestLoad_SearchIndexBackend(t *testing.T) {
	t.Setenv("TRACKER_BACKEND", "search-index")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.TrackerBackendSearchIndex, cfg.TrackerBackend)
}

func TestValidate_BadSplitConfig(t *testing.T) {
	t.Setenv("SPLIT_THRESHOLD", "0")
	_, err := config.Load()
	require.Error(t, err)
}
