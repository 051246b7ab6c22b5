package app_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chambers-pm/chambers/internal/app"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "session-secret")
	t.Setenv("CSRF_SECRET", "csrf-secret")

	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, "chambers_session", cfg.SessionCookie)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "")
	_, err := app.LoadConfig()
	require.Error(t, err)
}

func TestProductionNeedsLongSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SESSION_SECRET", "short")
	t.Setenv("CSRF_SECRET", "short")
	_, err := app.LoadConfig()
	require.Error(t, err)
}

func TestInTestMode(t *testing.T) {
	assert.True(t, app.InTestMode())
}

func TestRefreshTestModeRereadsEnvironment(t *testing.T) {
	require.True(t, app.InTestMode())
	t.Cleanup(app.RefreshTestMode)
	t.Setenv("CHAMBERS_TEST_MODE", "0")

	assert.True(t, app.InTestMode(), "flag is cached until refreshed")
	app.RefreshTestMode()
	assert.False(t, app.InTestMode())
}
