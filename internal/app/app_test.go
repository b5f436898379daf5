package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vnflow/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Logging.Output = "console"
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.ReportDir = filepath.Join(base, "reports")
	cfg.Paths.LogsDir = filepath.Join(base, "logs")
	return &cfg
}

// The OpenTelemetry prometheus exporter registers collectors with the
// default registry, so the package builds a single Application and
// exercises everything against it.
func TestApplication(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Port = 18099

	application, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, application.Hub)
	require.NotNil(t, application.Store)
	require.NotNil(t, application.Fetcher)
	require.NotNil(t, application.Loader)
	require.NotNil(t, application.Exporter)
	require.NotNil(t, application.Manager)
	require.NotNil(t, application.Router)
	require.NotNil(t, application.Server)
	assert.Equal(t, ":18099", application.Server.Addr)
	assert.Equal(t, cfg.Server.ReadTimeout, application.Server.ReadTimeout)

	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.ReportDir, cfg.Paths.LogsDir} {
		info, statErr := os.Stat(dir)
		require.NoError(t, statErr)
		assert.True(t, info.IsDir())
	}

	t.Run("health endpoint", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		application.Router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("sectors endpoint", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/sectors", nil)
		application.Router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("stop is graceful", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		application.Start(ctx, cancel)

		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		require.NoError(t, application.Stop(stopCtx))
	})
}

func TestEnsureDirectoriesSkipsEmpty(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(t.TempDir(), "nested", "data")
	cfg.Paths.ReportDir = ""
	cfg.Paths.LogsDir = ""

	require.NoError(t, ensureDirectories(&cfg))

	info, err := os.Stat(cfg.Paths.DataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
