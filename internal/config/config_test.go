package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralabs/aura/pkg/bytesize"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	// A named file that does not exist is an error; no path means defaults.
	assert.Error(t, err)

	cfg, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8791, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, bytesize.Size(1024*1024*1024), cfg.Storage.MinFreeDisk)
	assert.Equal(t, "0 0 4 * * *", cfg.Storage.RetentionCron)
	assert.Equal(t, 15*time.Minute, cfg.Jobs.Timeouts.Script)
	assert.Equal(t, 10*time.Minute, cfg.Jobs.Timeouts.Narration)
	assert.Equal(t, 5*time.Minute, cfg.Jobs.Timeouts.VisualsImage)
	assert.Equal(t, 20*time.Minute, cfg.Jobs.Timeouts.VisualsTotal)
	assert.Equal(t, 30*time.Second, cfg.Jobs.Heartbeat)
	assert.Equal(t, 50, cfg.Jobs.RetentionPerType)
	assert.Equal(t, 5*time.Second, cfg.Encoder.KillGrace)
	assert.False(t, cfg.Providers.Offline)
}

func TestLoadDerivedPaths(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.Storage.DataDir, "work"), cfg.Storage.WorkDir)
	assert.Equal(t, filepath.Join(cfg.Storage.DataDir, "aura.db"), cfg.Database.DSN)
	assert.Contains(t, cfg.Storage.OutputDir, "AuraVideos")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
storage:
  output_dir: /tmp/videos
  min_free_disk: 2GiB
providers:
  offline: true
jobs:
  workers: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/tmp/videos", cfg.Storage.OutputDir)
	assert.Equal(t, 2*bytesize.GB, cfg.Storage.MinFreeDisk)
	assert.True(t, cfg.Providers.Offline)
	assert.Equal(t, 2, cfg.Jobs.WorkerCount())
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("AURA_SERVER_PORT", "9100")
	t.Setenv("AURA_PROVIDERS_OFFLINE", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.True(t, cfg.Providers.Offline)
}

func TestValidateErrors(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Jobs.Timeouts.Script = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Encoder.KillGrace = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Jobs.RetentionPerType = 0
	assert.Error(t, cfg.Validate())
}

func TestWorkerCountAuto(t *testing.T) {
	jc := JobsConfig{Workers: 0}
	want := runtime.NumCPU()
	if want > 4 {
		want = 4
	}
	assert.Equal(t, want, jc.WorkerCount())

	jc.Workers = 8
	assert.Equal(t, 8, jc.WorkerCount())
}

func TestClientTimeoutFloor(t *testing.T) {
	pc := ProvidersConfig{ClientMargin: 5 * time.Minute}

	assert.Equal(t, 20*time.Minute, pc.ClientTimeout(15*time.Minute))
	assert.Equal(t, 5*time.Minute, pc.ClientTimeout(0))
}
