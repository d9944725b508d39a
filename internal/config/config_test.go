package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fieldsync.cue")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "fieldsync.db", cfg.Database)
	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, "", cfg.Backend.BaseURL)
	assert.Equal(t, time.Duration(0), cfg.Backend.Timeout.Std())
	assert.Equal(t, 15*time.Second, cfg.Probe.Interval.Std())
	assert.Equal(t, time.Second, cfg.Probe.MinBackoff.Std())
	assert.Equal(t, time.Minute, cfg.Probe.MaxBackoff.Std())
	assert.True(t, cfg.Lease.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Lease.TTL.Std())
	assert.Equal(t, "127.0.0.1:8787", cfg.Listen)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 50, cfg.Log.MaxSizeMB)
	assert.Equal(t, 3, cfg.Log.MaxBackups)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
database: "/var/lib/fieldsync/queue.db"
backend: {
	base_url: "https://api.example.com"
	timeout:  "20s"
}
probe: url: "https://api.example.com/healthz"
lease: enabled: false
log: level: "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/fieldsync/queue.db", cfg.Database)
	assert.Equal(t, "https://api.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, 20*time.Second, cfg.Backend.Timeout.Std())
	assert.Equal(t, "https://api.example.com/healthz", cfg.Probe.URL)
	assert.False(t, cfg.Lease.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 15*time.Second, cfg.Probe.Interval.Std(), "untouched fields keep defaults")
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	path := writeConfig(t, `databse: "typo.db"`)

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, IsLoadError(err))
	assert.Contains(t, err.Error(), ErrCodeInvalid)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"store":    `store: "postgres"`,
		"level":    `log: level: "trace"`,
		"duration": `lease: ttl: "soon"`,
		"size":     `log: max_size_mb: 0`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), ErrCodeInvalid)
		})
	}
}

func TestLoad_ParseError(t *testing.T) {
	_, err := Load(writeConfig(t, `database: "unterminated`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeParse)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.cue"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
database: "from-file.db"
backend: base_url: "https://file.example.com"
`)
	t.Setenv("FIELDSYNC_DATABASE", "from-env.db")
	t.Setenv("FIELDSYNC_LEASE_TTL", "45s")
	t.Setenv("FIELDSYNC_LEASE_ENABLED", "false")
	t.Setenv("FIELDSYNC_LOG_MAX_BACKUPS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env.db", cfg.Database)
	assert.Equal(t, "https://file.example.com", cfg.Backend.BaseURL, "unset env keeps file value")
	assert.Equal(t, 45*time.Second, cfg.Lease.TTL.Std())
	assert.False(t, cfg.Lease.Enabled)
	assert.Equal(t, 7, cfg.Log.MaxBackups)
}

func TestLoad_EnvValidatedAgainstSchema(t *testing.T) {
	t.Setenv("FIELDSYNC_STORE", "postgres")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeInvalid)
}

func TestLoad_EnvParseError(t *testing.T) {
	t.Setenv("FIELDSYNC_PROBE_INTERVAL", "often")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeEnv)
}

func TestValidate_AfterFlagOverride(t *testing.T) {
	cfg := Default()
	cfg.Store = "badger"
	require.NoError(t, Validate(nil, cfg))

	cfg.Log.Level = "loud"
	assert.Error(t, Validate(nil, cfg))
}
