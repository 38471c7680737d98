package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rescache/internal/common"
)

func TestConfigDir(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("RESCACHE_CONFIG_DIR", "")

		dir := ConfigDir()
		assert.NotEmpty(t, dir)
		assert.True(t, strings.HasSuffix(dir, ".rescache"), "should end with .rescache")
	})

	t.Run("override with RESCACHE_CONFIG_DIR", func(t *testing.T) {
		t.Setenv("RESCACHE_CONFIG_DIR", "/tmp/test-rescache-config")
		assert.Equal(t, "/tmp/test-rescache-config", ConfigDir())
	})
}

func TestPathFunctions(t *testing.T) {
	t.Setenv("RESCACHE_CONFIG_DIR", t.TempDir())
	t.Setenv("RESCACHE_DAEMON_LOG", "")

	tests := []struct {
		name   string
		fn     func() string
		suffix string
	}{
		{"PidPath", PidPath, "daemon.pid"},
		{"LogPath", LogPath, "daemon.log"},
		{"LockPath", LockPath, "sweeper.lock"},
		{"SettingsPath", SettingsPath, "settings.yaml"},
		{"DefaultCacheDir", DefaultCacheDir, "cache"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.fn()
			assert.True(t, strings.HasSuffix(path, tt.suffix),
				"%s() = %q should end with %q", tt.name, path, tt.suffix)
			assert.True(t, strings.HasPrefix(path, ConfigDir()),
				"%s() = %q should be in config dir %q", tt.name, path, ConfigDir())
		})
	}
}

func TestLogPathOverride(t *testing.T) {
	t.Setenv("RESCACHE_DAEMON_LOG", "/tmp/custom.log")
	assert.Equal(t, "/tmp/custom.log", LogPath())
}

func TestInitConfigDir(t *testing.T) {
	t.Setenv("RESCACHE_CONFIG_DIR", filepath.Join(t.TempDir(), "cfg"))

	require.NoError(t, InitConfigDir())

	info, err := os.Stat(ConfigDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = os.Stat(SettingsPath())
	assert.NoError(t, err, "settings file should be created")

	// Existing settings are not overwritten
	require.NoError(t, os.WriteFile(SettingsPath(), []byte("staleness: 1h\n"), 0600))
	require.NoError(t, InitConfigDir())
	data, err := os.ReadFile(SettingsPath())
	require.NoError(t, err)
	assert.Equal(t, "staleness: 1h\n", string(data))
}

func TestSettings(t *testing.T) {
	t.Run("defaults from embedded artifact", func(t *testing.T) {
		t.Setenv("RESCACHE_CONFIG_DIR", t.TempDir())

		settings, err := LoadSettings()
		require.NoError(t, err)

		assert.Empty(t, settings.CacheDir)
		assert.Equal(t, 24*time.Hour, settings.Staleness)
		assert.Equal(t, 10*time.Minute, settings.SweepInterval)
		assert.Empty(t, settings.LogLevel)
		assert.Equal(t, []string{"*.lock", ".keep"}, settings.Keep)
		assert.Equal(t, DefaultCacheDir(), settings.ResolvedCacheDir())
	})

	t.Run("save and load", func(t *testing.T) {
		t.Setenv("RESCACHE_CONFIG_DIR", t.TempDir())

		settings := &Settings{
			CacheDir:      "/var/cache/tiles",
			Staleness:     90 * time.Minute,
			SweepInterval: 30 * time.Second,
			LogLevel:      "debug",
			Keep:          []string{"index.db"},
		}
		require.NoError(t, SaveSettings(settings))

		loaded, err := LoadSettings()
		require.NoError(t, err)
		assert.Equal(t, settings, loaded)

		data, err := os.ReadFile(SettingsPath())
		require.NoError(t, err)
		assert.Contains(t, string(data), "staleness: 1h30m0s")
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		t.Setenv("RESCACHE_CONFIG_DIR", t.TempDir())
		require.NoError(t, os.WriteFile(SettingsPath(), []byte("staleness: 5m\n"), 0600))

		settings, err := LoadSettings()
		require.NoError(t, err)
		assert.Equal(t, 5*time.Minute, settings.Staleness)
		assert.Equal(t, 10*time.Minute, settings.SweepInterval)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		t.Setenv("RESCACHE_CONFIG_DIR", t.TempDir())
		require.NoError(t, os.WriteFile(SettingsPath(), []byte("staleness: [\n"), 0600))

		_, err := LoadSettings()
		assert.ErrorIs(t, err, common.ErrInvalidSettings)
	})

	t.Run("home expansion", func(t *testing.T) {
		home, err := os.UserHomeDir()
		require.NoError(t, err)
		s := &Settings{CacheDir: "~/tiles"}
		assert.Equal(t, filepath.Join(home, "tiles"), s.ResolvedCacheDir())
	})
}

func TestSettingsValidate(t *testing.T) {
	t.Parallel()

	valid := Settings{Staleness: time.Hour, SweepInterval: time.Minute}

	tests := []struct {
		name   string
		mutate func(*Settings)
		ok     bool
	}{
		{"valid", func(*Settings) {}, true},
		{"zero staleness", func(s *Settings) { s.Staleness = 0 }, true},
		{"negative staleness", func(s *Settings) { s.Staleness = -time.Second }, false},
		{"zero interval", func(s *Settings) { s.SweepInterval = 0 }, false},
		{"known log level", func(s *Settings) { s.LogLevel = "TRACE" }, true},
		{"unknown log level", func(s *Settings) { s.LogLevel = "loud" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := valid
			tt.mutate(&s)
			err := s.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, common.ErrInvalidSettings)
			}
		})
	}
}
