package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/trainlocation/config"
	"tidbyt.dev/trainlocation/storage"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, config.DefaultPositionsURL, cfg.Positions.URL)
	assert.Equal(t, "geojson", cfg.Positions.Format)
	assert.Equal(t, 10*time.Second, cfg.Positions.PollInterval)
	assert.Equal(t, config.DefaultMetadataURL, cfg.Metadata.URL)
	assert.Equal(t, config.StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, "Europe/Helsinki", cfg.Location().String())
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
positions:
  url: http://localhost:1234/positions
  format: gtfsrt
  poll_interval: 15s
metadata:
  url: http://localhost:1234/trains/%d
request_timeout: 3s
user_agent_header: tidbyt/trainlocation
timezone: UTC
storage:
  backend: sqlite
http:
  listen: 127.0.0.1:9000
  cors_origins: [http://localhost:3000]
log_level: debug
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:1234/positions", cfg.Positions.URL)
	assert.Equal(t, "gtfsrt", cfg.Positions.Format)
	assert.Equal(t, 15*time.Second, cfg.Positions.PollInterval)
	assert.Equal(t, "http://localhost:1234/trains/%d", cfg.Metadata.URL)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "tidbyt/trainlocation", cfg.UserAgentHeader)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Listen)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())

	// Fields absent from the file keep their defaults
	assert.Equal(t, int64(config.DefaultMaxSize), cfg.MaxResponseSize)

	store, err := cfg.OpenStore()
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &storage.SQLiteStore{}, store)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
positions:
  poll_interval: 20s
timezone: UTC
`)

	t.Setenv("TRAINLOCATION_POSITIONS_URL", "http://example.com/p")
	t.Setenv("TRAINLOCATION_POLL_INTERVAL", "30")
	t.Setenv("TRAINLOCATION_REQUEST_TIMEOUT", "1500ms")
	t.Setenv("TRAINLOCATION_TIMEZONE", "Europe/Helsinki")
	t.Setenv("TRAINLOCATION_CORS_ORIGINS", "http://a,http://b")
	t.Setenv("TRAINLOCATION_MAX_RESPONSE_SIZE", "1024")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://example.com/p", cfg.Positions.URL)
	assert.Equal(t, 30*time.Second, cfg.Positions.PollInterval)
	assert.Equal(t, 1500*time.Millisecond, cfg.RequestTimeout)
	assert.Equal(t, "Europe/Helsinki", cfg.Timezone)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, int64(1024), cfg.MaxResponseSize)
}

func TestLoadInvalid(t *testing.T) {
	for _, tc := range []struct {
		Name string
		YAML string
	}{
		{"PollIntervalTooShort", "positions:\n  poll_interval: 5s\n"},
		{"UnknownFormat", "positions:\n  format: xml\n"},
		{"MetadataURLWithoutPlaceholder", "metadata:\n  url: http://localhost/trains\n"},
		{"MetadataURLTwoPlaceholders", "metadata:\n  url: http://localhost/%d/%d\n"},
		{"BadTimezone", "timezone: Mars/Olympus_Mons\n"},
		{"UnknownStorage", "storage:\n  backend: mongo\n"},
		{"PostgresWithoutDSN", "storage:\n  backend: postgres\n"},
		{"RedisWithoutURL", "storage:\n  backend: redis\n"},
		{"BadLogLevel", "log_level: loud\n"},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.YAML))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestLoadBadEnvDuration(t *testing.T) {
	t.Setenv("TRAINLOCATION_POLL_INTERVAL", "soon")
	_, err := config.Load("")
	assert.Error(t, err)
}

func TestOpenStoreMemory(t *testing.T) {
	cfg := config.Default()
	store, err := cfg.OpenStore()
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStore{}, store)
}
