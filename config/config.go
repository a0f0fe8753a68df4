package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"tidbyt.dev/trainlocation"
	"tidbyt.dev/trainlocation/storage"
)

const (
	DefaultPositionsURL   = trainlocation.DefaultPositionsURL
	DefaultMetadataURL    = trainlocation.DefaultMetadataURL
	DefaultPollInterval   = trainlocation.DefaultPollInterval
	DefaultRequestTimeout = trainlocation.DefaultFeedTimeout
	DefaultMaxSize        = trainlocation.DefaultFeedMaxSize
	DefaultTimezone       = "Europe/Helsinki"
	DefaultListenAddr     = ":8080"

	// The positions feed allows 50 requests per 5 minutes.
	MinPollInterval = 6 * time.Second

	EnvPrefix = "TRAINLOCATION_"
)

const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

type PositionsConfig struct {
	URL          string        `yaml:"url" validate:"required,url"`
	Format       string        `yaml:"format" validate:"oneof=geojson gtfsrt"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gte=6s"`
}

type MetadataConfig struct {
	// Must contain a single %d, replaced with the train number.
	URL string `yaml:"url" validate:"required,contains=%d"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend" validate:"oneof=memory sqlite postgres redis"`
	SQLiteDir   string `yaml:"sqlite_dir"`
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Backend postgres"`
	RedisURL    string `yaml:"redis_url" validate:"required_if=Backend redis"`
}

type HTTPConfig struct {
	Listen      string   `yaml:"listen" validate:"required"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Config struct {
	Positions       PositionsConfig `yaml:"positions"`
	Metadata        MetadataConfig  `yaml:"metadata"`
	RequestTimeout  time.Duration   `yaml:"request_timeout" validate:"gt=0"`
	MaxResponseSize int64           `yaml:"max_response_size" validate:"gt=0"`
	UserAgentHeader string          `yaml:"user_agent_header"`
	Timezone        string          `yaml:"timezone" validate:"required,timezone"`
	Storage         StorageConfig   `yaml:"storage"`
	HTTP            HTTPConfig      `yaml:"http"`
	LogLevel        string          `yaml:"log_level" validate:"oneof=trace debug info warn error"`
}

func Default() *Config {
	return &Config{
		Positions: PositionsConfig{
			URL:          DefaultPositionsURL,
			Format:       "geojson",
			PollInterval: DefaultPollInterval,
		},
		Metadata: MetadataConfig{
			URL: DefaultMetadataURL,
		},
		RequestTimeout:  DefaultRequestTimeout,
		MaxResponseSize: DefaultMaxSize,
		Timezone:        DefaultTimezone,
		Storage: StorageConfig{
			Backend: StorageMemory,
		},
		HTTP: HTTPConfig{
			Listen:      DefaultListenAddr,
			CORSOrigins: []string{"*"},
		},
		LogLevel: "info",
	}
}

// Loads configuration. Defaults are overlaid with the YAML file at
// path (if path is non-empty), then with TRAINLOCATION_* environment
// variables, which may also come from a .env file in the working
// directory. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		err = yaml.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	// A missing .env is fine
	_ = godotenv.Load()

	err := cfg.applyEnv()
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Positions.URL = getEnv("POSITIONS_URL", c.Positions.URL)
	c.Positions.Format = getEnv("POSITIONS_FORMAT", c.Positions.Format)
	c.Metadata.URL = getEnv("METADATA_URL", c.Metadata.URL)
	c.UserAgentHeader = getEnv("USER_AGENT_HEADER", c.UserAgentHeader)
	c.Timezone = getEnv("TIMEZONE", c.Timezone)
	c.Storage.Backend = getEnv("STORAGE", c.Storage.Backend)
	c.Storage.SQLiteDir = getEnv("SQLITE_DIR", c.Storage.SQLiteDir)
	c.Storage.PostgresDSN = getEnv("POSTGRES_DSN", c.Storage.PostgresDSN)
	c.Storage.RedisURL = getEnv("REDIS_URL", c.Storage.RedisURL)
	c.HTTP.Listen = getEnv("LISTEN", c.HTTP.Listen)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.MaxResponseSize = int64(getEnvInt("MAX_RESPONSE_SIZE", int(c.MaxResponseSize)))

	if origins := getEnv("CORS_ORIGINS", ""); origins != "" {
		c.HTTP.CORSOrigins = strings.Split(origins, ",")
	}

	var err error
	c.Positions.PollInterval, err = getEnvDuration("POLL_INTERVAL", c.Positions.PollInterval)
	if err != nil {
		return err
	}
	c.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	if err != nil {
		return err
	}

	return nil
}

func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if strings.Count(c.Metadata.URL, "%d") != 1 {
		return fmt.Errorf("invalid config: metadata url must contain exactly one %%d")
	}
	return nil
}

// The display time zone. Validation guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// Opens the configured metadata store.
func (c *Config) OpenStore() (storage.MetadataStore, error) {
	switch c.Storage.Backend {
	case StorageMemory, "":
		return storage.NewMemoryStore(), nil
	case StorageSQLite:
		if c.Storage.SQLiteDir != "" {
			return storage.NewSQLiteStore(storage.SQLiteConfig{
				OnDisk:    true,
				Directory: c.Storage.SQLiteDir,
			})
		}
		return storage.NewSQLiteStore()
	case StoragePostgres:
		return storage.NewPSQLStore(c.Storage.PostgresDSN, "")
	case StorageRedis:
		return storage.NewRedisStoreFromURL(c.Storage.RedisURL)
	}
	return nil, fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Accepts Go durations ("15s") or plain seconds ("15").
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parsing %s%s: %w", EnvPrefix, key, err)
	}
	return d, nil
}
