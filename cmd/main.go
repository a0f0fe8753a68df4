package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tidbyt.dev/trainlocation"
	"tidbyt.dev/trainlocation/config"
	"tidbyt.dev/trainlocation/downloader"
	"tidbyt.dev/trainlocation/storage"
)

var rootCmd = &cobra.Command{
	Use:               "trainlocation",
	Short:             "Live train locations",
	Long:              "Tracks live train positions and schedule metadata",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	configPath       string
	positionsURL     string
	positionsFormat  string
	metadataURL      string
	logLevel         string
	headers          []string
	responseCache    string
	responseCacheTTL time.Duration

	cfg *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&positionsURL, "positions-url", "", "", "Train positions feed URL")
	rootCmd.PersistentFlags().StringVarP(&positionsFormat, "positions-format", "", "", "Train positions feed format (geojson or gtfsrt)")
	rootCmd.PersistentFlags().StringVarP(&metadataURL, "metadata-url", "", "", "Train metadata URL, with %d for the train number")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringSliceVarP(
		&headers,
		"header",
		"",
		[]string{},
		"HTTP header sent to both feeds",
	)
	rootCmd.PersistentFlags().StringVarP(&responseCache, "response-cache", "", "", "Cache feed responses in this file")
	rootCmd.PersistentFlags().DurationVarP(&responseCacheTTL, "response-cache-ttl", "", time.Minute, "How long cached feed responses are used")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(trainsCmd)
	rootCmd.AddCommand(trainCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// Loads config and applies flag overrides.
func setup(cmd *cobra.Command, args []string) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	if positionsURL != "" {
		cfg.Positions.URL = positionsURL
	}
	if positionsFormat != "" {
		cfg.Positions.Format = positionsFormat
	}
	if metadataURL != "" {
		cfg.Metadata.URL = metadataURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	err = cfg.Validate()
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(cfg.Level())

	return nil
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

// Builds a Manager from config and flags. The returned store must be
// closed by the caller.
func NewManager() (*trainlocation.Manager, storage.MetadataStore, error) {
	h, err := parseHeaders(headers)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid header: %w", err)
	}
	if cfg.UserAgentHeader != "" {
		h[trainlocation.UserHeader] = cfg.UserAgentHeader
	}

	positions := trainlocation.NewPositionFeed(cfg.Positions.URL)
	positions.Format = trainlocation.PositionFormat(cfg.Positions.Format)
	positions.Timeout = cfg.RequestTimeout
	positions.MaxSize = int(cfg.MaxResponseSize)
	positions.Headers = h

	metadata := trainlocation.NewMetadataFeed(cfg.Metadata.URL, cfg.Location())
	metadata.Timeout = cfg.RequestTimeout
	metadata.MaxSize = int(cfg.MaxResponseSize)
	metadata.Headers = h

	if responseCache != "" {
		fs, err := downloader.NewFilesystem(responseCache)
		if err != nil {
			return nil, nil, fmt.Errorf("creating response cache: %w", err)
		}
		positions.Downloader = fs
		positions.CacheTTL = responseCacheTTL
		metadata.Downloader = fs
		metadata.CacheTTL = responseCacheTTL
	}

	store, err := cfg.OpenStore()
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s store: %w", cfg.Storage.Backend, err)
	}

	m := trainlocation.NewManager(positions, metadata, store)
	m.PollInterval = cfg.Positions.PollInterval
	m.Logger = log.Logger

	return m, store, nil
}
