package trainlocation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tidbyt.dev/trainlocation/downloader"
	"tidbyt.dev/trainlocation/model"
	"tidbyt.dev/trainlocation/parse"
)

const (
	DefaultPositionsURL = "https://rata.digitraffic.fi/api/v1/train-locations.geojson/latest/"
	DefaultMetadataURL  = "https://rata.digitraffic.fi/api/v1/trains/latest/%d"
	DefaultFeedTimeout  = 10 * time.Second
	DefaultFeedMaxSize  = 32 << 20 // 32 MB

	// Digitraffic asks clients to identify themselves with this
	// header.
	UserHeader = "Digitraffic-User"
)

type PositionFormat string

const (
	FormatGeoJSON PositionFormat = "geojson"
	FormatGTFSRT  PositionFormat = "gtfsrt"
)

// Anything that can produce the current set of train positions.
type PositionSource interface {
	FetchPositions(ctx context.Context) ([]model.TrainPosition, error)
}

// Anything that can produce schedule metadata for a train. A nil
// result with nil error means the train is unknown to the source.
type MetadataSource interface {
	FetchMetadata(ctx context.Context, trainNumber int) (*model.TrainMetadata, error)
}

// Fetches positions of all currently reporting trains.
type PositionFeed struct {
	URL        string
	Format     PositionFormat
	Headers    map[string]string
	Timeout    time.Duration
	MaxSize    int
	CacheTTL   time.Duration
	Downloader downloader.Downloader
}

func NewPositionFeed(url string) *PositionFeed {
	if url == "" {
		url = DefaultPositionsURL
	}
	return &PositionFeed{
		URL:        url,
		Format:     FormatGeoJSON,
		Headers:    map[string]string{},
		Timeout:    DefaultFeedTimeout,
		MaxSize:    DefaultFeedMaxSize,
		Downloader: downloader.NewMemoryDownloader(),
	}
}

// Issues a single request to the positions feed. No filtering is
// done on coordinates; rows without a usable location are returned
// as is.
func (f *PositionFeed) FetchPositions(ctx context.Context) ([]model.TrainPosition, error) {
	data, err := f.Downloader.Get(ctx, f.URL, f.Headers, downloader.GetOptions{
		Cache:    f.CacheTTL > 0,
		CacheTTL: f.CacheTTL,
		Timeout:  f.Timeout,
		MaxSize:  f.MaxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("downloading positions: %w", err)
	}

	var positions []model.TrainPosition
	switch f.Format {
	case FormatGTFSRT:
		positions, err = parse.ParsePositionsGTFSRT(data)
	case FormatGeoJSON, "":
		positions, err = parse.ParsePositions(data)
	default:
		return nil, fmt.Errorf("unknown positions format %q", f.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing positions: %w", err)
	}

	return positions, nil
}

// Fetches schedule metadata for one train at a time.
type MetadataFeed struct {
	// Must contain a single %d for the train number.
	URLTemplate string
	Location    *time.Location
	Headers     map[string]string
	Timeout     time.Duration
	MaxSize     int
	CacheTTL    time.Duration
	Downloader  downloader.Downloader
}

func NewMetadataFeed(urlTemplate string, loc *time.Location) *MetadataFeed {
	if urlTemplate == "" {
		urlTemplate = DefaultMetadataURL
	}
	if loc == nil {
		loc = time.Local
	}
	return &MetadataFeed{
		URLTemplate: urlTemplate,
		Location:    loc,
		Headers:     map[string]string{},
		Timeout:     DefaultFeedTimeout,
		MaxSize:     DefaultFeedMaxSize,
		Downloader:  downloader.NewMemoryDownloader(),
	}
}

func (f *MetadataFeed) URL(trainNumber int) string {
	return strings.Replace(f.URLTemplate, "%d", fmt.Sprintf("%d", trainNumber), 1)
}

// Downloads and parses metadata for a train. Returns nil, nil if the
// feed has no record for it.
func (f *MetadataFeed) FetchMetadata(ctx context.Context, trainNumber int) (*model.TrainMetadata, error) {
	data, err := f.Downloader.Get(ctx, f.URL(trainNumber), f.Headers, downloader.GetOptions{
		Cache:    f.CacheTTL > 0,
		CacheTTL: f.CacheTTL,
		Timeout:  f.Timeout,
		MaxSize:  f.MaxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("downloading metadata for train %d: %w", trainNumber, err)
	}

	meta, err := parse.ParseMetadata(data, f.Location)
	if err != nil {
		return nil, fmt.Errorf("parsing metadata for train %d: %w", trainNumber, err)
	}

	return meta, nil
}
