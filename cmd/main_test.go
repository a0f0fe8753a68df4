package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/trainlocation/model"
	"tidbyt.dev/trainlocation/testutil"
)

func f(v float64) *float64 {
	return &v
}

func testPositions() []model.TrainPosition {
	return []model.TrainPosition{
		{TrainNumber: 1, Latitude: f(60.17), Longitude: f(24.94), Speed: 0},
		{TrainNumber: 2, Latitude: f(61.5), Longitude: f(23.77), Speed: 120},
		{TrainNumber: 3, Speed: 40},
	}
}

func numbers(positions []model.TrainPosition) []int {
	n := []int{}
	for _, p := range positions {
		n = append(n, p.TrainNumber)
	}
	return n
}

func TestFilterTrains(t *testing.T) {
	for _, tc := range []struct {
		Filter   string
		Expected []int
	}{
		{"", []int{1, 2, 3}},
		{"moving", []int{2, 3}},
		{"moving && speed > 100", []int{2}},
		{"placeable", []int{1, 2}},
		{"!placeable", []int{3}},
		{"lat > 61", []int{2}},
		{"number in [1, 3]", []int{1, 3}},
	} {
		t.Run(tc.Filter, func(t *testing.T) {
			filtered, err := filterTrains(testPositions(), tc.Filter)
			require.NoError(t, err)
			assert.Equal(t, tc.Expected, numbers(filtered))
		})
	}
}

func TestFilterTrainsInvalid(t *testing.T) {
	_, err := filterTrains(testPositions(), "speed >")
	assert.Error(t, err)

	// Must evaluate to a bool
	_, err = filterTrains(testPositions(), "speed + 1")
	assert.Error(t, err)

	_, err = filterTrains(testPositions(), "platform == 3")
	assert.Error(t, err)
}

func TestWriteTrainsText(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, writeTrains(buf, testPositions(), "text"))
	assert.Equal(t, `1: 60.17000,24.94000 (stopped)
2: 61.50000,23.77000 (120 km/h)
3: no location (40 km/h)
`, buf.String())
}

func TestWriteTrainsCSV(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, writeTrains(buf, testPositions(), "csv"))
	assert.Equal(t, `train_number,latitude,longitude,speed
1,60.17,24.94,0
2,61.5,23.77,120
3,,,40
`, buf.String())

	assert.Error(t, writeTrains(buf, testPositions(), "xml"))
}

func TestParseHeaders(t *testing.T) {
	h, err := parseHeaders([]string{"Digitraffic-User: me/app", "X-Foo:bar:baz"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Digitraffic-User": "me/app",
		"X-Foo":            "bar:baz",
	}, h)

	_, err = parseHeaders([]string{"nope"})
	assert.Error(t, err)
}

func run(t *testing.T, args ...string) string {
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		filterExpr = ""
		format = "text"
		placeableOnly = false
		debug = false
		headers = []string{}
	})
	require.NoError(t, rootCmd.Execute())
	return buf.String()
}

func TestTrainsCommand(t *testing.T) {
	feeds := testutil.NewMockFeedServer(t)
	feeds.SetFeed("/positions", testutil.PositionsGeoJSON(
		testutil.Feature{Number: 123, Lat: 60.1, Lon: 24.9, Speed: 80},
		testutil.Feature{Number: 45, Lat: 61.5, Lon: 23.8, Speed: 0},
	))

	out := run(t, "trains",
		"--positions-url", feeds.PositionsURL(),
		"--metadata-url", feeds.MetadataURL(),
		"--filter", "moving",
		"--header", "Digitraffic-User: tidbyt/test",
	)
	assert.Equal(t, "123: 60.10000,24.90000 (80 km/h)\n", out)
	assert.Equal(t, "tidbyt/test", feeds.Header(0).Get("Digitraffic-User"))
}

func TestTrainCommand(t *testing.T) {
	feeds := testutil.NewMockFeedServer(t)
	feeds.SetFeed("/positions", testutil.PositionsGeoJSON(
		testutil.Feature{Number: 123, Lat: 60.1, Lon: 24.9, Speed: 80},
	))
	feeds.SetFeed("/trains/123", testutil.MetadataJSON(123, "IC", "Long-distance"))

	t.Setenv("TRAINLOCATION_TIMEZONE", "UTC")

	out := run(t, "train", "123", "999",
		"--positions-url", feeds.PositionsURL(),
		"--metadata-url", feeds.MetadataURL(),
	)
	assert.Equal(t, `Train 123
  Position:    60.10000,24.90000
  Speed:       80 km/h
  Type:        IC (Long-distance)
  Departure:   HKI 01/03/2024, 05:02, track 7
  Destination: TPE 01/03/2024, 06:50, track 3
999: Train not found!
`, out)

	// Prefetched once, then served from cache when selected
	assert.Equal(t, 1, feeds.Count("/trains/123"))
	assert.Equal(t, 0, feeds.Count("/trains/999"))
}
