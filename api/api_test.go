package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/trainlocation"
	"tidbyt.dev/trainlocation/api"
	"tidbyt.dev/trainlocation/storage"
	"tidbyt.dev/trainlocation/testutil"
)

func apiFixture(t *testing.T) (*httptest.Server, *trainlocation.Manager, *testutil.MockFeedServer) {
	feeds := testutil.NewMockFeedServer(t)
	feeds.SetFeed("/positions", testutil.PositionsGeoJSON(
		testutil.Feature{Number: 123, Lat: 60.1, Lon: 24.9, Speed: 80},
		testutil.Feature{Number: 45, Lat: 61.5, Lon: 23.8, Speed: 0},
	))
	feeds.SetFeed("/trains/123", testutil.MetadataJSON(123, "IC", "Long-distance"))
	feeds.SetFeed("/trains/45", `[]`)

	m := trainlocation.NewManager(
		trainlocation.NewPositionFeed(feeds.PositionsURL()),
		trainlocation.NewMetadataFeed(feeds.MetadataURL(), time.UTC),
		storage.NewMemoryStore(),
	)
	t.Cleanup(m.Stop)

	_, err := m.PollOnce(context.Background())
	require.NoError(t, err)

	server := httptest.NewServer(api.NewRouter(m, api.Options{}))
	t.Cleanup(server.Close)

	return server, m, feeds
}

func do(t *testing.T, method, url string) (int, map[string]interface{}) {
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body := map[string]interface{}{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	server, _, _ := apiFixture(t)

	status, body := do(t, "GET", server.URL+"/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, 2.0, body["trains"])
}

func TestTrains(t *testing.T) {
	server, m, _ := apiFixture(t)

	status, body := do(t, "GET", server.URL+"/api/trains")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2.0, body["count"])
	assert.Equal(t, m.Snapshot().ID.String(), body["snapshotId"])

	positions := body["positions"].([]interface{})
	require.Len(t, positions, 2)
	first := positions[0].(map[string]interface{})
	assert.Equal(t, 45.0, first["trainNumber"])
	assert.Equal(t, 61.5, first["latitude"])

	status, body = do(t, "GET", server.URL+"/api/trains?placeable=true&view=basic")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2.0, body["count"])

	status, _ = do(t, "GET", server.URL+"/api/trains?view=everything")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestNearby(t *testing.T) {
	server, _, _ := apiFixture(t)

	status, body := do(t, "GET", server.URL+"/api/trains/nearby?lat=61.4&lon=23.7&limit=1")
	require.Equal(t, http.StatusOK, status)
	positions := body["positions"].([]interface{})
	require.Len(t, positions, 1)
	assert.Equal(t, 45.0, positions[0].(map[string]interface{})["trainNumber"])

	status, _ = do(t, "GET", server.URL+"/api/trains/nearby?lat=north&lon=23.7")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTrain(t *testing.T) {
	server, _, _ := apiFixture(t)

	status, body := do(t, "GET", server.URL+"/api/trains/123")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 80.0, body["speed"])

	status, body = do(t, "GET", server.URL+"/api/trains/999")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Train not found!", body["error"])

	status, _ = do(t, "GET", server.URL+"/api/trains/abc")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMetadata(t *testing.T) {
	server, _, feeds := apiFixture(t)

	// Reading the cache never fetches
	status, _ := do(t, "GET", server.URL+"/api/trains/123/metadata")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 0, feeds.Count("/trains/123"))

	status, body := do(t, "POST", server.URL+"/api/trains/123/metadata")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "HKI", body["departureStation"])
	assert.Equal(t, 1, feeds.Count("/trains/123"))

	status, body = do(t, "GET", server.URL+"/api/trains/123/metadata?view=basic")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "IC", body["trainType"])
	assert.Equal(t, "TPE", body["destinationStation"])
	assert.NotContains(t, body, "timeTableRows")
	assert.Equal(t, 1, feeds.Count("/trains/123"))

	status, body = do(t, "GET", server.URL+"/api/trains/123/metadata")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["timeTableRows"], 2)

	status, _ = do(t, "POST", server.URL+"/api/trains/45/metadata")
	assert.Equal(t, http.StatusNotFound, status)

	feeds.SetStatus("/trains/46", http.StatusServiceUnavailable)
	status, _ = do(t, "POST", server.URL+"/api/trains/46/metadata")
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestSummary(t *testing.T) {
	server, _, _ := apiFixture(t)

	status, body := do(t, "GET", server.URL+"/api/trains/123/summary")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["moving"])
	assert.Equal(t, "Loading...", body["trainType"])

	do(t, "POST", server.URL+"/api/trains/123/metadata")

	_, body = do(t, "GET", server.URL+"/api/trains/123/summary")
	assert.Equal(t, "IC", body["trainType"])
	assert.Equal(t, "Long-distance", body["trainCategory"])

	status, _ = do(t, "GET", server.URL+"/api/trains/7/summary")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSelection(t *testing.T) {
	server, _, _ := apiFixture(t)

	status, _ := do(t, "GET", server.URL+"/api/selection")
	assert.Equal(t, http.StatusNoContent, status)

	status, body := do(t, "PUT", server.URL+"/api/selection/999")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Train not found!", body["error"])

	status, body = do(t, "PUT", server.URL+"/api/selection/123")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 123.0, body["trainNumber"])
	assert.Equal(t, 80.0, body["speed"])
	assert.Equal(t, true, body["metadataLoaded"])
	assert.Equal(t, "HKI", body["departureStation"])

	status, body = do(t, "GET", server.URL+"/api/selection?view=basic")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "TPE", body["destinationStation"])
	assert.NotContains(t, body, "operatorShortCode")

	// Selecting a train the metadata feed doesn't know
	status, body = do(t, "PUT", server.URL+"/api/selection/45")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["metadataLoaded"])
	assert.Equal(t, 0.0, body["speed"])

	status, _ = do(t, "DELETE", server.URL+"/api/selection")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = do(t, "GET", server.URL+"/api/selection")
	assert.Equal(t, http.StatusNoContent, status)
}

func TestCORS(t *testing.T) {
	server, _, _ := apiFixture(t)

	req, err := http.NewRequest("GET", server.URL+"/api/trains", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
