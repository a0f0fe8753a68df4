package testutil

// Helpers and fixtures for tests.

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Serves canned responses by path and records every request.
type MockFeedServer struct {
	mutex    sync.Mutex
	Feeds    map[string][]byte
	Status   map[string]int
	Requests []string
	Headers  []http.Header
	Server   *httptest.Server
}

// Starts a MockFeedServer, closed when the test ends.
func NewMockFeedServer(t testing.TB) *MockFeedServer {
	m := &MockFeedServer{
		Feeds:    map[string][]byte{},
		Status:   map[string]int{},
		Requests: []string{},
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handler))
	t.Cleanup(m.Server.Close)
	return m
}

func (m *MockFeedServer) handler(w http.ResponseWriter, r *http.Request) {
	m.mutex.Lock()
	m.Requests = append(m.Requests, r.URL.Path)
	m.Headers = append(m.Headers, r.Header.Clone())
	feed, found := m.Feeds[r.URL.Path]
	status := m.Status[r.URL.Path]
	m.mutex.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Write(feed)
}

func (m *MockFeedServer) SetFeed(path string, body string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Feeds[path] = []byte(body)
	delete(m.Status, path)
}

func (m *MockFeedServer) SetFeedBytes(path string, body []byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Feeds[path] = body
	delete(m.Status, path)
}

func (m *MockFeedServer) SetStatus(path string, status int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Status[path] = status
}

// Number of requests made to path.
func (m *MockFeedServer) Count(path string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	n := 0
	for _, r := range m.Requests {
		if r == path {
			n++
		}
	}
	return n
}

// The header sent with the i:th request.
func (m *MockFeedServer) Header(i int) http.Header {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.Headers[i]
}

func (m *MockFeedServer) PositionsURL() string {
	return m.Server.URL + "/positions"
}

func (m *MockFeedServer) MetadataURL() string {
	return m.Server.URL + "/trains/%d"
}

type Feature struct {
	Number   int
	Lat, Lon float64
	Speed    float64
}

// Renders a GeoJSON train locations response.
func PositionsGeoJSON(features ...Feature) string {
	parts := []string{}
	for _, f := range features {
		parts = append(parts, fmt.Sprintf(`{
  "type": "Feature",
  "geometry": {"type": "Point", "coordinates": [%g, %g]},
  "properties": {"trainNumber": %d, "departureDate": "2024-03-01", "timestamp": "2024-03-01T05:30:00.000Z", "speed": %g, "accuracy": 5}
}`, f.Lon, f.Lat, f.Number, f.Speed))
	}
	return fmt.Sprintf(`{"type": "FeatureCollection", "features": [%s]}`, strings.Join(parts, ","))
}

// Renders a train metadata response with a departure row at HKI and
// an arrival row at TPE.
func MetadataJSON(number int, trainType, category string) string {
	return fmt.Sprintf(`[{
  "trainNumber": %d,
  "departureDate": "2024-03-01",
  "operatorShortCode": "vr",
  "trainType": %q,
  "trainCategory": %q,
  "runningCurrently": true,
  "cancelled": false,
  "version": 289146385401,
  "timetableType": "REGULAR",
  "timeTableRows": [
    {"stationShortCode": "HKI", "type": "DEPARTURE", "trainStopping": true, "commercialTrack": "7", "cancelled": false, "scheduledTime": "2024-03-01T05:02:00.000Z"},
    {"stationShortCode": "TPE", "type": "ARRIVAL", "trainStopping": true, "commercialTrack": "3", "cancelled": false, "scheduledTime": "2024-03-01T06:50:00.000Z"}
  ]
}]`, number, trainType, category)
}
