package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/liip/sheriff"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tidbyt.dev/trainlocation"
	"tidbyt.dev/trainlocation/model"
)

const (
	ViewBasic    = "basic"
	ViewDetailed = "detailed"

	TrainNotFound = "Train not found!"
)

// What the API needs from the tracker. Satisfied by
// *trainlocation.Manager.
type Tracker interface {
	Ready() bool
	Snapshot() model.Snapshot
	Trains() []model.TrainPosition
	PlaceableTrains() []model.TrainPosition
	NearbyTrains(lat, lon float64, limit int) []model.TrainPosition
	Train(trainNumber int) (model.TrainPosition, bool)
	Summary(trainNumber int) (model.TrainSummary, error)
	CachedMetadata(trainNumber int) (*model.TrainMetadata, bool)
	RequestMetadata(ctx context.Context, trainNumber int) (*model.TrainMetadata, error)
	Select(ctx context.Context, trainNumber int) (*model.SelectedTrainView, error)
	Selected() (*model.SelectedTrainView, bool)
	Deselect()
}

type Options struct {
	CORSOrigins []string
	Logger      *zerolog.Logger
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status   string    `json:"status"`
	Ready    bool      `json:"ready"`
	Trains   int       `json:"trains"`
	PolledAt time.Time `json:"polledAt"`
}

type TrainsResponse struct {
	Positions  []model.TrainPosition `json:"positions" groups:"basic,detailed"`
	Count      int                   `json:"count" groups:"basic,detailed"`
	PolledAt   time.Time             `json:"polledAt" groups:"basic,detailed"`
	SnapshotID string                `json:"snapshotId" groups:"basic,detailed"`
}

type handler struct {
	tracker Tracker
}

// Builds the HTTP API on top of a tracker.
func NewRouter(tracker Tracker, opts Options) http.Handler {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := &handler{tracker: tracker}

	r := chi.NewRouter()
	r.Use(NewLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/trains", h.trains)
		r.Get("/trains/nearby", h.nearby)
		r.Route("/trains/{trainNumber}", func(r chi.Router) {
			r.Get("/", h.train)
			r.Get("/metadata", h.cachedMetadata)
			r.Post("/metadata", h.requestMetadata)
			r.Get("/summary", h.summary)
		})

		r.Get("/selection", h.selected)
		r.Delete("/selection", h.deselect)
		r.Put("/selection/{trainNumber}", h.selectTrain)
	})

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Ready:    h.tracker.Ready(),
		Trains:   len(snapshot.Trains),
		PolledAt: snapshot.PolledAt,
	})
}

func (h *handler) trains(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	var trains []model.TrainPosition
	if r.URL.Query().Get("placeable") == "true" {
		trains = h.tracker.PlaceableTrains()
	} else {
		trains = h.tracker.Trains()
	}

	writeView(w, r, http.StatusOK, TrainsResponse{
		Positions:  trains,
		Count:      len(trains),
		PolledAt:   snapshot.PolledAt,
		SnapshotID: snapshot.ID.String(),
	})
}

func (h *handler) nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lat")
		return
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lon")
		return
	}
	limit := 10
	if l := q.Get("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	snapshot := h.tracker.Snapshot()
	trains := h.tracker.NearbyTrains(lat, lon, limit)
	writeView(w, r, http.StatusOK, TrainsResponse{
		Positions:  trains,
		Count:      len(trains),
		PolledAt:   snapshot.PolledAt,
		SnapshotID: snapshot.ID.String(),
	})
}

func (h *handler) train(w http.ResponseWriter, r *http.Request) {
	n, ok := trainNumberParam(w, r)
	if !ok {
		return
	}

	p, found := h.tracker.Train(n)
	if !found {
		writeError(w, http.StatusNotFound, TrainNotFound)
		return
	}
	writeView(w, r, http.StatusOK, p)
}

func (h *handler) cachedMetadata(w http.ResponseWriter, r *http.Request) {
	n, ok := trainNumberParam(w, r)
	if !ok {
		return
	}

	meta, found := h.tracker.CachedMetadata(n)
	if !found {
		writeError(w, http.StatusNotFound, "metadata not cached")
		return
	}
	writeView(w, r, http.StatusOK, meta)
}

func (h *handler) requestMetadata(w http.ResponseWriter, r *http.Request) {
	n, ok := trainNumberParam(w, r)
	if !ok {
		return
	}

	meta, err := h.tracker.RequestMetadata(r.Context(), n)
	if err != nil {
		writeError(w, http.StatusBadGateway, "metadata unavailable")
		return
	}
	if meta == nil {
		writeError(w, http.StatusNotFound, "no metadata for train")
		return
	}
	writeView(w, r, http.StatusOK, meta)
}

func (h *handler) summary(w http.ResponseWriter, r *http.Request) {
	n, ok := trainNumberParam(w, r)
	if !ok {
		return
	}

	s, err := h.tracker.Summary(n)
	if errors.Is(err, trainlocation.ErrTrainNotFound) {
		writeError(w, http.StatusNotFound, TrainNotFound)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) selected(w http.ResponseWriter, r *http.Request) {
	view, ok := h.tracker.Selected()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeView(w, r, http.StatusOK, view)
}

func (h *handler) selectTrain(w http.ResponseWriter, r *http.Request) {
	n, ok := trainNumberParam(w, r)
	if !ok {
		return
	}

	view, err := h.tracker.Select(r.Context(), n)
	switch {
	case errors.Is(err, trainlocation.ErrTrainNotFound):
		writeError(w, http.StatusNotFound, TrainNotFound)
	case errors.Is(err, trainlocation.ErrSelectionChanged):
		writeError(w, http.StatusConflict, "another train was selected")
	case errors.Is(err, trainlocation.ErrSelectionClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeView(w, r, http.StatusOK, view)
	}
}

func (h *handler) deselect(w http.ResponseWriter, r *http.Request) {
	h.tracker.Deselect()
	w.WriteHeader(http.StatusNoContent)
}

func trainNumberParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "trainNumber"))
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "invalid train number")
		return 0, false
	}
	return n, true
}

// Writes v reduced to the field groups named by the view query
// parameter. Defaults to the detailed view.
func writeView(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	view := r.URL.Query().Get("view")
	if view == "" {
		view = ViewDetailed
	}
	if view != ViewBasic && view != ViewDetailed {
		writeError(w, http.StatusBadRequest, "view must be basic or detailed")
		return
	}

	reduced, err := sheriff.Marshal(&sheriff.Options{
		Groups: []string{view},
	}, v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, status, reduced)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
