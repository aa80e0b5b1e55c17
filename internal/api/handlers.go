package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/sini-kannan/Collaborative-Drawing-App/internal/room"
	"github.com/sini-kannan/Collaborative-Drawing-App/internal/store"
	"github.com/sini-kannan/Collaborative-Drawing-App/internal/ws"
)

type API struct {
	hub    *ws.Hub
	store  *store.Store
	logger *zap.Logger
	now    func() time.Time
}

func New(hub *ws.Hub, st *store.Store, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		hub:    hub,
		store:  st,
		logger: logger.With(zap.String("component", "api")),
		now:    time.Now,
	}
}

// Register adds the REST routes to r.
func (a *API) Register(r *mux.Router) {
	r.Methods(http.MethodGet).Path("/health").HandlerFunc(a.HealthHandler)
	r.Methods(http.MethodGet).Path("/api/stats").HandlerFunc(a.StatsHandler)
	r.Methods(http.MethodGet).Path("/api/snapshots").HandlerFunc(a.ListSnapshotsHandler)
	r.Methods(http.MethodPost).Path("/api/snapshots").HandlerFunc(a.CreateSnapshotHandler)
	r.Methods(http.MethodGet).Path("/api/snapshots/{key}").HandlerFunc(a.GetSnapshotHandler)
}

func (a *API) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Warn("error encoding JSON response", zap.Error(err))
	}
}

func (a *API) errorResponse(w http.ResponseWriter, status int, message string) {
	a.jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	a.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": a.now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"rooms":          a.hub.GetActiveRooms(),
		"backend":        a.store.Backend(),
		"timestamp":      a.now().UTC().Format(time.RFC3339),
	}

	if storeStats := a.store.Stats(r.Context()); storeStats != nil {
		stats["store"] = storeStats
	}

	a.jsonResponse(w, http.StatusOK, stats)
}

// Snapshot handlers

type CreateSnapshotRequest struct {
	Room string `json:"room"`
	Name string `json:"name"`
}

type SnapshotListResponse struct {
	Room      string               `json:"room"`
	Snapshots []store.SnapshotInfo `json:"snapshots"`
}

type SnapshotResponse struct {
	Room string        `json:"room"`
	Key  string        `json:"key"`
	Data []store.Point `json:"data"`
}

// ListSnapshotsHandler returns the room's snapshots, newest first. A
// storage failure yields an empty list.
func (a *API) ListSnapshotsHandler(w http.ResponseWriter, r *http.Request) {
	key := room.Sanitize(r.URL.Query().Get("room"))

	infos, _ := a.store.ListSnapshots(r.Context(), key)
	a.jsonResponse(w, http.StatusOK, SnapshotListResponse{
		Room:      key,
		Snapshots: infos,
	})
}

// CreateSnapshotHandler captures the room's current history. An empty
// name becomes the save time.
func (a *API) CreateSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	info, status := a.store.SaveSnapshot(r.Context(), req.Room, req.Name)
	if status != store.StatusOK {
		a.errorResponse(w, http.StatusInternalServerError, "failed to save snapshot")
		return
	}

	a.jsonResponse(w, http.StatusCreated, info)
}

// GetSnapshotHandler returns a snapshot's points, looked up by id or name.
func (a *API) GetSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	roomKey := room.Sanitize(r.URL.Query().Get("room"))
	snapshotKey := mux.Vars(r)["key"]

	points, err := a.store.LoadSnapshot(r.Context(), roomKey, snapshotKey)
	if errors.Is(err, store.ErrNotFound) {
		a.errorResponse(w, http.StatusNotFound, "snapshot not found")
		return
	}
	if err != nil {
		a.errorResponse(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}

	a.jsonResponse(w, http.StatusOK, SnapshotResponse{
		Room: roomKey,
		Key:  snapshotKey,
		Data: points,
	})
}

// Middleware

// AccessLog logs every routed request with its status and duration.
func AccessLog(logger *zap.Logger) mux.MiddlewareFunc {
	logger = logger.With(zap.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			logger.Info("handled",
				zap.String("method", r.Method),
				zap.String("url", r.URL.String()),
				zap.Int("status", m.Code),
				zap.Duration("duration", m.Duration),
				zap.Int64("bytes", m.Written),
			)
		})
	}
}

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
