package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"tunesync/core/syncstate"
	"tunesync/logger"
	"tunesync/model"
)

// TrackSyncer launches background sync jobs.
type TrackSyncer interface {
	StartSync(track model.Track)
}

// TrackProvider supplies track descriptors from the metadata provider.
type TrackProvider interface {
	GetTrack(ctx context.Context, id string) (*model.Track, error)
	SearchTracks(ctx context.Context, query string) ([]model.Track, error)
}

// APIHandler serves the sync API.
type APIHandler struct {
	syncer TrackSyncer
	states *syncstate.Broadcaster
	store  syncstate.Store
	tracks TrackProvider
}

// NewAPIHandler creates the API handler.
func NewAPIHandler(syncer TrackSyncer, states *syncstate.Broadcaster, store syncstate.Store, tracks TrackProvider) *APIHandler {
	return &APIHandler{
		syncer: syncer,
		states: states,
		store:  store,
		tracks: tracks,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// StartSyncHandler fetches the track descriptor and fires a detached sync
// job. The response does not wait for resolution; progress is observable
// through the state endpoint and the websocket feed.
func (h *APIHandler) StartSyncHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["track_id"]
	if trackID == "" {
		writeError(w, http.StatusBadRequest, "track_id is required")
		return
	}

	track, err := h.tracks.GetTrack(r.Context(), trackID)
	if err != nil {
		logger.Warn("failed to fetch track descriptor",
			logger.String("track_id", trackID),
			logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "failed to fetch track metadata")
		return
	}

	h.syncer.StartSync(*track)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"trackId": trackID,
		"state":   h.states.StateOf(trackID).String(),
	})
}

type trackState struct {
	TrackID string `json:"trackId"`
	State   string `json:"state"`
}

// SyncStateHandler reports the current sync state for a set of track IDs.
// IDs unknown to the in-memory broadcaster are looked up in the mapping
// store so a fresh process still answers correctly.
func (h *APIHandler) SyncStateHandler(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "ids query parameter is required")
		return
	}

	ids := make([]string, 0)
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "ids query parameter is required")
		return
	}

	if err := h.states.Rehydrate(r.Context(), h.store, ids); err != nil {
		logger.Error("failed to rehydrate sync states", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to load sync states")
		return
	}

	states := make([]trackState, 0, len(ids))
	for _, id := range ids {
		states = append(states, trackState{
			TrackID: id,
			State:   h.states.StateOf(id).String(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"states": states})
}

// SearchTracksHandler proxies a metadata search so clients can pick a
// track to sync.
func (h *APIHandler) SearchTracksHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q query parameter is required")
		return
	}

	tracks, err := h.tracks.SearchTracks(r.Context(), query)
	if err != nil {
		logger.Warn("metadata search failed",
			logger.String("query", query),
			logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "metadata search failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tracks": tracks})
}
