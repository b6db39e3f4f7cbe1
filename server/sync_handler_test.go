package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunesync/core/syncstate"
	"tunesync/model"
)

type fakeSyncer struct {
	started []model.Track
}

func (f *fakeSyncer) StartSync(track model.Track) {
	f.started = append(f.started, track)
}

type fakeProvider struct {
	tracks map[string]model.Track
	err    error
}

func (f *fakeProvider) GetTrack(ctx context.Context, id string) (*model.Track, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tracks[id]
	if !ok {
		return nil, errors.New("track not found")
	}
	return &t, nil
}

func (f *fakeProvider) SearchTracks(ctx context.Context, query string) ([]model.Track, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Track, 0, len(f.tracks))
	for _, t := range f.tracks {
		out = append(out, t)
	}
	return out, nil
}

type fakeMappingStore struct {
	mappings map[string]*model.TrackFileMapping
}

func (f *fakeMappingStore) GetByTrackIDs(ctx context.Context, trackIDs []string) (map[string]*model.TrackFileMapping, error) {
	out := make(map[string]*model.TrackFileMapping)
	for _, id := range trackIDs {
		if m, ok := f.mappings[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func newTestHandler(syncer *fakeSyncer, provider *fakeProvider, store *fakeMappingStore) (*APIHandler, *mux.Router) {
	if store == nil {
		store = &fakeMappingStore{mappings: map[string]*model.TrackFileMapping{}}
	}
	h := NewAPIHandler(syncer, syncstate.New(), store, provider)

	router := mux.NewRouter()
	router.HandleFunc("/api/sync/{track_id}", h.StartSyncHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sync/state", h.SyncStateHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/search", h.SearchTracksHandler).Methods(http.MethodGet)
	return h, router
}

func TestStartSyncHandlerAccepted(t *testing.T) {
	syncer := &fakeSyncer{}
	provider := &fakeProvider{tracks: map[string]model.Track{
		"track-1": {ID: "track-1", Title: "Midnight City", Artist: "M83"},
	}}
	_, router := newTestHandler(syncer, provider, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/track-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, syncer.started, 1)
	assert.Equal(t, "Midnight City", syncer.started[0].Title)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "track-1", body["trackId"])
}

func TestStartSyncHandlerUnknownTrack(t *testing.T) {
	syncer := &fakeSyncer{}
	provider := &fakeProvider{tracks: map[string]model.Track{}}
	_, router := newTestHandler(syncer, provider, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, syncer.started)
}

func TestSyncStateHandlerRehydratesFromStore(t *testing.T) {
	store := &fakeMappingStore{mappings: map[string]*model.TrackFileMapping{
		"track-1": {
			TrackID:    "track-1",
			DirectLink: sql.NullString{String: "https://cdn.example/a.mp3", Valid: true},
		},
		"track-2": {TrackID: "track-2"},
	}}
	_, router := newTestHandler(&fakeSyncer{}, &fakeProvider{}, store)

	req := httptest.NewRequest(http.MethodGet, "/api/sync/state?ids=track-1,track-2,track-3", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		States []trackState `json:"states"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.States, 3)

	byID := make(map[string]string)
	for _, s := range body.States {
		byID[s.TrackID] = s.State
	}
	assert.Equal(t, "synced", byID["track-1"])
	assert.Equal(t, "downloading", byID["track-2"])
	assert.Equal(t, "idle", byID["track-3"])
}

func TestSyncStateHandlerRequiresIDs(t *testing.T) {
	_, router := newTestHandler(&fakeSyncer{}, &fakeProvider{}, nil)

	for _, target := range []string{"/api/sync/state", "/api/sync/state?ids=,%20,"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestSearchTracksHandler(t *testing.T) {
	provider := &fakeProvider{tracks: map[string]model.Track{
		"track-1": {ID: "track-1", Title: "Midnight City", Artist: "M83"},
	}}
	_, router := newTestHandler(&fakeSyncer{}, provider, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/tracks/search?q=midnight", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tracks []model.Track `json:"tracks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tracks, 1)
	assert.Equal(t, "Midnight City", body.Tracks[0].Title)
}

func TestCORSMiddlewarePreflight(t *testing.T) {
	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.HandleFunc("/api/sync/state", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/sync/state", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
