// Package meta is the HTTP client for the canonical metadata provider. It
// only supplies track descriptors; resolution of playable streams happens
// elsewhere.
package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tunesync/model"
)

// Client talks to the metadata provider API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a metadata client against the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type apiTrack struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	AlbumID  string `json:"albumId"`
	Duration int    `json:"duration"`
	CoverURL string `json:"coverUrl"`
}

func (t apiTrack) toModel() model.Track {
	return model.Track{
		ID:       t.ID,
		Title:    t.Title,
		Artist:   t.Artist,
		Album:    t.Album,
		AlbumID:  t.AlbumID,
		Duration: t.Duration,
		CoverURL: t.CoverURL,
	}
}

// SearchTracks queries the provider for tracks matching the query.
func (c *Client) SearchTracks(ctx context.Context, query string) ([]model.Track, error) {
	endpoint := fmt.Sprintf("%s/tracks/search?q=%s", c.baseURL, url.QueryEscape(query))

	var payload struct {
		Tracks []apiTrack `json:"tracks"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	tracks := make([]model.Track, 0, len(payload.Tracks))
	for _, t := range payload.Tracks {
		tracks = append(tracks, t.toModel())
	}
	return tracks, nil
}

// GetTrack fetches a single track descriptor by provider ID.
func (c *Client) GetTrack(ctx context.Context, id string) (*model.Track, error) {
	endpoint := fmt.Sprintf("%s/tracks/%s", c.baseURL, url.PathEscape(id))

	var payload apiTrack
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	if payload.ID == "" {
		return nil, fmt.Errorf("meta: track %s not found", id)
	}
	track := payload.toModel()
	return &track, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("meta: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("meta: API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("meta: decode response: %w", err)
	}
	return nil
}
