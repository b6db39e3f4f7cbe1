package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tunesync/logger"
	"tunesync/model"
)

const debridName = "debrid"

// DebridClient resolves tracks through a torrent/debrid backend. Searches
// return whole-album bulk jobs; a cached job yields a direct link
// immediately, an uncached one is submitted and polled until the backend
// has materialized the files.
type DebridClient struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialStore
}

// NewDebridClient creates a debrid adapter against the given API base URL.
func NewDebridClient(baseURL string, creds CredentialStore) *DebridClient {
	return &DebridClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		creds: creds,
	}
}

func (c *DebridClient) Name() string { return debridName }

type debridMagnet struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Ready    bool         `json:"ready"`
	Status   string       `json:"status"`
	Progress float64      `json:"progress"`
	Files    []debridFile `json:"files"`
}

type debridFile struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Search queries the backend for a bulk job covering the track's album (or
// the track itself when no album context exists) and selects the matching
// audio file within it.
func (c *DebridClient) Search(ctx context.Context, track model.Track) ([]model.StreamCandidate, error) {
	key, err := c.creds.APIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("debrid: credential lookup: %w", err)
	}
	if key == "" {
		return nil, ErrInvalidCredentials
	}

	query := SearchQuery(track)
	var result struct {
		Magnets []debridMagnet `json:"magnets"`
	}
	endpoint := fmt.Sprintf("%s/magnets/search?q=%s", c.baseURL, url.QueryEscape(query))
	if err := c.getJSON(ctx, endpoint, key, &result); err != nil {
		return nil, err
	}

	for _, magnet := range result.Magnets {
		file, ok := c.selectFile(magnet, track.Title)
		if !ok {
			continue
		}

		if magnet.Ready {
			link, err := c.unrestrict(ctx, key, magnet.ID, file.ID)
			if err != nil {
				logger.Warn("debrid unrestrict failed, skipping magnet",
					logger.String("magnet", magnet.ID),
					logger.ErrorField(err))
				continue
			}
			return []model.StreamCandidate{{
				SourceName: debridName,
				StreamURL:  link,
				Quality:    QualityFromName(file.Path),
				Size:       file.Size,
				Status:     model.StatusReady,
				JobID:      jobHandle(magnet.ID, file.ID),
				FileID:     file.ID,
				FilePath:   file.Path,
				FileName:   baseName(file.Path),
			}}, nil
		}

		// Uncached: submit the magnet and hand back a pending job.
		if err := c.submit(ctx, key, magnet.ID); err != nil {
			logger.Warn("debrid submit failed, skipping magnet",
				logger.String("magnet", magnet.ID),
				logger.ErrorField(err))
			continue
		}
		return []model.StreamCandidate{{
			SourceName: debridName,
			Quality:    QualityFromName(file.Path),
			Size:       file.Size,
			Status:     debridStatus(magnet.Status),
			JobID:      jobHandle(magnet.ID, file.ID),
			FileID:     file.ID,
			FilePath:   file.Path,
			FileName:   baseName(file.Path),
			Progress:   magnet.Progress,
		}}, nil
	}

	return nil, nil
}

// Poll refreshes a pending job. The handle encodes both the magnet and the
// file chosen at search time.
func (c *DebridClient) Poll(ctx context.Context, jobID string) (*model.StreamCandidate, error) {
	key, err := c.creds.APIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("debrid: credential lookup: %w", err)
	}
	if key == "" {
		return nil, ErrInvalidCredentials
	}

	magnetID, fileID, err := splitJobHandle(jobID)
	if err != nil {
		return nil, err
	}

	var magnet debridMagnet
	endpoint := fmt.Sprintf("%s/magnets/%s", c.baseURL, url.PathEscape(magnetID))
	if err := c.getJSON(ctx, endpoint, key, &magnet); err != nil {
		return nil, err
	}
	if magnet.ID == "" {
		return nil, ErrUnknownJob
	}

	cand := &model.StreamCandidate{
		SourceName: debridName,
		Status:     debridStatus(magnet.Status),
		JobID:      jobID,
		FileID:     fileID,
		Progress:   magnet.Progress,
	}
	for _, f := range magnet.Files {
		if f.ID == fileID {
			cand.FilePath = f.Path
			cand.FileName = baseName(f.Path)
			cand.Quality = QualityFromName(f.Path)
			cand.Size = f.Size
		}
	}

	if magnet.Ready || cand.Status == model.StatusReady {
		link, err := c.unrestrict(ctx, key, magnetID, fileID)
		if err != nil {
			return nil, err
		}
		cand.Status = model.StatusReady
		cand.StreamURL = link
		cand.Progress = 1
	}

	return cand, nil
}

func (c *DebridClient) selectFile(magnet debridMagnet, title string) (RemoteFile, bool) {
	files := make([]RemoteFile, 0, len(magnet.Files))
	for _, f := range magnet.Files {
		files = append(files, RemoteFile{ID: f.ID, Path: f.Path, Size: f.Size})
	}
	return SelectTrackFile(files, title)
}

func (c *DebridClient) submit(ctx context.Context, key, magnetID string) error {
	endpoint := fmt.Sprintf("%s/magnets/%s/submit", c.baseURL, url.PathEscape(magnetID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("debrid: submit request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("debrid: submit returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *DebridClient) unrestrict(ctx context.Context, key, magnetID, fileID string) (string, error) {
	var result struct {
		Link string `json:"link"`
	}
	endpoint := fmt.Sprintf("%s/magnets/%s/files/%s/link",
		c.baseURL, url.PathEscape(magnetID), url.PathEscape(fileID))
	if err := c.getJSON(ctx, endpoint, key, &result); err != nil {
		return "", err
	}
	if result.Link == "" {
		return "", fmt.Errorf("debrid: empty link for magnet %s file %s", magnetID, fileID)
	}
	return result.Link, nil
}

func (c *DebridClient) getJSON(ctx context.Context, endpoint, key string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("debrid: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("debrid: API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("debrid: decode response: %w", err)
	}
	return nil
}

// debridStatus maps the backend's status strings onto the closed candidate
// status set.
func debridStatus(s string) model.CandidateStatus {
	switch strings.ToLower(s) {
	case "ready", "finished", "uploaded":
		return model.StatusReady
	case "downloading":
		return model.StatusDownloading
	case "queued", "magnet_conversion", "waiting":
		return model.StatusQueued
	case "dead":
		return model.StatusDead
	default:
		return model.StatusError
	}
}

func jobHandle(magnetID, fileID string) string {
	return magnetID + "/" + fileID
}

func splitJobHandle(handle string) (magnetID, fileID string, err error) {
	idx := strings.LastIndex(handle, "/")
	if idx <= 0 || idx == len(handle)-1 {
		return "", "", fmt.Errorf("debrid: malformed job handle %q", handle)
	}
	return handle[:idx], handle[idx+1:], nil
}

func baseName(path string) string {
	if idx := strings.LastIndexAny(path, "/\\"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
