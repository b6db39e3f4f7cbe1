// Package source implements the backend adapters the resolver queries for
// playable streams. Each adapter is best-effort: errors are reported to the
// caller but must never abort the overall resolution chain.
package source

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"tunesync/core/match"
	"tunesync/model"
)

// ErrInvalidCredentials is returned when a backend rejects the stored API
// key. It is the only adapter error the orchestrator surfaces as-is, so the
// UI can prompt for re-entry.
var ErrInvalidCredentials = errors.New("source: invalid credentials")

// ErrUnknownJob is returned by Poll for a job handle the backend no longer
// knows about.
var ErrUnknownJob = errors.New("source: unknown job")

// Adapter is the common contract of every stream source. Search returns
// zero or more candidates; a pending candidate carries the JobID to hand to
// Poll. Both calls are expected to respect ctx cancellation.
type Adapter interface {
	Name() string
	Search(ctx context.Context, track model.Track) ([]model.StreamCandidate, error)
	Poll(ctx context.Context, jobID string) (*model.StreamCandidate, error)
}

// CredentialStore supplies the API key some backends require.
type CredentialStore interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticCredentials is a CredentialStore backed by a fixed key from config.
type StaticCredentials struct {
	Key string
}

func (s StaticCredentials) APIKey(ctx context.Context) (string, error) {
	return s.Key, nil
}

// audioExtensions is the allow-list used to pick audio files out of bulk
// download listings.
var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".flac": {},
	".m4a":  {},
	".wav":  {},
	".aac":  {},
	".ogg":  {},
}

// IsAudioFile reports whether the file name carries an allowed audio
// extension.
func IsAudioFile(name string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// RemoteFile is one entry of a bulk job's file listing.
type RemoteFile struct {
	ID   string
	Path string
	Size int64
}

// SelectTrackFile picks the file within a bulk listing that corresponds to
// the requested track title: audio files only, filtered through the title
// matcher, closest name first when several match.
func SelectTrackFile(files []RemoteFile, title string) (RemoteFile, bool) {
	byName := make(map[string]RemoteFile)
	var names []string
	for _, f := range files {
		base := filepath.Base(f.Path)
		if !IsAudioFile(base) {
			continue
		}
		if !match.Titles(base, title) {
			continue
		}
		if _, seen := byName[base]; !seen {
			byName[base] = f
			names = append(names, base)
		}
	}
	if len(names) == 0 {
		return RemoteFile{}, false
	}
	ranked := match.Rank(names, title)
	return byName[ranked[0]], true
}

// QualityFromName derives a coarse quality tag from a file name.
func QualityFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".flac", ".wav":
		return "FLAC"
	case ".m4a", ".aac":
		return "AAC"
	case ".ogg":
		return "OGG"
	default:
		return "MP3"
	}
}

// SearchQuery builds the provider query for a track: album+artist when the
// track has album context (one bulk job then covers the whole album),
// title+artist otherwise.
func SearchQuery(track model.Track) string {
	if track.HasAlbum() {
		return strings.TrimSpace(track.Artist + " " + track.Album)
	}
	return strings.TrimSpace(track.Artist + " " + track.Title)
}
