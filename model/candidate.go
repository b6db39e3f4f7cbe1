package model

// CandidateStatus is the readiness of a stream candidate returned by a
// source adapter. It is a closed set; the orchestrator switches over it
// exhaustively instead of comparing strings.
type CandidateStatus int

const (
	StatusReady CandidateStatus = iota
	StatusDownloading
	StatusQueued
	StatusError
	StatusDead
)

func (s CandidateStatus) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusDownloading:
		return "downloading"
	case StatusQueued:
		return "queued"
	case StatusError:
		return "error"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Pending reports whether the candidate still needs its backend job polled
// before a stream URL exists.
func (s CandidateStatus) Pending() bool {
	return s == StatusDownloading || s == StatusQueued
}

// StreamCandidate is a possibly-playable result from a source adapter.
// Ready candidates carry a usable StreamURL; pending ones carry the JobID
// of the backend job to poll instead.
type StreamCandidate struct {
	SourceName string          `json:"sourceName"`
	StreamURL  string          `json:"streamUrl,omitempty"`
	Quality    string          `json:"quality,omitempty"` // free-text: "FLAC", "320kbps", ...
	Size       int64           `json:"size,omitempty"`
	Status     CandidateStatus `json:"status"`
	JobID      string          `json:"jobId,omitempty"`
	FileID     string          `json:"fileId,omitempty"`
	FilePath   string          `json:"filePath,omitempty"`
	FileName   string          `json:"fileName,omitempty"`
	Progress   float64         `json:"progress,omitempty"` // 0..1, meaningful while pending
}
