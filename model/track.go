package model

// Track is the immutable descriptor for a song as supplied by the metadata
// provider. It is only ever used as input to the resolution pipeline.
type Track struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	AlbumID  string `json:"albumId,omitempty"`
	Duration int    `json:"duration"` // seconds, 0 means unknown
	CoverURL string `json:"coverUrl,omitempty"`
}

// HasAlbum reports whether the track carries enough album context for an
// album-level source query.
func (t Track) HasAlbum() bool {
	return t.AlbumID != "" && t.Album != ""
}
