package model

import (
	"database/sql"
	"time"
)

// AlbumGroupMapping links an album identity to the upstream bulk job (one
// torrent covering the whole album) chosen on the first track resolution
// within that album. At most one active mapping exists per album identity.
type AlbumGroupMapping struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AlbumID    string    `gorm:"size:64;uniqueIndex" json:"albumId"`
	SourceName string    `gorm:"size:32" json:"sourceName"`
	JobID      string    `gorm:"size:128" json:"jobId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TrackFileMapping is the persisted resolution of a single track. A row
// with a non-null DirectLink is the sole ground truth for "synced"; a row
// with a null DirectLink means the backend job is still downloading. The
// link never reverts to null once populated.
type TrackFileMapping struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TrackID        string         `gorm:"size:64;uniqueIndex" json:"trackId"`
	GroupMappingID sql.NullInt64  `json:"groupMappingId"`
	FileID         string         `gorm:"size:128" json:"fileId"`
	FilePath       string         `gorm:"size:767" json:"filePath"`
	FileName       string         `gorm:"size:255" json:"fileName"`
	DirectLink     sql.NullString `gorm:"size:2048" json:"directLink"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Synced reports whether the mapping represents a completed resolution.
func (m *TrackFileMapping) Synced() bool {
	return m != nil && m.DirectLink.Valid && m.DirectLink.String != ""
}
