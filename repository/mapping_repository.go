// Package repository is the durable mapping store: track identity to
// resolved stream reference, plus the per-album bulk-job groupings.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tunesync/cache"
	"tunesync/logger"
	"tunesync/model"
)

// ChangeFeed receives an event after every successful write. Feed failures
// are logged but never fail the write itself.
type ChangeFeed interface {
	Publish(ctx context.Context, ev cache.Event) error
}

// MappingRepository persists album group mappings and track file mappings
// through GORM.
type MappingRepository struct {
	db   *gorm.DB
	feed ChangeFeed
}

// NewMappingRepository creates a repository over the given GORM handle.
// feed may be nil when no realtime propagation is wanted (tests, CLI).
func NewMappingRepository(gdb *gorm.DB, feed ChangeFeed) *MappingRepository {
	return &MappingRepository{db: gdb, feed: feed}
}

// GetByTrackID returns the mapping for a track, or nil when absent.
func (r *MappingRepository) GetByTrackID(ctx context.Context, trackID string) (*model.TrackFileMapping, error) {
	var m model.TrackFileMapping
	err := r.db.WithContext(ctx).Where("track_id = ?", trackID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load track mapping: %w", err)
	}
	return &m, nil
}

// GetByTrackIDs batch-loads mappings for sync-state rehydration. Missing
// tracks are simply absent from the result.
func (r *MappingRepository) GetByTrackIDs(ctx context.Context, trackIDs []string) (map[string]*model.TrackFileMapping, error) {
	if len(trackIDs) == 0 {
		return map[string]*model.TrackFileMapping{}, nil
	}
	var rows []model.TrackFileMapping
	if err := r.db.WithContext(ctx).Where("track_id IN ?", trackIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to batch load track mappings: %w", err)
	}
	out := make(map[string]*model.TrackFileMapping, len(rows))
	for i := range rows {
		out[rows[i].TrackID] = &rows[i]
	}
	return out, nil
}

// Upsert inserts or updates the mapping keyed by TrackID. Concurrent calls
// for the same track are safe: last writer wins on every field except
// direct_link, which is merged monotonically so a non-null link is never
// overwritten with null.
func (r *MappingRepository) Upsert(ctx context.Context, m *model.TrackFileMapping) error {
	now := time.Now()
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "track_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"group_mapping_id": m.GroupMappingID,
			"file_id":          m.FileID,
			"file_path":        m.FilePath,
			"file_name":        m.FileName,
			"direct_link":      gorm.Expr("COALESCE(VALUES(direct_link), track_file_mappings.direct_link)"),
			"updated_at":       now,
		}),
	}).Create(m)
	if tx.Error != nil {
		return fmt.Errorf("failed to upsert track mapping: %w", tx.Error)
	}

	// MySQL reports 1 affected row for an insert, 2 for an update.
	op := cache.OpInsert
	if tx.RowsAffected > 1 {
		op = cache.OpUpdate
	}

	// Re-read before publishing: the COALESCE merge may have kept a link
	// this writer did not carry, and feed consumers treat the event as the
	// ground truth for the row.
	stored, err := r.GetByTrackID(ctx, m.TrackID)
	if err != nil {
		logger.Warn("failed to re-read mapping after upsert",
			logger.String("trackId", m.TrackID),
			logger.ErrorField(err))
	}
	r.publish(ctx, upsertEvent(op, m, stored))
	return nil
}

// upsertEvent builds the feed event for an upsert. The stored row wins over
// the writer's view so a racing pending write never advertises a null link
// for a mapping whose stored link is already set.
func upsertEvent(op string, written, stored *model.TrackFileMapping) cache.Event {
	row := written
	if stored != nil {
		row = stored
	}
	return cache.Event{
		Op:             op,
		TrackID:        written.TrackID,
		DirectLink:     row.DirectLink.String,
		GroupMappingID: row.GroupMappingID.Int64,
	}
}

// CompleteDirectLink populates the link on a pending mapping once its
// backend job finished.
func (r *MappingRepository) CompleteDirectLink(ctx context.Context, trackID, link string) error {
	if link == "" {
		return fmt.Errorf("refusing to complete mapping %s with empty link", trackID)
	}
	err := r.db.WithContext(ctx).Model(&model.TrackFileMapping{}).
		Where("track_id = ?", trackID).
		Updates(map[string]interface{}{
			"direct_link": link,
			"updated_at":  time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to complete track mapping: %w", err)
	}
	r.publish(ctx, cache.Event{Op: cache.OpUpdate, TrackID: trackID, DirectLink: link})
	return nil
}

// GetOrCreateGroupMapping returns the bulk-job mapping for an album,
// creating it on first use. The unique index on album_id keeps the
// invariant of one active mapping per album; a duplicate-key race resolves
// by re-reading the winner.
func (r *MappingRepository) GetOrCreateGroupMapping(ctx context.Context, albumID, sourceName, jobID string) (int64, error) {
	var existing model.AlbumGroupMapping
	err := r.db.WithContext(ctx).Where("album_id = ?", albumID).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("failed to look up group mapping: %w", err)
	}

	created := model.AlbumGroupMapping{
		AlbumID:    albumID,
		SourceName: sourceName,
		JobID:      jobID,
	}
	err = r.db.WithContext(ctx).Create(&created).Error
	if err == nil {
		return created.ID, nil
	}
	if isDuplicateKey(err) {
		// lost the race, another resolver created it first
		if reread := r.db.WithContext(ctx).Where("album_id = ?", albumID).First(&existing).Error; reread == nil {
			return existing.ID, nil
		}
	}
	return 0, fmt.Errorf("failed to create group mapping: %w", err)
}

// isDuplicateKey recognizes a unique-index violation whether or not the
// session translates driver errors: gorm's sentinel when TranslateError is
// on, the raw MySQL 1062 otherwise.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func (r *MappingRepository) publish(ctx context.Context, ev cache.Event) {
	if r.feed == nil {
		return
	}
	if err := r.feed.Publish(ctx, ev); err != nil {
		logger.Warn("failed to publish mapping change",
			logger.String("trackId", ev.TrackID),
			logger.ErrorField(err))
	}
}

// MergeDirectLink is the monotonic completion rule applied by Upsert,
// factored out so fakes and tests share the exact semantics: an incoming
// null never clears an existing link; an incoming link always wins.
func MergeDirectLink(existing, incoming sql.NullString) sql.NullString {
	if incoming.Valid && incoming.String != "" {
		return incoming
	}
	return existing
}

// Retryable decides how a cache check treats an existing row with a null
// direct link: rows younger than the polling ceiling are an in-flight
// resolution (skip), older ones are abandoned and may be re-attempted.
func Retryable(m *model.TrackFileMapping, now time.Time, ceiling time.Duration) bool {
	if m == nil {
		return true
	}
	if m.Synced() {
		return false
	}
	return now.Sub(m.UpdatedAt) > ceiling
}
