package repository

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"tunesync/cache"
	"tunesync/model"
)

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func TestMergeDirectLink(t *testing.T) {
	link := nullStr("https://cdn.example/a.flac")
	none := sql.NullString{}

	// a writer must never overwrite a non-null link with null
	assert.Equal(t, link, MergeDirectLink(link, none))
	// an incoming link always wins
	other := nullStr("https://cdn.example/b.flac")
	assert.Equal(t, other, MergeDirectLink(link, other))
	// first population
	assert.Equal(t, link, MergeDirectLink(none, link))
	// still nothing
	assert.Equal(t, none, MergeDirectLink(none, none))
}

func TestRetryable(t *testing.T) {
	now := time.Now()
	ceiling := 2 * time.Minute

	// absent row: resolve
	assert.True(t, Retryable(nil, now, ceiling))

	// synced row: never retry
	synced := &model.TrackFileMapping{
		TrackID:    "t1",
		DirectLink: nullStr("https://cdn.example/a.flac"),
		UpdatedAt:  now.Add(-time.Hour),
	}
	assert.False(t, Retryable(synced, now, ceiling))

	// fresh pending row: another coordinator is on it
	pending := &model.TrackFileMapping{TrackID: "t1", UpdatedAt: now.Add(-30 * time.Second)}
	assert.False(t, Retryable(pending, now, ceiling))

	// stale pending row: abandoned, try again
	stale := &model.TrackFileMapping{TrackID: "t1", UpdatedAt: now.Add(-3 * time.Minute)}
	assert.True(t, Retryable(stale, now, ceiling))
}

func TestIsDuplicateKey(t *testing.T) {
	// translated sentinel
	assert.True(t, isDuplicateKey(gorm.ErrDuplicatedKey))
	assert.True(t, isDuplicateKey(fmt.Errorf("create failed: %w", gorm.ErrDuplicatedKey)))

	// raw driver error, in case the session does not translate
	raw := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a1' for key 'album_id'"}
	assert.True(t, isDuplicateKey(raw))
	assert.True(t, isDuplicateKey(fmt.Errorf("create failed: %w", raw)))

	assert.False(t, isDuplicateKey(&mysql.MySQLError{Number: 1213}))
	assert.False(t, isDuplicateKey(gorm.ErrRecordNotFound))
	assert.False(t, isDuplicateKey(nil))
}

func TestUpsertEventCarriesStoredLink(t *testing.T) {
	// a pending writer raced a completed one: its own view has no link,
	// but the stored row kept the merged one
	written := &model.TrackFileMapping{TrackID: "t1"}
	stored := &model.TrackFileMapping{
		TrackID:        "t1",
		DirectLink:     nullStr("https://cdn.example/a.flac"),
		GroupMappingID: sql.NullInt64{Int64: 7, Valid: true},
	}

	ev := upsertEvent(cache.OpUpdate, written, stored)
	assert.Equal(t, "t1", ev.TrackID)
	assert.Equal(t, "https://cdn.example/a.flac", ev.DirectLink)
	assert.Equal(t, int64(7), ev.GroupMappingID)

	// no stored row to consult, fall back to the writer's view
	ev = upsertEvent(cache.OpInsert, written, nil)
	assert.Equal(t, "", ev.DirectLink)
}
