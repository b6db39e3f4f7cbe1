// Package syncer runs track resolution as a detached background task: it is
// kicked off when a track is favorited, drives the resolver, persists the
// outcome and keeps the sync state broadcaster updated throughout. It never
// reports errors to its caller; failures are logged and show up only as the
// absence of a state change.
package syncer

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"tunesync/core/resolver"
	"tunesync/core/source"
	"tunesync/core/syncstate"
	"tunesync/logger"
	"tunesync/model"
	"tunesync/repository"
)

const (
	defaultPollInterval        = time.Second
	defaultZeroProgressTimeout = 10 * time.Second
	defaultPollCeiling         = 2 * time.Minute
)

// MappingStore is the persistence surface the coordinator needs.
type MappingStore interface {
	GetByTrackID(ctx context.Context, trackID string) (*model.TrackFileMapping, error)
	Upsert(ctx context.Context, m *model.TrackFileMapping) error
	CompleteDirectLink(ctx context.Context, trackID, link string) error
	GetOrCreateGroupMapping(ctx context.Context, albumID, sourceName, jobID string) (int64, error)
}

// TrackResolver abstracts the resolution orchestrator.
type TrackResolver interface {
	Resolve(ctx context.Context, track model.Track) (*resolver.Resolution, error)
}

// Archiver optionally copies a resolved stream into durable storage.
type Archiver interface {
	ArchiveStream(ctx context.Context, trackID, streamURL string) error
}

// LinkCache optionally caches resolved direct links.
type LinkCache interface {
	Put(ctx context.Context, trackID, link string) error
}

// Options tune the coordinator's polling behavior. The zero value picks the
// production defaults; tests compress the durations and inject a clock.
type Options struct {
	PollInterval        time.Duration
	ZeroProgressTimeout time.Duration
	PollCeiling         time.Duration
	// DropDir, when set, lets a local folder watcher poke the poll loop as
	// soon as the debrid download lands on disk.
	DropDir string
	Now     func() time.Time
}

// Coordinator drives background resolutions. Multiple invocations may run
// concurrently, one per track; racing invocations for the same track are
// safe because the store upsert and the broadcaster sets are idempotent.
type Coordinator struct {
	resolver TrackResolver
	store    MappingStore
	states   *syncstate.Broadcaster
	archiver Archiver
	links    LinkCache
	opts     Options
}

// New creates a coordinator. archiver and links may be nil.
func New(res TrackResolver, store MappingStore, states *syncstate.Broadcaster, archiver Archiver, links LinkCache, opts Options) *Coordinator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ZeroProgressTimeout <= 0 {
		opts.ZeroProgressTimeout = defaultZeroProgressTimeout
	}
	if opts.PollCeiling <= 0 {
		opts.PollCeiling = defaultPollCeiling
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		resolver: res,
		store:    store,
		states:   states,
		archiver: archiver,
		links:    links,
		opts:     opts,
	}
}

// StartSync spawns a detached resolution task for the track and returns
// immediately. The task has its own error boundary: panics and errors are
// logged, never propagated.
func (c *Coordinator) StartSync(track model.Track) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("sync task panicked",
					logger.String("track", track.ID),
					logger.Any("panic", r))
				c.states.Clear(track.ID)
			}
		}()
		c.Run(context.Background(), track)
	}()
}

// Run executes one resolution attempt synchronously. Exposed for the CLI
// and tests; background callers go through StartSync.
func (c *Coordinator) Run(ctx context.Context, track model.Track) {
	runID := uuid.NewString()[:8]

	existing, err := c.store.GetByTrackID(ctx, track.ID)
	if err != nil {
		logger.Error("sync cache check failed",
			logger.String("run", runID),
			logger.String("track", track.ID),
			logger.ErrorField(err))
		return
	}
	if existing.Synced() {
		// already resolved, no network calls
		c.states.AddSynced(track.ID)
		return
	}
	if existing != nil && !repository.Retryable(existing, c.opts.Now(), c.opts.PollCeiling) {
		// a fresh pending row means another coordinator or process is on it
		c.states.AddDownloading(track.ID)
		return
	}

	c.states.AddSyncing(track.ID)

	res, err := c.resolver.Resolve(ctx, track)
	if err != nil {
		if errors.Is(err, resolver.ErrInvalidCredentials) {
			logger.Warn("sync blocked by rejected credentials",
				logger.String("run", runID),
				logger.String("track", track.ID))
		} else {
			logger.Info("sync found no stream",
				logger.String("run", runID),
				logger.String("track", track.ID),
				logger.ErrorField(err))
		}
		c.states.Clear(track.ID)
		return
	}

	mapping := c.buildMapping(ctx, track, res)

	if !res.Pending() {
		mapping.DirectLink = sql.NullString{String: res.Candidate.StreamURL, Valid: true}
		// all-or-nothing: without the row the synced state would be a lie
		if err := c.store.Upsert(ctx, mapping); err != nil {
			logger.Error("sync store write failed",
				logger.String("run", runID),
				logger.String("track", track.ID),
				logger.ErrorField(err))
			c.states.Clear(track.ID)
			return
		}
		c.finish(ctx, track, res.Candidate.StreamURL)
		return
	}

	if err := c.store.Upsert(ctx, mapping); err != nil {
		logger.Error("sync store write failed",
			logger.String("run", runID),
			logger.String("track", track.ID),
			logger.ErrorField(err))
		c.states.Clear(track.ID)
		return
	}
	c.states.AddDownloading(track.ID)
	c.poll(ctx, runID, track, res)
}

// buildMapping assembles the row for the chosen candidate, creating the
// album group mapping lazily when the track has album context and the
// candidate belongs to a bulk job.
func (c *Coordinator) buildMapping(ctx context.Context, track model.Track, res *resolver.Resolution) *model.TrackFileMapping {
	mapping := &model.TrackFileMapping{
		TrackID:  track.ID,
		FileID:   res.Candidate.FileID,
		FilePath: res.Candidate.FilePath,
		FileName: res.Candidate.FileName,
	}
	if track.HasAlbum() && res.Candidate.JobID != "" {
		groupID, err := c.store.GetOrCreateGroupMapping(ctx, track.AlbumID, res.Candidate.SourceName, res.Candidate.JobID)
		if err != nil {
			logger.Warn("group mapping failed, continuing without",
				logger.String("track", track.ID),
				logger.String("album", track.AlbumID),
				logger.ErrorField(err))
		} else {
			mapping.GroupMappingID = sql.NullInt64{Int64: groupID, Valid: true}
		}
	}
	return mapping
}

// poll drives a pending job to completion or timeout. Two independent
// timeout rules apply: progress stuck at zero for longer than
// ZeroProgressTimeout aborts early, and PollCeiling caps the whole loop
// regardless of progress. On timeout the downloading state is cleared but
// the row stays for a later manual retry.
func (c *Coordinator) poll(ctx context.Context, runID string, track model.Track, res *resolver.Resolution) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.PollCeiling)
	defer cancel()

	// a drop-folder watcher pokes the loop the moment the file lands
	wake := make(chan struct{}, 1)
	if c.opts.DropDir != "" {
		go func() {
			if _, err := source.WaitForFile(ctx, c.opts.DropDir, track.Title); err == nil {
				select {
				case wake <- struct{}{}:
				default:
				}
			}
		}()
	}

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	start := c.opts.Now()
	progress := res.Candidate.Progress

	for {
		select {
		case <-ctx.Done():
			logger.Warn("sync polling hit ceiling",
				logger.String("run", runID),
				logger.String("track", track.ID),
				logger.Duration("ceiling", c.opts.PollCeiling))
			c.states.Clear(track.ID)
			return
		case <-ticker.C:
		case <-wake:
		}

		cand, err := res.Source.Poll(ctx, res.Candidate.JobID)
		if err != nil {
			if errors.Is(err, source.ErrUnknownJob) || errors.Is(err, source.ErrInvalidCredentials) {
				logger.Warn("sync polling aborted",
					logger.String("run", runID),
					logger.String("track", track.ID),
					logger.ErrorField(err))
				c.states.Clear(track.ID)
				return
			}
			// transient network errors are non-fatal, next tick retries
			logger.Debug("sync poll attempt failed",
				logger.String("run", runID),
				logger.String("track", track.ID),
				logger.ErrorField(err))
			continue
		}

		switch cand.Status {
		case model.StatusReady:
			if err := c.store.CompleteDirectLink(ctx, track.ID, cand.StreamURL); err != nil {
				logger.Error("sync store write failed",
					logger.String("run", runID),
					logger.String("track", track.ID),
					logger.ErrorField(err))
				c.states.Clear(track.ID)
				return
			}
			c.finish(ctx, track, cand.StreamURL)
			return
		case model.StatusError, model.StatusDead:
			logger.Warn("sync job died",
				logger.String("run", runID),
				logger.String("track", track.ID),
				logger.String("status", cand.Status.String()))
			c.states.Clear(track.ID)
			return
		case model.StatusDownloading, model.StatusQueued:
			if cand.Progress > progress {
				progress = cand.Progress
			}
			if progress <= 0 && c.opts.Now().Sub(start) > c.opts.ZeroProgressTimeout {
				logger.Warn("sync job stuck at zero progress",
					logger.String("run", runID),
					logger.String("track", track.ID),
					logger.Duration("waited", c.opts.Now().Sub(start)))
				c.states.Clear(track.ID)
				return
			}
		}
	}
}

// finish marks a track synced and runs the best-effort post-sync steps.
func (c *Coordinator) finish(ctx context.Context, track model.Track, streamURL string) {
	c.states.AddSynced(track.ID)

	if c.links != nil {
		if err := c.links.Put(ctx, track.ID, streamURL); err != nil {
			logger.Debug("link cache write failed",
				logger.String("track", track.ID),
				logger.ErrorField(err))
		}
	}
	if c.archiver != nil {
		if err := c.archiver.ArchiveStream(ctx, track.ID, streamURL); err != nil {
			logger.Warn("stream archive failed",
				logger.String("track", track.ID),
				logger.ErrorField(err))
		}
	}
}
