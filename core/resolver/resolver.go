// Package resolver walks an ordered fallback chain of stream sources and
// picks the first acceptable candidate for a track.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"tunesync/core/match"
	"tunesync/core/source"
	"tunesync/logger"
	"tunesync/model"
)

var (
	// ErrNotFound means candidates were seen but none passed the matcher.
	ErrNotFound = errors.New("resolver: track not found on any source")
	// ErrAllSourcesFailed means every adapter in the chain errored.
	ErrAllSourcesFailed = errors.New("resolver: all sources failed")
	// ErrInvalidCredentials mirrors the adapter-level credential rejection.
	ErrInvalidCredentials = source.ErrInvalidCredentials
)

// Resolution is the outcome of a successful resolve: the chosen candidate
// plus the adapter that produced it, so pending jobs can be polled against
// the same backend.
type Resolution struct {
	Candidate model.StreamCandidate
	Source    source.Adapter
}

// Pending reports whether the resolution still needs polling.
func (r *Resolution) Pending() bool {
	return r.Candidate.Status.Pending()
}

// Config selects and orders the sources to try.
type Config struct {
	// Order is the fallback chain; sources are tried in this order and the
	// first acceptable candidate wins. Latency matters more than marginal
	// quality gains, so the chain never waits for later sources once an
	// earlier one produced a ready match.
	Order []string
	// AllowParallelPending keeps walking the chain after a source returned
	// a pending job, in the hope a later source is ready immediately. The
	// pending job is kept as the fallback result.
	AllowParallelPending bool
}

// Resolver queries the configured adapters in fallback order.
type Resolver struct {
	adapters map[string]source.Adapter
	cfg      Config
}

// New creates a resolver over the given adapters. Names in cfg.Order that
// have no registered adapter are skipped with a warning at resolve time.
func New(cfg Config, adapters ...source.Adapter) *Resolver {
	byName := make(map[string]source.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &Resolver{adapters: byName, cfg: cfg}
}

// Resolve finds a stream for the track. It returns the first ready
// candidate that passes the title matcher; a pending job is returned for
// the caller to poll. Adapter failures are non-fatal and logged; the single
// exception is a credential rejection, which is surfaced as such.
func (r *Resolver) Resolve(ctx context.Context, track model.Track) (*Resolution, error) {
	var (
		pending  *Resolution
		attempts int
		failures int
	)

	for _, name := range r.cfg.Order {
		adapter, ok := r.adapters[name]
		if !ok {
			logger.Warn("unknown source in fallback chain", logger.String("source", name))
			continue
		}
		attempts++

		candidates, err := adapter.Search(ctx, track)
		if err != nil {
			if errors.Is(err, source.ErrInvalidCredentials) {
				return nil, fmt.Errorf("source %s: %w", name, ErrInvalidCredentials)
			}
			failures++
			logger.Warn("source search failed",
				logger.String("source", name),
				logger.String("track", track.ID),
				logger.ErrorField(err))
			continue
		}

		for _, cand := range candidates {
			switch cand.Status {
			case model.StatusReady:
				if !r.acceptable(cand, track) {
					continue
				}
				logger.Info("track resolved",
					logger.String("source", name),
					logger.String("track", track.ID),
					logger.String("quality", cand.Quality))
				return &Resolution{Candidate: cand, Source: adapter}, nil
			case model.StatusDownloading, model.StatusQueued:
				if pending == nil && r.acceptable(cand, track) {
					pending = &Resolution{Candidate: cand, Source: adapter}
				}
			case model.StatusError, model.StatusDead:
				// unusable, skip
			}
		}

		if pending != nil && !r.cfg.AllowParallelPending {
			return pending, nil
		}
	}

	if pending != nil {
		return pending, nil
	}
	if attempts > 0 && failures == attempts {
		return nil, ErrAllSourcesFailed
	}
	return nil, ErrNotFound
}

// acceptable double-checks a candidate against the title matcher. Adapters
// already filter, but a named file is authoritative over whatever the
// adapter decided.
func (r *Resolver) acceptable(cand model.StreamCandidate, track model.Track) bool {
	if cand.FileName == "" {
		return true
	}
	return match.Titles(cand.FileName, track.Title)
}
