// Package syncstate is the process-wide observable registry of per-track
// resolution state. The UI subscribes to it to render syncing, downloading
// and synced badges.
package syncstate

import (
	"context"
	"sync"

	"tunesync/cache"
	"tunesync/logger"
	"tunesync/model"
)

// State is the observable lifecycle label of a track.
type State int

const (
	StateIdle State = iota
	StateSyncing
	StateDownloading
	StateSynced
)

func (s State) String() string {
	switch s {
	case StateSyncing:
		return "syncing"
	case StateDownloading:
		return "downloading"
	case StateSynced:
		return "synced"
	default:
		return "idle"
	}
}

// Change is delivered to subscribers on every mutation.
type Change struct {
	TrackID string
	State   State
}

// Store is the subset of the mapping repository used for rehydration.
type Store interface {
	GetByTrackIDs(ctx context.Context, trackIDs []string) (map[string]*model.TrackFileMapping, error)
}

// Broadcaster keeps three disjoint sets of track IDs and notifies
// subscribers synchronously on every mutation. All sets are guarded by one
// mutex; a track is in at most one set at any instant.
type Broadcaster struct {
	mu          sync.RWMutex
	syncing     map[string]struct{}
	downloading map[string]struct{}
	synced      map[string]struct{}
	subscribers map[int64]func(Change)
	nextSubID   int64
}

var (
	defaultBroadcaster *Broadcaster
	defaultOnce        sync.Once
)

// Default returns the process-wide broadcaster singleton.
func Default() *Broadcaster {
	defaultOnce.Do(func() {
		defaultBroadcaster = New()
	})
	return defaultBroadcaster
}

// New creates an empty broadcaster. Tests and embedders inject their own
// instead of sharing the singleton.
func New() *Broadcaster {
	return &Broadcaster{
		syncing:     make(map[string]struct{}),
		downloading: make(map[string]struct{}),
		synced:      make(map[string]struct{}),
		subscribers: make(map[int64]func(Change)),
	}
}

// AddSyncing marks a track as having an orchestration in flight. Idempotent;
// removes the track from the other sets.
func (b *Broadcaster) AddSyncing(id string) {
	b.transition(id, StateSyncing)
}

// AddDownloading marks a track as matched but waiting on its backend job.
func (b *Broadcaster) AddDownloading(id string) {
	b.transition(id, StateDownloading)
}

// AddSynced marks a track as fully resolved.
func (b *Broadcaster) AddSynced(id string) {
	b.transition(id, StateSynced)
}

// Clear removes a track from every set, e.g. after a failure or timeout.
func (b *Broadcaster) Clear(id string) {
	b.transition(id, StateIdle)
}

func (b *Broadcaster) transition(id string, state State) {
	b.mu.Lock()
	if b.stateOf(id) == state {
		b.mu.Unlock()
		return
	}
	delete(b.syncing, id)
	delete(b.downloading, id)
	delete(b.synced, id)
	switch state {
	case StateSyncing:
		b.syncing[id] = struct{}{}
	case StateDownloading:
		b.downloading[id] = struct{}{}
	case StateSynced:
		b.synced[id] = struct{}{}
	}
	subs := make([]func(Change), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	// Notification is synchronous and unbatched, but happens outside the
	// lock so a subscriber may query state without deadlocking.
	change := Change{TrackID: id, State: state}
	for _, fn := range subs {
		fn(change)
	}
}

// stateOf must be called with the lock held.
func (b *Broadcaster) stateOf(id string) State {
	if _, ok := b.synced[id]; ok {
		return StateSynced
	}
	if _, ok := b.downloading[id]; ok {
		return StateDownloading
	}
	if _, ok := b.syncing[id]; ok {
		return StateSyncing
	}
	return StateIdle
}

// StateOf returns the current lifecycle label of a track.
func (b *Broadcaster) StateOf(id string) State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stateOf(id)
}

// IsSyncing reports whether an orchestration is in flight for the track.
func (b *Broadcaster) IsSyncing(id string) bool {
	return b.StateOf(id) == StateSyncing
}

// IsDownloading reports whether the track waits on a backend job.
func (b *Broadcaster) IsDownloading(id string) bool {
	return b.StateOf(id) == StateDownloading
}

// IsSynced reports whether the track is fully resolved.
func (b *Broadcaster) IsSynced(id string) bool {
	return b.StateOf(id) == StateSynced
}

// Subscribe registers a callback invoked on every state change. The
// returned function unsubscribes.
func (b *Broadcaster) Subscribe(fn func(Change)) func() {
	b.mu.Lock()
	b.nextSubID++
	id := b.nextSubID
	b.subscribers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}

// Reset empties every set without notifying subscribers. For tests.
func (b *Broadcaster) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syncing = make(map[string]struct{})
	b.downloading = make(map[string]struct{})
	b.synced = make(map[string]struct{})
}

// ConsumeFeed applies mapping store change events until the channel closes
// or ctx is cancelled. Remote events are authoritative: they always win
// over local optimistic transitions.
func (b *Broadcaster) ConsumeFeed(ctx context.Context, events <-chan cache.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.applyEvent(ev)
		}
	}
}

func (b *Broadcaster) applyEvent(ev cache.Event) {
	switch ev.Op {
	case cache.OpInsert, cache.OpUpdate:
		if ev.DirectLink != "" {
			b.AddSynced(ev.TrackID)
		} else {
			b.AddDownloading(ev.TrackID)
		}
	case cache.OpDelete:
		b.Clear(ev.TrackID)
	default:
		logger.Warn("unknown feed op", logger.String("op", ev.Op))
	}
}

// Rehydrate loads persisted state for the given tracks: a mapping with a
// direct link becomes synced, one without becomes downloading. Tracks with
// no mapping are left untouched.
func (b *Broadcaster) Rehydrate(ctx context.Context, store Store, trackIDs []string) error {
	mappings, err := store.GetByTrackIDs(ctx, trackIDs)
	if err != nil {
		return err
	}
	for id, m := range mappings {
		if m.Synced() {
			b.AddSynced(id)
		} else {
			b.AddDownloading(id)
		}
	}
	return nil
}
