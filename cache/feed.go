// Package cache holds the Redis-backed pieces: the realtime mapping change
// feed and the short-lived direct-link cache.
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tunesync/logger"
)

// feedChannel is the pub/sub channel carrying mapping store changes. Other
// processes and tabs publish here too, which is how a resolution performed
// elsewhere still reaches local sync state.
const feedChannel = "syncmap:events"

// Event op kinds.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Event is one mapping store change.
type Event struct {
	Op             string `json:"op"`
	TrackID        string `json:"trackId"`
	DirectLink     string `json:"directLink,omitempty"`
	GroupMappingID int64  `json:"groupMappingId,omitempty"`
}

// Feed publishes and consumes mapping change events over Redis pub/sub.
type Feed struct {
	client *redis.Client
}

// NewFeed creates a feed over the given Redis client.
func NewFeed(client *redis.Client) *Feed {
	return &Feed{client: client}
}

// Publish emits a change event to all subscribed processes.
func (f *Feed) Publish(ctx context.Context, ev Event) error {
	if f == nil || f.client == nil {
		return fmt.Errorf("feed not initialized")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal feed event: %w", err)
	}
	if err := f.client.Publish(ctx, feedChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish feed event: %w", err)
	}
	return nil
}

// Subscribe starts consuming change events. The returned channel closes
// when ctx is cancelled or stop is called.
func (f *Feed) Subscribe(ctx context.Context) (<-chan Event, func()) {
	pubsub := f.client.Subscribe(ctx, feedChannel)
	out := make(chan Event, 64)

	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Warn("malformed feed event",
						logger.String("payload", msg.Payload),
						logger.ErrorField(err))
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	stop := func() {
		// closing the pubsub closes its channel, which ends the goroutine
		_ = pubsub.Close()
	}
	return out, stop
}
