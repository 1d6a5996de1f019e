// Package throttle rejects rapid repeats of the same submission by one actor.
// It is advisory: store constraints stay authoritative and a nil redis client
// lets every call through.
package throttle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix   = "throttle"
	markerValue = "locked"
)

// Guard claims short-lived redis keys per (actor, action).
type Guard struct {
	client *redis.Client
	window time.Duration
}

// New returns a Guard. A nil client or a non-positive window disables throttling.
func New(client *redis.Client, window time.Duration) *Guard {
	return &Guard{client: client, window: window}
}

// Enabled reports whether calls can be rejected.
func (guard *Guard) Enabled() bool {
	return guard != nil && guard.client != nil && guard.window > 0
}

// Allow claims the (actor, action) slot for the window. It returns false when
// the slot is already held. Redis failures are returned with allowed=true.
func (guard *Guard) Allow(ctx context.Context, actorID string, action string) (bool, error) {
	if !guard.Enabled() {
		return true, nil
	}
	claimed, err := guard.client.SetNX(ctx, Key(actorID, action), markerValue, guard.window).Result()
	if err != nil {
		return true, fmt.Errorf("throttle check: %w", err)
	}
	return claimed, nil
}

// Release frees the slot early, e.g. after the guarded call failed validation.
func (guard *Guard) Release(ctx context.Context, actorID string, action string) error {
	if !guard.Enabled() {
		return nil
	}
	return guard.client.Del(ctx, Key(actorID, action)).Err()
}

// Key builds the redis key for an actor and action.
func Key(actorID string, action string) string {
	return strings.Join([]string{keyPrefix, strings.TrimSpace(actorID), strings.TrimSpace(action)}, ":")
}
