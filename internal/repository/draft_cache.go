package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DraftCache keeps unsent draft text in redis so it survives conversation switches.
type DraftCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDraftCache builds the cache; a non-positive ttl keeps drafts for a week.
func NewDraftCache(client *redis.Client, ttl time.Duration) *DraftCache {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &DraftCache{client: client, ttl: ttl}
}

// Load returns the saved draft text, or "" when none exists.
func (d *DraftCache) Load(ctx context.Context, userID, conversationID string) (string, error) {
	text, err := d.client.Get(ctx, draftKey(userID, conversationID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return text, err
}

// Save stores the draft text; empty text removes the entry.
func (d *DraftCache) Save(ctx context.Context, userID, conversationID, text string) error {
	key := draftKey(userID, conversationID)
	if text == "" {
		return d.client.Del(ctx, key).Err()
	}
	return d.client.Set(ctx, key, text, d.ttl).Err()
}

func draftKey(userID, conversationID string) string {
	return fmt.Sprintf("chat:draft:%s:%s", userID, conversationID)
}
