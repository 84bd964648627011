package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/moving-chat/internal/domain"
)

// ConversationCache stores conversation metadata for a short time.
type ConversationCache interface {
	Get(ctx context.Context, userID, conversationID string) (*domain.Conversation, error)
	Set(ctx context.Context, userID string, conv domain.Conversation) error
}

type redisConversationCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewConversationCache builds a redis backed cache. Entries are scoped per user
// because the counterpart differs between the two participants.
func NewConversationCache(client *redis.Client, ttl time.Duration) ConversationCache {
	return &redisConversationCache{client: client, ttl: ttl}
}

// Get returns nil without error on a miss.
func (c *redisConversationCache) Get(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	raw, err := c.client.Get(ctx, conversationKey(userID, conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var conv domain.Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, fmt.Errorf("decode cached conversation: %w", err)
	}
	return &conv, nil
}

func (c *redisConversationCache) Set(ctx context.Context, userID string, conv domain.Conversation) error {
	if c.ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, conversationKey(userID, conv.ID), raw, c.ttl).Err()
}

func conversationKey(userID, conversationID string) string {
	return fmt.Sprintf("chat:conversation:%s:%s", userID, conversationID)
}
