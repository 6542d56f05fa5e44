package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"docintell/internal/model"
)

// HistoryCache keeps the newest messages of each conversation as a Redis
// list. Sources are not cached; only role and content feed the prompt.
type HistoryCache struct {
	client *redisv9.Client
	ttl    time.Duration
	limit  int
}

func NewHistoryCache(client *redisv9.Client, ttl time.Duration, limit int) *HistoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if limit <= 0 {
		limit = 11
	}
	return &HistoryCache{client: client, ttl: ttl, limit: limit}
}

// Recent returns the cached window in append order. ok is false on a miss.
func (c *HistoryCache) Recent(ctx context.Context, conversationID string) ([]model.Message, bool, error) {
	raw, err := c.client.LRange(ctx, c.key(conversationID), 0, -1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	messages := make([]model.Message, len(raw))
	for i, item := range raw {
		if err := json.Unmarshal([]byte(item), &messages[i]); err != nil {
			return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
		}
	}
	return messages, true, nil
}

// Store replaces the cached window with the newest messages.
func (c *HistoryCache) Store(ctx context.Context, conversationID string, messages []model.Message) error {
	if len(messages) > c.limit {
		messages = messages[len(messages)-c.limit:]
	}
	values := make([]interface{}, 0, len(messages))
	for i := range messages {
		payload, err := encode(messages[i])
		if err != nil {
			return err
		}
		values = append(values, payload)
	}
	key := c.key(conversationID)
	_, err := c.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

// Append adds a message to an already cached window. A missing window stays
// missing so the next read reloads it from the database.
func (c *HistoryCache) Append(ctx context.Context, conversationID string, message model.Message) error {
	payload, err := encode(message)
	if err != nil {
		return err
	}
	key := c.key(conversationID)
	_, err = c.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.RPushX(ctx, key, payload)
		pipe.LTrim(ctx, key, int64(-c.limit), -1)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) Delete(ctx context.Context, conversationID string) error {
	if err := c.client.Del(ctx, c.key(conversationID)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) key(conversationID string) string {
	return "chat:history:" + conversationID
}

func encode(m model.Message) (string, error) {
	m.Sources = nil
	payload, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal history cache failed: %w", err)
	}
	return string(payload), nil
}
