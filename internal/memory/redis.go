package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "docqa:session:"

// Redis stores sessions in Redis so several server replicas share them.
// A positive ttl expires idle sessions.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects using a redis:// URL and checks the connection.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func historyKey(id string) string { return keyPrefix + sessionKey(id) + ":history" }
func summaryKey(id string) string { return keyPrefix + sessionKey(id) + ":summary" }

func (r *Redis) AddTurn(ctx context.Context, sessionID, userText, botText string) error {
	user, err := json.Marshal(Message{Role: RoleUser, Text: userText})
	if err != nil {
		return err
	}
	bot, err := json.Marshal(Message{Role: RoleAssistant, Text: botText})
	if err != nil {
		return err
	}

	key := historyKey(sessionID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, user, bot)
		pipe.LTrim(ctx, key, -MaxHistory, -1)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
			pipe.Expire(ctx, summaryKey(sessionID), r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record turn: %w", err)
	}
	return nil
}

func (r *Redis) History(ctx context.Context, sessionID string) ([]Message, error) {
	raw, err := r.client.LRange(ctx, historyKey(sessionID), -PromptHistory, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	msgs := make([]Message, 0, len(raw))
	for _, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue // skip entries written by something else
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (r *Redis) Summary(ctx context.Context, sessionID string) (string, error) {
	s, err := r.client.Get(ctx, summaryKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read summary: %w", err)
	}
	return s, nil
}

func (r *Redis) SetSummary(ctx context.Context, sessionID, summary string) error {
	if err := r.client.Set(ctx, summaryKey(sessionID), summary, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store summary: %w", err)
	}
	return nil
}
