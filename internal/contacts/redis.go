package contacts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sweeney/fall-sensor/internal/logging"
	"github.com/sweeney/fall-sensor/internal/logic"
)

// DefaultRedisKey is the list holding one JSON contact per element.
const DefaultRedisKey = "fall-sensor:contacts"

// Redis reads contacts from a Redis list maintained by the contacts editor.
type Redis struct {
	client *redis.Client
	key    string
	logger zerolog.Logger
}

// OpenRedis connects to the Redis server at url (redis://host:port/db).
func OpenRedis(ctx context.Context, url, key string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, key), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{
		client: client,
		key:    key,
		logger: logging.WithComponent("contacts"),
	}
}

// Contacts returns the list in stored order.
func (r *Redis) Contacts(ctx context.Context) ([]logic.Contact, error) {
	raw, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read contacts from redis: %w", err)
	}
	out, skipped := decodeEntries(raw)
	for _, idx := range skipped {
		r.logger.Warn().Str("key", r.key).Int("index", idx).Msg("Skipping malformed contact entry")
	}
	return out, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// decodeEntries parses JSON list elements, returning the indexes it skipped.
func decodeEntries(raw []string) ([]logic.Contact, []int) {
	out := make([]logic.Contact, 0, len(raw))
	var skipped []int
	for i, s := range raw {
		var e entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			skipped = append(skipped, i)
			continue
		}
		c := e.contact()
		if c.ID == "" {
			c.ID = fmt.Sprintf("%d", i+1)
		}
		out = append(out, c)
	}
	return out, skipped
}
