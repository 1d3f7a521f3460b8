package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/cloudguard/common/config"
	"github.com/telhawk-systems/cloudguard/common/database"
	"github.com/telhawk-systems/cloudguard/common/models"
)

const (
	redisEventPrefix    = "activity:event:"
	redisIdentityPrefix = "activity:identity:"
)

// RedisStore keeps each event as a JSON string expiring at its ttl, and one
// sorted set per identity scoring event ids by timestamp.
type RedisStore struct {
	client   *redis.Client
	pageSize int64
}

// NewRedisStore connects to the Redis server at cfg.URL.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.MaxRetries != 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	s := NewRedisStoreFromClient(redis.NewClient(opts))
	if err := s.Ping(ctx); err != nil {
		s.client.Close()
		return nil, err
	}
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, pageSize: DefaultPageSize}
}

func eventKey(id string) string {
	return redisEventPrefix + id
}

func identityKey(identity string) string {
	return redisIdentityPrefix + identity
}

func (s *RedisStore) Put(ctx context.Context, ev *models.ActivityEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	idx := identityKey(ev.UserIdentity)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, eventKey(ev.ID), body, 0)
		pipe.ZAdd(ctx, idx, redis.Z{Score: float64(ev.Timestamp), Member: ev.ID})
		if ev.TTL > 0 {
			expiry := time.Unix(ev.TTL, 0)
			pipe.ExpireAt(ctx, eventKey(ev.ID), expiry)
			pipe.ExpireAt(ctx, idx, expiry)
		}
		return nil
	})
	if err != nil {
		return unavailable("redis put", err)
	}
	return nil
}

func (s *RedisStore) QueryByIdentityAndWindow(ctx context.Context, identity string, from, to int64) ([]models.ActivityEvent, error) {
	idx := identityKey(identity)
	var out []models.ActivityEvent

	var offset int64
	for {
		page, err := s.page(ctx, idx, from, to, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page.events...)
		if page.ids < s.pageSize {
			break
		}
		offset += page.ids - page.removed
	}
	return failedInWindow(out, identity, from, to), nil
}

type redisPage struct {
	ids     int64
	removed int64
	events  []models.ActivityEvent
}

func (s *RedisStore) page(ctx context.Context, idx string, from, to, offset int64) (redisPage, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	ids, err := s.client.ZRangeByScore(ctx, idx, &redis.ZRangeBy{
		Min:    strconv.FormatInt(from, 10),
		Max:    strconv.FormatInt(to, 10),
		Offset: offset,
		Count:  s.pageSize,
	}).Result()
	if err != nil {
		return redisPage{}, unavailable("redis zrangebyscore", err)
	}
	if len(ids) == 0 {
		return redisPage{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = eventKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return redisPage{}, unavailable("redis mget", err)
	}

	page := redisPage{ids: int64(len(ids))}
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Event expired before its index entry.
			stale = append(stale, ids[i])
			continue
		}
		var ev models.ActivityEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return redisPage{}, fmt.Errorf("decode event %s: %w", ids[i], err)
		}
		page.events = append(page.events, ev)
	}
	if len(stale) > 0 {
		removed, err := s.client.ZRem(ctx, idx, stale...).Result()
		if err != nil {
			return redisPage{}, unavailable("redis zrem", err)
		}
		page.removed = removed
	}
	return page, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("redis ping", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
