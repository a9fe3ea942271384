package checkpoint

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"heiten-crawler/internal/models"
)

// RedisStore keeps one string key per query, no TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func OpenRedisStore(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	s := &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.client.Close()
		return nil, err
	}
	return s, nil
}

func (s *RedisStore) Key(query string) string {
	return s.prefix + query
}

func (s *RedisStore) Get(ctx context.Context, key string) (models.Entry, bool, error) {
	val, err := s.client.Get(ctx, s.Key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Entry{}, false, nil
		}
		return models.Entry{}, false, err
	}
	var rec models.Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return models.Entry{}, false, err
	}
	return models.Entry{Key: key, Value: rec}, true, nil
}

func (s *RedisStore) Upsert(ctx context.Context, key string, rec models.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.Key(key), payload, 0).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
