package chathistory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "roomforge:chat:"

type RedisStore struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedisStore keeps each transcript for ttl after its last write. The ttl should
// outlive the project's inactivity and purge windows.
func NewRedisStore(rdb *goredis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, key string) (History, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return History{}, nil
	}
	if err != nil {
		return History{}, fmt.Errorf("chat history load %s: %w", key, err)
	}
	var h History
	if err := json.Unmarshal(raw, &h); err != nil {
		return History{}, fmt.Errorf("chat history decode %s: %w", key, err)
	}
	return h, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, h History) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("chat history encode %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("chat history save %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("chat history delete %s: %w", key, err)
	}
	return nil
}
