package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soaringjerry/Pictopercept/internal/services"
)

// RedisStore keeps one JSON encoded state per session under
// "session:<sid>:state" with a sliding TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(addr, password string, db int, ttl time.Duration) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// NewRedisStoreFromURL accepts redis://host:port/db style addresses.
func NewRedisStoreFromURL(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisStore{rdb: redis.NewClient(opts), ttl: ttl}, nil
}

func key(sid string) string { return fmt.Sprintf("session:%s:state", sid) }

func (s *RedisStore) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *RedisStore) Close() error { return s.rdb.Close() }

func (s *RedisStore) Load(ctx context.Context, sid string) (*services.SessionState, error) {
	raw, err := s.rdb.Get(ctx, key(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st services.SessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sid, err)
	}
	return &st, nil
}

func (s *RedisStore) Save(ctx context.Context, sid string, st *services.SessionState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key(sid), data, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, sid string) error {
	return s.rdb.Del(ctx, key(sid)).Err()
}

var _ services.SessionStore = (*RedisStore)(nil)
