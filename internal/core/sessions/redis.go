package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/markdave123-py/Contexta-knowledge/internal/core"
	"github.com/markdave123-py/Contexta-knowledge/internal/models"
)

const (
	sessionKeyPrefix = "ingest:session:"
	deadlineKey      = "ingest:sessions:deadline"

	// closed sessions are kept around for a while so late finalize/abort calls get a 409
	closedRetention = time.Hour
)

var _ core.SessionStore = (*RedisStore)(nil)

// RedisStore keeps each session as a JSON value and indexes open sessions by deadline
// in a sorted set, so the janitor can find expired ones without scanning keys.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

func (r *RedisStore) Create(ctx context.Context, s *models.IngestionSession) error {
	return r.save(ctx, s)
}

func (r *RedisStore) Get(ctx context.Context, id string) (*models.IngestionSession, error) {
	raw, err := r.rdb.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	var s models.IngestionSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (r *RedisStore) Update(ctx context.Context, s *models.IngestionSession) error {
	n, err := r.rdb.Exists(ctx, sessionKeyPrefix+s.ID).Result()
	if err != nil {
		return fmt.Errorf("update session %s: %w", s.ID, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return r.save(ctx, s)
}

func (r *RedisStore) Expired(ctx context.Context, now time.Time) ([]models.IngestionSession, error) {
	ids, err := r.rdb.ZRangeByScore(ctx, deadlineKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}

	out := make([]models.IngestionSession, 0, len(ids))
	for _, id := range ids {
		s, err := r.Get(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			// value expired or was deleted, drop the dangling index entry
			r.rdb.ZRem(ctx, deadlineKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if s.State == models.SessionOpen {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *RedisStore) save(ctx context.Context, s *models.IngestionSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}

	// open sessions live until the janitor handles them, closed ones age out
	ttl := time.Duration(0)
	if s.State != models.SessionOpen {
		ttl = closedRetention
	}

	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, sessionKeyPrefix+s.ID, raw, ttl)
		if s.State == models.SessionOpen {
			p.ZAdd(ctx, deadlineKey, redis.Z{Score: float64(s.ExpiresAt.UnixMilli()), Member: s.ID})
		} else {
			p.ZRem(ctx, deadlineKey, s.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}
