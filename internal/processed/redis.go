package processed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps the processed record in a sorted set scored by the unix
// millisecond at which each path was recorded. Several watchers pointed at the
// same key share one record.
type Redis struct {
	cl       *redis.Client
	key      string
	capacity int
	now      func() time.Time
}

// OpenRedis connects to the server at rawURL and verifies it with PING.
func OpenRedis(ctx context.Context, rawURL, key string, capacity int, opts ...Option) (*Redis, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	cl := redis.NewClient(opt)
	if _, err := cl.Ping(ctx).Result(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(cl, key, capacity, opts...), nil
}

// NewRedis wraps an existing client.
func NewRedis(cl *redis.Client, key string, capacity int, opts ...Option) *Redis {
	o := buildOptions(opts)
	if strings.TrimSpace(key) == "" {
		key = "dbvoir:processed"
	}
	return &Redis{cl: cl, key: key, capacity: capacity, now: o.now}
}

func (r *Redis) Contains(ctx context.Context, path string) (bool, error) {
	_, err := r.cl.ZScore(ctx, r.key, Key(path)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("lookup processed path: %w", err)
	}
	return true, nil
}

func (r *Redis) Add(ctx context.Context, path string) error {
	key := Key(path)
	if key == "" {
		return nil
	}
	added, err := r.cl.ZAddNX(ctx, r.key, redis.Z{Score: float64(r.now().UnixMilli()), Member: key}).Result()
	if err != nil {
		return fmt.Errorf("record processed path: %w", err)
	}
	if added > 0 && r.capacity > 0 {
		if err := r.cl.ZRemRangeByRank(ctx, r.key, 0, int64(-r.capacity-1)).Err(); err != nil {
			return fmt.Errorf("trim processed record: %w", err)
		}
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, path string) (bool, error) {
	removed, err := r.cl.ZRem(ctx, r.key, Key(path)).Result()
	if err != nil {
		return false, fmt.Errorf("remove processed path: %w", err)
	}
	return removed > 0, nil
}

func (r *Redis) List(ctx context.Context, limit int) ([]Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	members, err := r.cl.ZRevRangeWithScores(ctx, r.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list processed paths: %w", err)
	}
	entries := make([]Entry, 0, len(members))
	for _, member := range members {
		path, ok := member.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Path: path, ProcessedAt: time.UnixMilli(int64(member.Score))})
	}
	return entries, nil
}

func (r *Redis) Len(ctx context.Context) (int, error) {
	count, err := r.cl.ZCard(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("count processed paths: %w", err)
	}
	return int(count), nil
}

func (r *Redis) Prune(ctx context.Context, before time.Time) (int64, error) {
	removed, err := r.cl.ZRemRangeByScore(ctx, r.key, "-inf", "("+strconv.FormatInt(before.UnixMilli(), 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("prune processed paths: %w", err)
	}
	return removed, nil
}

func (r *Redis) Close() error {
	if r == nil || r.cl == nil {
		return nil
	}
	return r.cl.Close()
}
