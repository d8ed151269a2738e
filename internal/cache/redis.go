package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const keyPrefix = "easy2trade:"

// Redis is a Cache shared between processes, e.g. `serve` and a cron-run
// `check`.
type Redis struct {
	rdb *redis.Client
}

// NewRedis connects to addr and fails if the server does not answer a ping.
func NewRedis(addr string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", addr)
	}
	return &Redis{rdb: rdb}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := r.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warnf("redis get %s: %v", key, err)
		}
		return nil, false
	}
	return data, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.rdb.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		log.Warnf("redis set %s: %v", key, err)
	}
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

// New returns a redis cache when addr is set and reachable, otherwise an
// in-memory one.
func New(addr string) Cache {
	if addr == "" {
		return NewMemory()
	}
	r, err := NewRedis(addr)
	if err != nil {
		log.Errorf("Falling back to in-memory cache: %v", err)
		return NewMemory()
	}
	log.Infof("Using redis cache at %s", addr)
	return r
}
