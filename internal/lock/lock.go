// Package lock serializes work on a shared key, either inside one process or
// across processes through Redis.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
)

var ErrNotObtained = errors.New("lock not obtained")

type Lease interface {
	Release(ctx context.Context) error
}

type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Local is an in-process Locker. Acquire blocks until the key is free or ctx
// is done.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

func (l *Local) Acquire(ctx context.Context, key string) (Lease, error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return localLease{slot: slot}, nil
	case <-ctx.Done():
		return nil, errors.Join(ErrNotObtained, ctx.Err())
	}
}

type localLease struct {
	slot chan struct{}
}

func (l localLease) Release(context.Context) error {
	select {
	case <-l.slot:
	default:
	}
	return nil
}

// Redis is a Locker backed by bsm/redislock. Keys expire after ttl so a crashed
// holder cannot block a record forever.
type Redis struct {
	client  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{
		client:  redislock.New(client),
		ttl:     ttl,
		backoff: 50 * time.Millisecond,
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (Lease, error) {
	lease, err := r.client.Obtain(ctx, key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.backoff),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return lease, nil
}
