// Package lock serializes reconciliation work. A refresh and per-document
// reconciliation share one key; ingestion locks per file identity.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when the lock is held elsewhere and could not
// be acquired before the context or retry budget ran out.
var ErrNotObtained = errors.New("lock not obtained")

const ReconcileKey = "reconcile"

type Lock interface {
	Release(ctx context.Context) error
}

type Locker interface {
	Obtain(ctx context.Context, key string) (Lock, error)
}

// Local is an in-process keyed mutex. It blocks until the key is free or
// ctx is done.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *Local) Obtain(ctx context.Context, key string) (Lock, error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		return &localLock{ch: ch}, nil
	case <-ctx.Done():
		return nil, ErrNotObtained
	}
}

type localLock struct {
	once sync.Once
	ch   chan struct{}
}

func (l *localLock) Release(context.Context) error {
	l.once.Do(func() { <-l.ch })
	return nil
}

// Redis obtains locks through redislock so several processes sharing one
// database also share one reconciliation actor.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	prefix string
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{
		client: redislock.New(rdb),
		ttl:    ttl,
		prefix: "dms:lock:",
	}
}

func (r *Redis) Obtain(ctx context.Context, key string) (Lock, error) {
	lk, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(250*time.Millisecond), 40),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return newRedisLock(lk, r.ttl), nil
}

// redisLock extends its TTL every half period until released, so a refresh
// that outlives the TTL keeps exclusivity.
type redisLock struct {
	lk   *redislock.Lock
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newRedisLock(lk *redislock.Lock, ttl time.Duration) *redisLock {
	l := &redisLock{lk: lk, stop: make(chan struct{}), done: make(chan struct{})}
	go l.keepAlive(ttl)
	return l
}

func (l *redisLock) keepAlive(ttl time.Duration) {
	defer close(l.done)
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), ttl/2)
			err := l.lk.Refresh(ctx, ttl, nil)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (l *redisLock) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		close(l.stop)
		<-l.done
		err = l.lk.Release(ctx)
	})
	return err
}
