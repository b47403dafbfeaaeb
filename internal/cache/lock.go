package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
)

var ErrLockNotObtained = errors.New("lock not obtained")

type Lock interface {
	Release(ctx context.Context) error
}

// Locker serializes work that must not run concurrently across server
// instances, such as saving a daily report snapshot.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

type RedisLocker struct {
	locker *redislock.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{locker: redislock.New(client)}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock, err := l.locker.Obtain(ctx, "barledger:lock:"+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// LocalLocker is the single-process fallback when Redis is not configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]*localLock
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]*localLock)}
}

func (l *LocalLocker) Obtain(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if current, ok := l.held[key]; ok && now.Before(current.expires) {
		return nil, ErrLockNotObtained
	}
	lock := &localLock{owner: l, key: key, expires: now.Add(ttl)}
	l.held[key] = lock
	return lock, nil
}

type localLock struct {
	owner   *LocalLocker
	key     string
	expires time.Time
}

// Release is a no-op once the lock expired and was taken by someone else.
func (l *localLock) Release(_ context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	if l.owner.held[l.key] == l {
		delete(l.owner.held, l.key)
	}
	return nil
}
