package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Locker runs fn while holding the named lock.
type Locker interface {
	WithLock(ctx context.Context, name string, expiry time.Duration, fn func() error) error
}

// DistributedLockService serializes work across processes through redsync.
type DistributedLockService struct {
	rs *redsync.Redsync
}

func NewDistributedLockService(client *redis.Client) *DistributedLockService {
	return &DistributedLockService{rs: redsync.New(goredis.NewPool(client))}
}

func (s *DistributedLockService) newMutex(name string, expiry time.Duration) *redsync.Mutex {
	return s.rs.NewMutex(name,
		redsync.WithExpiry(expiry),
		redsync.WithTries(5),
		redsync.WithRetryDelay(50*time.Millisecond),
		redsync.WithDriftFactor(0.01),
	)
}

func (s *DistributedLockService) WithLock(ctx context.Context, name string, expiry time.Duration, fn func() error) error {
	mutex := s.newMutex(name, expiry)
	if err := mutex.LockContext(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, name, err)
	}
	defer func() {
		_, _ = mutex.UnlockContext(context.Background())
	}()
	return fn()
}

// LocalLocker is a per-name mutex for single-process deployments and tests.
// Entries are reference counted and dropped once unused.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	mu   sync.Mutex
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localEntry)}
}

func (l *LocalLocker) WithLock(ctx context.Context, name string, _ time.Duration, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	e, ok := l.locks[name]
	if !ok {
		e = &localEntry{}
		l.locks[name] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, name)
		}
		l.mu.Unlock()
	}()
	return fn()
}
