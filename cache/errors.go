package cache

import "errors"

var (
	ErrRedisNotAvailable = errors.New("redis not available")
	ErrLockNotAcquired   = errors.New("lock not acquired")
)
