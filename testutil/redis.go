package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// FakeRedis is an in-memory stand-in for the Redis commands the backend uses.
// Set Fail to make every command return that error.
type FakeRedis struct {
	mu      sync.Mutex
	Strings map[string]string
	TTLs    map[string]time.Duration
	Sets    map[string]map[string]struct{}
	Lists   map[string][]string
	Fail    error
	EvalFn  func(keys []string, args ...interface{}) (interface{}, error)
}

func NewFakeRedis() *FakeRedis {
	return &FakeRedis{
		Strings: map[string]string{},
		TTLs:    map[string]time.Duration{},
		Sets:    map[string]map[string]struct{}{},
		Lists:   map[string][]string{},
	}
}

func (f *FakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		return redis.NewStringResult("", f.Fail)
	}
	v, ok := f.Strings[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *FakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		return redis.NewStatusResult("", f.Fail)
	}
	f.Strings[key] = fmt.Sprint(value)
	f.TTLs[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *FakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		return redis.NewIntResult(0, f.Fail)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.Strings[k]; ok {
			delete(f.Strings, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *FakeRedis) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		return redis.NewBoolResult(false, f.Fail)
	}
	f.TTLs[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *FakeRedis) SAdd(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		return redis.NewIntResult(0, f.Fail)
	}
	set, ok := f.Sets[key]
	if !ok {
		set = map[string]struct{}{}
		f.Sets[key] = set
	}
	var added int64
	for _, m := range members {
		s := fmt.Sprint(m)
		if _, ok := set[s]; !ok {
			set[s] = struct{}{}
			added++
		}
	}
	return redis.NewIntResult(added, nil)
}

func (f *FakeRedis) SIsMember(_ context.Context, key string, member interface{}) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		return redis.NewBoolResult(false, f.Fail)
	}
	_, ok := f.Sets[key][fmt.Sprint(member)]
	return redis.NewBoolResult(ok, nil)
}

func (f *FakeRedis) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		return redis.NewIntResult(0, f.Fail)
	}
	for _, v := range values {
		var s string
		switch b := v.(type) {
		case []byte:
			s = string(b)
		default:
			s = fmt.Sprint(v)
		}
		f.Lists[key] = append([]string{s}, f.Lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.Lists[key])), nil)
}

func (f *FakeRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	fn, fail := f.EvalFn, f.Fail
	f.mu.Unlock()
	if fail != nil {
		return redis.NewCmdResult(nil, fail)
	}
	if fn == nil {
		return redis.NewCmdResult(nil, redis.Nil)
	}
	return redis.NewCmdResult(fn(keys, args...))
}
