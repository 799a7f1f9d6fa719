package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lms_assessment_backend/internal/model"
	"lms_assessment_backend/internal/util"
	"lms_assessment_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AttemptLocker serializes mutating operations on one attempt across
// requests. The returned release func is safe to call more than once.
type AttemptLocker interface {
	Acquire(ctx context.Context, attemptID string) (release func(), err error)
}

// NewAttemptLocker locks through Redis when rdb is set and in process otherwise.
func NewAttemptLocker(rdb *redis.Client, wait time.Duration) AttemptLocker {
	if rdb != nil {
		return NewRedisAttemptLocker(rdb, wait)
	}
	return NewLocalAttemptLocker(wait)
}

// LocalAttemptLocker keeps one single-slot semaphore per attempt id.
type LocalAttemptLocker struct {
	wait  time.Duration
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	slot chan struct{}
	refs int
}

func NewLocalAttemptLocker(wait time.Duration) *LocalAttemptLocker {
	return &LocalAttemptLocker{wait: wait, locks: make(map[string]*localLock)}
}

func (l *LocalAttemptLocker) Acquire(ctx context.Context, attemptID string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[attemptID]
	if !ok {
		lk = &localLock{slot: make(chan struct{}, 1)}
		l.locks[attemptID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	select {
	case lk.slot <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lk.slot
				l.unref(attemptID, lk)
			})
		}, nil
	case <-waitCtx.Done():
		l.unref(attemptID, lk)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, util.ErrLockTimeout
	}
}

func (l *LocalAttemptLocker) unref(attemptID string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, attemptID)
	}
}

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

const (
	redisLockTTL  = 30 * time.Second
	redisLockPoll = 50 * time.Millisecond
)

// RedisAttemptLocker uses SET NX PX with a random token per holder.
type RedisAttemptLocker struct {
	Redis *redis.Client
	wait  time.Duration
}

func NewRedisAttemptLocker(rdb *redis.Client, wait time.Duration) *RedisAttemptLocker {
	return &RedisAttemptLocker{Redis: rdb, wait: wait}
}

func (l *RedisAttemptLocker) Acquire(ctx context.Context, attemptID string) (func(), error) {
	key := fmt.Sprintf("assessment:attempt-lock:%s", attemptID)
	token := model.GenerateUUID()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.Redis.SetNX(ctx, key, token, redisLockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, util.ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(redisLockPoll):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the request context may already be cancelled
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.Redis, []string{key}, token).Err(); err != nil && err != redis.Nil {
				logger.Log.Warn("failed to release attempt lock", zap.String("attempt_id", attemptID), zap.Error(err))
			}
		})
	}, nil
}
