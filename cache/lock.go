package cache

import (
	"context"
	"fmt"
	"time"

	"Musync/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// 只有持有者才能释放锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// FileLockKey 根据文件ID生成锁的键
func FileLockKey(fileID string) string {
	return fmt.Sprintf("musync:lock:file:%s", fileID)
}

// RedisLocker is an advisory lock on top of SET NX PX.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker 创建文件锁，ttl 到期后锁自动失效
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// Acquire tries once to take the lock. A held lock yields acquired=false and no error.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// 使用独立的 context，调用方的 ctx 可能已被取消
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			logger.Warn("[FileLock] release failed", logger.String("key", key), logger.ErrorField(err))
		}
	}
	return release, true, nil
}
