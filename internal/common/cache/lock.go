package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld 释放时锁已过期或被他人持有
var ErrLockNotHeld = errors.New("cache: lock not held")

// releaseScript 仅当值与持有者令牌一致时删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker 基于 SET NX PX 的分布式锁
type Locker struct {
	client redis.UniversalClient
	prefix string
}

// NewLocker 创建分布式锁，所有键以 lock: 为前缀
func NewLocker(client redis.UniversalClient) *Locker {
	return &Locker{client: client, prefix: KeyPrefixLock}
}

// Lock 已获取的锁
type Lock struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Key 返回锁的完整键名
func (l *Lock) Key() string {
	return l.key
}

// TryAcquire 尝试获取锁，已被占用时返回 (nil, false, nil)
func (l *Locker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (*Lock, bool, error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{client: l.client, key: key, token: token}, true, nil
}

// Release 释放锁，锁已不属于当前持有者时返回 ErrLockNotHeld
func (lk *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
