package lock

import (
	"context"
	"sync"
	"time"
)

// DistributedLock 执行锁接口
// 调仓编排器和监控循环共用同一把执行锁，保证同一账户
// 同一时刻最多只有一次下单执行在途
type DistributedLock interface {
	// Lock 获取锁，阻塞直到成功或 ctx 取消
	Lock(ctx context.Context, key string, ttl time.Duration) error

	// TryLock 尝试获取锁，立即返回
	// 返回 true 表示成功获取锁，false 表示锁已被占用
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Unlock 释放锁
	Unlock(ctx context.Context, key string) error

	// Extend 延长锁的过期时间
	Extend(ctx context.Context, key string, ttl time.Duration) error

	// Close 关闭连接
	Close() error
}

// LocalLock 进程内互斥锁（单实例模式）
// 按 key 维护容量为 1 的信号量，Lock 阻塞等待，TryLock 立即返回
type LocalLock struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLock() *LocalLock {
	return &LocalLock{
		slots: make(map[string]chan struct{}),
	}
}

// slot 返回 key 对应的信号量
func (l *LocalLock) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ch, ok := l.slots[key]; ok {
		return ch
	}
	ch := make(chan struct{}, 1)
	l.slots[key] = ch
	return ch
}

func (l *LocalLock) Lock(ctx context.Context, key string, ttl time.Duration) error {
	select {
	case l.slot(key) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *LocalLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	select {
	case l.slot(key) <- struct{}{}:
		return true, nil
	default:
		return false, nil
	}
}

func (l *LocalLock) Unlock(ctx context.Context, key string) error {
	select {
	case <-l.slot(key):
	default:
		// 重复释放按无操作处理
	}
	return nil
}

func (l *LocalLock) Extend(ctx context.Context, key string, ttl time.Duration) error {
	// 进程内锁不过期
	return nil
}

func (l *LocalLock) Close() error {
	return nil
}
