package lock

import (
	"context"
	"testing"
	"time"
)

func TestLocalLockTryLock(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "execute", 30*time.Second)
	if err != nil || !ok {
		t.Fatalf("首次 TryLock 应成功: ok=%v err=%v", ok, err)
	}

	// 锁被占用时第二次 TryLock 应立即失败
	ok, err = l.TryLock(ctx, "execute", 30*time.Second)
	if err != nil {
		t.Fatalf("TryLock 出错: %v", err)
	}
	if ok {
		t.Error("锁被占用时 TryLock 应返回 false")
	}

	if err := l.Unlock(ctx, "execute"); err != nil {
		t.Fatalf("Unlock 出错: %v", err)
	}

	ok, _ = l.TryLock(ctx, "execute", 30*time.Second)
	if !ok {
		t.Error("释放后 TryLock 应成功")
	}

	t.Log("✅ 本地锁 TryLock 测试通过")
}

func TestLocalLockBlocking(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	if err := l.Lock(ctx, "execute", 30*time.Second); err != nil {
		t.Fatalf("Lock 出错: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		if err := l.Lock(ctx, "execute", 30*time.Second); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("锁被占用时 Lock 不应立即成功")
	case <-time.After(50 * time.Millisecond):
	}

	l.Unlock(ctx, "execute")

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("释放后阻塞的 Lock 应获得锁")
	}

	t.Log("✅ 本地锁阻塞等待测试通过")
}

func TestLocalLockContextCancel(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	l.Lock(ctx, "execute", 30*time.Second)

	cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	if err := l.Lock(cctx, "execute", 30*time.Second); err == nil {
		t.Error("ctx 取消后 Lock 应返回错误")
	}

	t.Log("✅ 本地锁 ctx 取消测试通过")
}

func TestLocalLockIndependentKeys(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	l.Lock(ctx, "execute", 30*time.Second)

	ok, _ := l.TryLock(ctx, "refill", 30*time.Second)
	if !ok {
		t.Error("不同 key 的锁应互不影响")
	}

	t.Log("✅ 本地锁多 key 测试通过")
}
