package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Remex-Wangkhem/Aix-Studio/internal/logger"
)

// Limiter 分钟级限流器
// 每次调用携带各自的限额，同一个实例服务不同配置的端点与密钥
type Limiter interface {
	// Allow 判断 key 在当前分钟窗口内是否还有配额，limit <= 0 表示不限
	Allow(ctx context.Context, key string, limitPerMinute int) bool
}

// RedisLimiter Redis 固定窗口限流
// INCR + 首次 EXPIRE，多实例部署时计数共享
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter 创建 Redis 限流器
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Allow 检查并消耗一次配额
func (l *RedisLimiter) Allow(ctx context.Context, key string, limitPerMinute int) bool {
	if limitPerMinute <= 0 {
		return true
	}

	// 按分钟对齐窗口，窗口切换时自动换 key
	window := time.Now().Unix() / 60
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, window)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		// Redis 故障时放行，限流属于保护机制而非安全边界
		logger.Warn("限流计数失败，本次放行")
		return true
	}

	if count == 1 {
		l.client.Expire(ctx, redisKey, 2*time.Minute)
	}

	return count <= int64(limitPerMinute)
}

// windowState 单 key 的窗口计数
type windowState struct {
	count       int
	windowStart time.Time
}

// MemoryLimiter 进程内固定窗口限流（无 Redis 时的退路）
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*windowState
	stopCh  chan struct{}
}

// NewMemoryLimiter 创建内存限流器
func NewMemoryLimiter() *MemoryLimiter {
	l := &MemoryLimiter{
		windows: make(map[string]*windowState),
		stopCh:  make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow 检查并消耗一次配额
func (l *MemoryLimiter) Allow(ctx context.Context, key string, limitPerMinute int) bool {
	if limitPerMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	state, exists := l.windows[key]
	if !exists || now.Sub(state.windowStart) >= time.Minute {
		l.windows[key] = &windowState{count: 1, windowStart: now}
		return true
	}

	if state.count >= limitPerMinute {
		return false
	}
	state.count++
	return true
}

// cleanup 定期清理过期窗口
func (l *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for key, state := range l.windows {
				if now.Sub(state.windowStart) > 2*time.Minute {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// Stop 停止后台清理
func (l *MemoryLimiter) Stop() {
	close(l.stopCh)
}

// NewLimiter 有 Redis 用 Redis，否则退回进程内计数
func NewLimiter(client *redis.Client) Limiter {
	if client != nil {
		return NewRedisLimiter(client)
	}
	return NewMemoryLimiter()
}
