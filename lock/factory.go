package lock

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config 分布式锁配置
type Config struct {
	Enabled    bool
	Type       string
	Prefix     string
	DefaultTTL time.Duration
	Redis      RedisConfig
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewDistributedLock 根据配置创建执行锁实例
// 未启用分布式锁时返回进程内 LocalLock：执行互斥是硬性约束，
// 单实例模式也必须真实互斥，不能退化为空实现
func NewDistributedLock(config *Config) (DistributedLock, error) {
	if !config.Enabled {
		return NewLocalLock(), nil
	}

	switch config.Type {
	case "redis":
		// 创建 Redis 客户端
		client := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
			PoolSize: config.Redis.PoolSize,
		})

		return NewRedisLock(client, config.Prefix), nil

	case "local":
		return NewLocalLock(), nil

	default:
		return nil, fmt.Errorf("unsupported lock type: %s", config.Type)
	}
}
