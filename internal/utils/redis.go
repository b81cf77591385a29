// 包 utils：外部连接与证书工具，统一从 config 取参数
package utils

import (
	"github.com/redis/go-redis/v9"

	"salesmap/internal/config"
	"salesmap/internal/logger"
)

// OpenRedis：按配置打开 Redis 客户端，支持 REDIS_DB 选择
// 背景：会话后端为 redis 时使用；客户端惰性建连，首次命令才真正拨号。
func OpenRedis(cfg *config.Config) *redis.Client {
	addr := cfg.RedisAddr()
	logger.L().Debug("redis_open", "addr", addr, "db", cfg.RedisDB)
	return redis.NewClient(&redis.Options{Addr: addr, Password: cfg.RedisPass, DB: cfg.RedisDB})
}
