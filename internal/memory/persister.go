package memory

import (
	"fmt"

	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/config"
	"portfolio-agent-go/internal/storage"
)

// NewPersister 按 memory.backend 选择持久化后端。"none" 返回 nil，缓存只保存在内存中。
func NewPersister(cfg config.MemoryConfig, st *storage.Storage, logger zerolog.Logger) (Persister, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.FilePath, logger), nil
	case "redis":
		if st == nil || st.Redis == nil {
			return nil, fmt.Errorf("memory.backend=redis 但 Redis 未初始化")
		}
		return NewRedisStore(st.Redis, cfg.RedisKey, cfg.Subject)
	case "mysql":
		if st == nil || st.MySQL == nil {
			return nil, fmt.Errorf("memory.backend=mysql 但 MySQL 未初始化")
		}
		return NewMySQLStore(st.MySQL, cfg.Subject)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("未知的 memory.backend: %q", cfg.Backend)
	}
}
