package memory

import (
	"context"
	"errors"
	"fmt"

	"portfolio-agent-go/internal/constants"
	"portfolio-agent-go/internal/storage"
	"portfolio-agent-go/internal/types"
)

// RedisStore 把条目以 JSON 字符串保存在一个 Redis 键中
type RedisStore struct {
	redis *storage.Redis
	key   string
}

// NewRedisStore 创建 Redis 持久化后端。key 为空时使用 app:memory:entries:{subject}
func NewRedisStore(r *storage.Redis, key, subject string) (*RedisStore, error) {
	if r == nil || r.Client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if key == "" {
		if subject == "" {
			subject = constants.DefaultSubject
		}
		key = fmt.Sprintf(constants.KeyMemoryEntries, subject)
	}
	return &RedisStore{redis: r, key: key}, nil
}

// Key 返回使用的 Redis 键
func (s *RedisStore) Key() string {
	return s.key
}

// Load 读取条目；键不存在时返回空列表
func (s *RedisStore) Load(ctx context.Context) ([]types.MemoryEntry, error) {
	val, err := s.redis.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("从Redis读取问答缓存失败: %w", err)
	}
	return decodeEntries([]byte(val))
}

// Save 覆盖写入完整条目列表
func (s *RedisStore) Save(ctx context.Context, entries []types.MemoryEntry) error {
	data, err := encodeEntries(entries, false)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key, string(data), 0); err != nil {
		return fmt.Errorf("写入Redis问答缓存失败: %w", err)
	}
	return nil
}
