package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/config"
)

// Storage 存储管理器，聚合按配置启用的外部存储
type Storage struct {
	// 对象存储，简历资料来源
	MinIO *MinIO

	// 关系型数据库，问答缓存后端之一
	MySQL *MySQL

	// 键值存储，问答缓存后端之一，也用于联网配额计数
	Redis *Redis
}

// NewStorage 只初始化当前配置需要的组件。需要的组件初始化失败时返回错误。
func NewStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	s := &Storage{}
	var err error

	if cfg.MinIO.Enabled {
		s.MinIO, err = NewMinIO(ctx, &cfg.MinIO, logger)
		if err != nil {
			return nil, fmt.Errorf("初始化MinIO失败: %w", err)
		}
	}

	if cfg.Memory.Backend == "redis" || cfg.SearchAPI.TrackQuota {
		logger.Info().Str("address", cfg.Redis.Address).Msg("初始化Redis")
		s.Redis, err = NewRedis(&cfg.Redis)
		if err != nil {
			s.Close(logger)
			return nil, fmt.Errorf("初始化Redis失败: %w", err)
		}
	}

	if cfg.Memory.Backend == "mysql" {
		logger.Info().Str("host", cfg.MySQL.Host).Str("database", cfg.MySQL.Database).Msg("初始化MySQL")
		s.MySQL, err = NewMySQL(&cfg.MySQL)
		if err != nil {
			s.Close(logger)
			return nil, fmt.Errorf("初始化MySQL失败: %w", err)
		}
	}
	return s, nil
}

// Close 关闭所有连接
func (s *Storage) Close(logger zerolog.Logger) {
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭MySQL连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭Redis连接失败")
		}
	}
	// MinIO 客户端无需显式关闭
}
