package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/config"
)

// 可同步到资料目录的文件类型
var syncableExtensions = map[string]bool{
	".pdf":  true,
	".txt":  true,
	".md":   true,
	".tex":  true,
	".json": true,
}

// MinIO 存放简历和项目资料的对象存储
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	logger zerolog.Logger
}

// NewMinIO 创建MinIO客户端并确认存储桶存在
func NewMinIO(ctx context.Context, cfg *config.MinIOConfig, logger zerolog.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("MinIO bucketName 不能为空")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{client: client, cfg: cfg, logger: logger}
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", cfg.BucketName, err)
	}
	if !exists {
		return nil, fmt.Errorf("存储桶 %s 不存在", cfg.BucketName)
	}
	logger.Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.BucketName).Msg("MinIO客户端初始化成功")
	return m, nil
}

// SyncToDir 把存储桶 prefix 下的资料下载到本地目录，返回下载的文件数。
// 本地已有同样大小的文件时跳过。
func (m *MinIO) SyncToDir(ctx context.Context, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("创建资料目录失败: %w", err)
	}

	downloaded := 0
	opts := minio.ListObjectsOptions{Prefix: m.cfg.Prefix, Recursive: true}
	for obj := range m.client.ListObjects(ctx, m.cfg.BucketName, opts) {
		if obj.Err != nil {
			return downloaded, fmt.Errorf("列出存储桶 %s 对象失败: %w", m.cfg.BucketName, obj.Err)
		}
		local, ok := localPathFor(dir, m.cfg.Prefix, obj.Key)
		if !ok {
			m.logger.Debug().Str("object", obj.Key).Msg("跳过不支持的对象")
			continue
		}
		if info, err := os.Stat(local); err == nil && info.Size() == obj.Size {
			continue
		}
		if err := m.client.FGetObject(ctx, m.cfg.BucketName, obj.Key, local, minio.GetObjectOptions{}); err != nil {
			return downloaded, fmt.Errorf("下载对象 %s 失败: %w", obj.Key, err)
		}
		downloaded++
		m.logger.Debug().Str("object", obj.Key).Str("path", local).Int64("size", obj.Size).Msg("已同步资料文件")
	}
	m.logger.Info().Int("downloaded", downloaded).Str("dir", dir).Msg("资料目录同步完成")
	return downloaded, nil
}

// localPathFor 把对象键映射到本地路径；目录占位、不支持的扩展名和越界路径返回 false
func localPathFor(dir, prefix, key string) (string, bool) {
	rel := strings.TrimPrefix(key, prefix)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" || strings.HasSuffix(rel, "/") {
		return "", false
	}
	if !syncableExtensions[strings.ToLower(path.Ext(rel))] {
		return "", false
	}
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return "", false
	}
	return filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), true
}
