package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/types"
)

// FileStore 把条目以 JSON 数组写入本地文件
type FileStore struct {
	path   string
	logger zerolog.Logger
}

// NewFileStore 创建文件持久化后端
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Path 返回文件路径
func (s *FileStore) Path() string {
	return s.path
}

// Load 读取文件；文件不存在时返回空列表
func (s *FileStore) Load(ctx context.Context) ([]types.MemoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug().Str("path", s.path).Msg("问答缓存文件不存在")
			return nil, nil
		}
		return nil, fmt.Errorf("读取问答缓存文件失败: %w", err)
	}
	return decodeEntries(data)
}

// Save 先写临时文件再重命名，避免写到一半的文件被读取
func (s *FileStore) Save(ctx context.Context, entries []types.MemoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeEntries(entries, true)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建缓存目录失败: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("替换问答缓存文件失败: %w", err)
	}
	return nil
}

func encodeEntries(entries []types.MemoryEntry, indent bool) ([]byte, error) {
	if entries == nil {
		entries = []types.MemoryEntry{}
	}
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(entries, "", "  ")
	} else {
		data, err = json.Marshal(entries)
	}
	if err != nil {
		return nil, fmt.Errorf("序列化问答缓存失败: %w", err)
	}
	return data, nil
}

// decodeEntries 解析 JSON 数组，任何解析错误都归为 ErrCorruptState
func decodeEntries(data []byte) ([]types.MemoryEntry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var entries []types.MemoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return entries, nil
}
