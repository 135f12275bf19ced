package memory

import (
	"context"
	"fmt"

	"gorm.io/datatypes"

	"portfolio-agent-go/internal/constants"
	"portfolio-agent-go/internal/storage/models"
	"portfolio-agent-go/internal/types"
)

// SnapshotDB 问答缓存快照的读写，由 storage.MySQL 实现
type SnapshotDB interface {
	GetMemorySnapshot(ctx context.Context, subject string) (*models.MemorySnapshot, error)
	UpsertMemorySnapshot(ctx context.Context, snap *models.MemorySnapshot) error
}

// MySQLStore 以 subject 为主键，把完整条目数组存为一行 JSON
type MySQLStore struct {
	db      SnapshotDB
	subject string
}

// NewMySQLStore 创建 MySQL 持久化后端
func NewMySQLStore(db SnapshotDB, subject string) (*MySQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("mysql client cannot be nil")
	}
	if subject == "" {
		subject = constants.DefaultSubject
	}
	return &MySQLStore{db: db, subject: subject}, nil
}

// Load 读取快照；没有记录时返回空列表
func (s *MySQLStore) Load(ctx context.Context) ([]types.MemoryEntry, error) {
	snap, err := s.db.GetMemorySnapshot(ctx, s.subject)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}
	return decodeEntries(snap.Entries)
}

// Save 覆盖写入快照
func (s *MySQLStore) Save(ctx context.Context, entries []types.MemoryEntry) error {
	data, err := encodeEntries(entries, false)
	if err != nil {
		return err
	}
	return s.db.UpsertMemorySnapshot(ctx, &models.MemorySnapshot{
		Subject:    s.subject,
		Entries:    datatypes.JSON(data),
		EntryCount: len(entries),
	})
}
