package models

import (
	"time"

	"gorm.io/datatypes"
)

// MemorySnapshot 问答缓存快照，每个 subject 一行，Entries 为完整的有序条目数组
type MemorySnapshot struct {
	Subject    string         `gorm:"type:varchar(64);primaryKey"`
	Entries    datatypes.JSON `gorm:"type:json;not null"`
	EntryCount int            `gorm:"not null;default:0"`
	CreatedAt  time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt  time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (MemorySnapshot) TableName() string {
	return "memory_snapshots"
}
