package processor

import (
	"context"

	"portfolio-agent-go/internal/memory"
	"portfolio-agent-go/internal/rag"
	"portfolio-agent-go/internal/types"
)

//
// 检索相关接口
//

// SectionStore 简历章节与链接来源
type SectionStore interface {
	Sections() types.Sections
	Links() []string
	FullText() string
}

// IntentClassifier 问题意图分类
type IntentClassifier interface {
	Classify(question string) types.Classification
}

// ContextBuilder 按意图构建有长度上限的上下文
type ContextBuilder interface {
	BuildContext(req rag.Request) string
}

//
// 缓存相关接口
//

// AnswerCache 相似问答缓存
type AnswerCache interface {
	// Lookup 返回达到阈值的最佳候选，没有时返回 nil
	Lookup(question string) *memory.Match
	// Store 写入一条问答；返回错误时条目可能已写入内存但持久化失败
	Store(ctx context.Context, question, answer string, sectionsUsed []types.SectionName) (types.MemoryEntry, error)
	Stats() types.MemoryStats
	Clear(ctx context.Context) error
}

//
// 生成与联网相关接口
//

// AnswerGenerator 根据上下文生成回答
type AnswerGenerator interface {
	Generate(ctx context.Context, question, contextText, memoryHint string) (string, error)
}

// WebSearcher 联网搜索
type WebSearcher interface {
	Enabled() bool
	Search(ctx context.Context, query string) (string, error)
}
