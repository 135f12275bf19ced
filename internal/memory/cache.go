package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/rag"
	"portfolio-agent-go/internal/textproc"
	"portfolio-agent-go/internal/types"
)

const (
	// DefaultMaxEntries 缓存容量
	DefaultMaxEntries = 100
	// DefaultNarrowThreshold 具体问题之间的相似度阈值
	DefaultNarrowThreshold = 0.7
	// DefaultBroadThreshold 宽泛问题之间的相似度阈值
	DefaultBroadThreshold = 0.6
	// DefaultMinAnswerWords 回答必须多于该词数才会被复用
	DefaultMinAnswerWords = 5

	notFoundMarker = "not found"
)

// 候选条目被拒绝的原因
const (
	RejectEmptyAnswer = "empty_answer"
	RejectTooShort    = "answer_too_short"
	RejectNotFound    = "not_found_marker"
	RejectIdentity    = "project_identity_mismatch"
)

var (
	// ErrEmptyAnswer 空回答不会写入缓存
	ErrEmptyAnswer = errors.New("memory: answer is empty")
	// ErrCorruptState 持久化数据无法解析
	ErrCorruptState = errors.New("memory: persisted state is corrupt")
)

// Persister 缓存的持久化后端，每次保存完整的有序条目列表
type Persister interface {
	Load(ctx context.Context) ([]types.MemoryEntry, error)
	Save(ctx context.Context, entries []types.MemoryEntry) error
}

// Match 一次查找得到的最佳候选
type Match struct {
	Entry      types.MemoryEntry
	Similarity float64
	// Rejected 非空时表示候选未通过回答质量或项目一致性检查
	Rejected string
}

// Served 候选是否可以直接作为回答
func (m *Match) Served() bool {
	return m != nil && m.Rejected == ""
}

// Cache 相似问答缓存。
//
// 条目顺序即保留优先级：淘汰总是从头部开始。宽泛问题追加到尾部，
// 具体问题插入到最后一个宽泛条目之前，因此具体问题先于同期的宽泛问题被淘汰。
// 内部以三段表示整个序列：retained + lastBroad + trailing，
// 其中 trailing 只在加载的历史数据里最后一个宽泛条目之后还有条目时非空。
type Cache struct {
	mu sync.Mutex

	retained  []types.MemoryEntry
	lastBroad *types.MemoryEntry
	trailing  []types.MemoryEntry

	maxEntries      int
	narrowThreshold float64
	broadThreshold  float64
	minAnswerWords  int

	// 项目一致性检查：主项目名称/别名与目录中全部项目标题（均已归一化）
	primaryNames []string
	titles       []string

	persister Persister
	logger    zerolog.Logger
	now       func() time.Time
}

// Option 缓存选项
type Option func(*Cache)

// WithMaxEntries 设置容量
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithThresholds 设置具体问题与宽泛问题的相似度阈值
func WithThresholds(narrow, broad float64) Option {
	return func(c *Cache) {
		if narrow > 0 {
			c.narrowThreshold = narrow
		}
		if broad > 0 {
			c.broadThreshold = broad
		}
	}
}

// WithMinAnswerWords 设置可复用回答的最少词数（不含）
func WithMinAnswerWords(n int) Option {
	return func(c *Cache) {
		if n >= 0 {
			c.minAnswerWords = n
		}
	}
}

// WithProjectIdentity 设置项目一致性检查所需的主项目名称和项目标题
func WithProjectIdentity(primaryNames, titles []string) Option {
	return func(c *Cache) {
		c.primaryNames = normalizeAll(primaryNames)
		c.titles = normalizeAll(titles)
	}
}

// WithPersister 设置持久化后端，nil 表示只保存在内存中
func WithPersister(p Persister) Option {
	return func(c *Cache) { c.persister = p }
}

// WithLogger 设置日志记录器
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithClock 替换时间来源
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache 创建空缓存，需要时调用 Load 恢复持久化数据
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		maxEntries:      DefaultMaxEntries,
		narrowThreshold: DefaultNarrowThreshold,
		broadThreshold:  DefaultBroadThreshold,
		minAnswerWords:  DefaultMinAnswerWords,
		logger:          zerolog.Nop(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load 从持久化后端恢复条目。数据损坏时以空缓存继续并返回 nil；
// 后端不可用时同样以空缓存继续，但返回错误供调用方记录。
func (c *Cache) Load(ctx context.Context) error {
	if c.persister == nil {
		return nil
	}
	entries, err := c.persister.Load(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.reset(nil)
		if errors.Is(err, ErrCorruptState) {
			c.logger.Warn().Err(err).Msg("问答缓存数据损坏，使用空缓存")
			return nil
		}
		c.logger.Error().Err(err).Msg("加载问答缓存失败，使用空缓存")
		return fmt.Errorf("加载问答缓存失败: %w", err)
	}
	c.reset(entries)
	c.evict()
	c.logger.Info().Int("entries", c.lenLocked()).Msg("问答缓存加载完成")
	return nil
}

// reset 按给定顺序重建三段结构
func (c *Cache) reset(entries []types.MemoryEntry) {
	c.retained, c.lastBroad, c.trailing = nil, nil, nil
	last := -1
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].IsBroad {
			last = i
			break
		}
	}
	if last < 0 {
		c.retained = append(c.retained, entries...)
		return
	}
	c.retained = append(c.retained, entries[:last]...)
	lb := entries[last]
	c.lastBroad = &lb
	c.trailing = append(c.trailing, entries[last+1:]...)
}

func (c *Cache) lenLocked() int {
	n := len(c.retained) + len(c.trailing)
	if c.lastBroad != nil {
		n++
	}
	return n
}

// snapshot 返回按保留优先级排列的完整序列副本
func (c *Cache) snapshot() []types.MemoryEntry {
	out := make([]types.MemoryEntry, 0, c.lenLocked())
	out = append(out, c.retained...)
	if c.lastBroad != nil {
		out = append(out, *c.lastBroad)
	}
	return append(out, c.trailing...)
}

// evict 从头部淘汰直到不超过容量
func (c *Cache) evict() {
	for c.lenLocked() > c.maxEntries {
		switch {
		case len(c.retained) > 0:
			c.retained = c.retained[1:]
		case c.lastBroad != nil:
			// 最后一个宽泛条目被淘汰后，剩下的都是具体问题
			c.lastBroad = nil
			c.retained, c.trailing = c.trailing, nil
		default:
			c.trailing = c.trailing[1:]
		}
	}
}

// Lookup 返回与问题同类（宽泛/具体）且相似度达到阈值的最佳条目；没有候选时返回 nil。
// 候选未通过回答质量或项目一致性检查时，Match.Rejected 说明原因。
func (c *Cache) Lookup(question string) *Match {
	words := textproc.WordSet(question)
	if len(words) == 0 {
		return nil
	}
	broad := IsBroadQuestion(question)
	threshold := c.narrowThreshold
	if broad {
		threshold = c.broadThreshold
	}
	fp := textproc.Fingerprint(question)

	c.mu.Lock()
	var best *types.MemoryEntry
	bestSim := 0.0
	entries := c.snapshot()
	for i := range entries {
		e := &entries[i]
		if e.IsBroad != broad {
			continue
		}
		if fp != "" && e.Fingerprint == fp {
			best, bestSim = e, 1.0
			break
		}
		if sim := textproc.Jaccard(words, textproc.WordSet(e.Question)); sim > bestSim {
			best, bestSim = e, sim
		}
	}
	c.mu.Unlock()

	if best == nil || bestSim < threshold {
		return nil
	}
	m := &Match{Entry: *best, Similarity: bestSim, Rejected: c.rejectReason(question, best.Answer)}
	c.logger.Debug().
		Float64("similarity", bestSim).
		Bool("broad", broad).
		Str("rejected", m.Rejected).
		Msg("找到相似问题")
	return m
}

// FindSimilar 返回可以直接复用的缓存条目，没有时返回 nil
func (c *Cache) FindSimilar(question string) *types.MemoryEntry {
	m := c.Lookup(question)
	if !m.Served() {
		return nil
	}
	return &m.Entry
}

func (c *Cache) rejectReason(question, answer string) string {
	trimmed := strings.TrimSpace(answer)
	switch {
	case trimmed == "":
		return RejectEmptyAnswer
	case textproc.CountWords(trimmed) <= c.minAnswerWords:
		return RejectTooShort
	case strings.Contains(strings.ToLower(trimmed), notFoundMarker):
		return RejectNotFound
	case !c.identityMatches(question, trimmed):
		return RejectIdentity
	}
	return ""
}

// identityMatches 项目类问题的缓存回答必须指向同一个项目：
// 问题点名了目录中的项目时，回答必须提到这些项目；否则回答必须提到主项目。
func (c *Cache) identityMatches(question, answer string) bool {
	if !rag.IsProjectQuestion(question) {
		return true
	}
	normQ := textproc.Normalize(question)
	normA := textproc.Normalize(answer)

	named := false
	for _, title := range c.titles {
		if !textproc.ContainsPhrase(normQ, title) {
			continue
		}
		named = true
		if !textproc.ContainsPhrase(normA, title) {
			return false
		}
	}
	if named || len(c.primaryNames) == 0 {
		return true
	}
	for _, name := range c.primaryNames {
		if textproc.ContainsPhrase(normA, name) {
			return true
		}
	}
	return false
}

// Store 写入一条问答并持久化。持久化失败时条目仍保留在内存中。
func (c *Cache) Store(ctx context.Context, question, answer string, sectionsUsed []types.SectionName) (types.MemoryEntry, error) {
	if strings.TrimSpace(answer) == "" {
		return types.MemoryEntry{}, ErrEmptyAnswer
	}
	entry := types.MemoryEntry{
		ID:           uuid.NewString(),
		Question:     question,
		Answer:       answer,
		SectionsUsed: append([]types.SectionName(nil), sectionsUsed...),
		CreatedAt:    c.now().UTC(),
		Fingerprint:  textproc.Fingerprint(question),
		IsBroad:      IsBroadQuestion(question),
	}

	c.mu.Lock()
	c.insert(entry)
	c.evict()
	snapshot := c.snapshot()
	c.mu.Unlock()

	if err := c.persist(ctx, snapshot); err != nil {
		return entry, err
	}
	return entry, nil
}

func (c *Cache) insert(e types.MemoryEntry) {
	switch {
	case e.IsBroad:
		if c.lastBroad != nil {
			c.retained = append(c.retained, *c.lastBroad)
		}
		c.retained = append(c.retained, c.trailing...)
		c.trailing = nil
		c.lastBroad = &e
	default:
		// 有宽泛条目时 retained 恰好位于它之前；没有时 retained 就是整个序列
		c.retained = append(c.retained, e)
	}
}

func (c *Cache) persist(ctx context.Context, entries []types.MemoryEntry) error {
	if c.persister == nil {
		return nil
	}
	if err := c.persister.Save(ctx, entries); err != nil {
		c.logger.Error().Err(err).Int("entries", len(entries)).Msg("保存问答缓存失败")
		return fmt.Errorf("保存问答缓存失败: %w", err)
	}
	return nil
}

// Entries 返回全部条目的副本，顺序即淘汰顺序（头部最先淘汰）
func (c *Cache) Entries() []types.MemoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Len 返回条目数
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lenLocked()
}

// Stats 返回条目统计
func (c *Cache) Stats() types.MemoryStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var stats types.MemoryStats
	for _, e := range c.snapshot() {
		stats.Total++
		if e.IsBroad {
			stats.Broad++
		} else {
			stats.Narrow++
		}
	}
	return stats
}

// Clear 清空缓存并持久化空列表
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.reset(nil)
	c.mu.Unlock()
	c.logger.Info().Msg("问答缓存已清空")
	return c.persist(ctx, []types.MemoryEntry{})
}

func normalizeAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if n := textproc.Normalize(it); n != "" {
			out = append(out, n)
		}
	}
	return out
}
