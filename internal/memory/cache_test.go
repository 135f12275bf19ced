package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-agent-go/internal/textproc"
	"portfolio-agent-go/internal/types"
)

const longAnswer = "My main project is LinkUp, a realtime chat platform for students."

// memPersister 记录每次保存的快照
type memPersister struct {
	entries []types.MemoryEntry
	loadErr error
	saveErr error
	saves   int
}

func (p *memPersister) Load(context.Context) ([]types.MemoryEntry, error) {
	return p.entries, p.loadErr
}

func (p *memPersister) Save(_ context.Context, entries []types.MemoryEntry) error {
	p.saves++
	if p.saveErr != nil {
		return p.saveErr
	}
	p.entries = append([]types.MemoryEntry(nil), entries...)
	return nil
}

func questions(entries []types.MemoryEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Question)
	}
	return out
}

func TestIsBroadQuestion(t *testing.T) {
	broad := []string{
		"Tell me about yourself",
		"What are your strengths?",
		"Describe your background",
		"What tech do you use?",
		"Who are you?",
		"Walk me through your resume",
		"show me projects",
	}
	narrow := []string{
		"What's your main project?",
		"Which project uses Firebase?",
		"projects show me",
		"Where did you intern in 2023?",
		"",
	}
	for _, q := range broad {
		assert.True(t, IsBroadQuestion(q), "%q 应为宽泛问题", q)
	}
	for _, q := range narrow {
		assert.False(t, IsBroadQuestion(q), "%q 应为具体问题", q)
	}
}

func TestStoreNeverExceedsCapacity(t *testing.T) {
	ctx := context.Background()
	c := NewCache(WithMaxEntries(3))
	for i := 0; i < 20; i++ {
		q := fmt.Sprintf("Where did you work in %d?", 2000+i)
		if i%3 == 0 {
			q = fmt.Sprintf("Tell me about yourself %d", i)
		}
		_, err := c.Store(ctx, q, longAnswer, nil)
		require.NoError(t, err)
		assert.LessOrEqual(t, c.Len(), 3, "第 %d 次写入后超出容量", i)
	}
}

func TestNarrowEntriesAreEvictedBeforeBroad(t *testing.T) {
	ctx := context.Background()
	c := NewCache(WithMaxEntries(3))

	store := func(q string) {
		_, err := c.Store(ctx, q, longAnswer, []types.SectionName{types.SectionSummary})
		require.NoError(t, err)
	}
	store("Tell me about yourself")
	store("Where did you intern in 2021?")
	store("Where did you intern in 2022?")
	assert.Equal(t, []string{
		"Where did you intern in 2021?",
		"Where did you intern in 2022?",
		"Tell me about yourself",
	}, questions(c.Entries()), "具体问题插入到最后一个宽泛条目之前")

	for i := 2023; i < 2030; i++ {
		store(fmt.Sprintf("Where did you intern in %d?", i))
	}
	entries := c.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "Tell me about yourself", entries[2].Question, "宽泛条目应在反复溢出后仍被保留")
	assert.Equal(t, "Where did you intern in 2028?", entries[0].Question)

	store("Describe your background")
	assert.Equal(t, []string{
		"Where did you intern in 2029?",
		"Tell me about yourself",
		"Describe your background",
	}, questions(c.Entries()), "新的宽泛条目追加到尾部")

	store("Where did you intern in 2030?")
	assert.Equal(t, []string{
		"Tell me about yourself",
		"Where did you intern in 2030?",
		"Describe your background",
	}, questions(c.Entries()))
}

func TestStoreAppendsNarrowWhenNoBroadExists(t *testing.T) {
	ctx := context.Background()
	c := NewCache()
	for _, q := range []string{"Where did you study?", "Which project uses Firebase?"} {
		_, err := c.Store(ctx, q, longAnswer, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"Where did you study?", "Which project uses Firebase?"}, questions(c.Entries()))
}

func TestStoreRejectsEmptyAnswer(t *testing.T) {
	p := &memPersister{}
	c := NewCache(WithPersister(p))
	_, err := c.Store(context.Background(), "Where did you study?", "   ", nil)
	require.ErrorIs(t, err, ErrEmptyAnswer)
	assert.Zero(t, c.Len())
	assert.Zero(t, p.saves, "空回答不应触发持久化")
}

func TestStoreFillsEntryFields(t *testing.T) {
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	c := NewCache(WithClock(func() time.Time { return now }))
	entry, err := c.Store(context.Background(), "Tell me about yourself!", longAnswer, []types.SectionName{types.SectionSummary})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.True(t, entry.IsBroad)
	assert.Equal(t, now, entry.CreatedAt)
	assert.Len(t, entry.Fingerprint, 32)
	assert.Equal(t, []types.SectionName{types.SectionSummary}, entry.SectionsUsed)
}

func TestLookupNarrowThreshold(t *testing.T) {
	ctx := context.Background()
	c := NewCache(WithProjectIdentity([]string{"LinkUp", "link-up", "link up"}, []string{"LinkUp", "Foo"}))
	_, err := c.Store(ctx, "What's your main project?", longAnswer, []types.SectionName{types.SectionProjects})
	require.NoError(t, err)

	hit := c.FindSimilar("what's your main project")
	require.NotNil(t, hit, "归一化后相同的问题应命中")
	assert.Equal(t, longAnswer, hit.Answer)

	assert.Nil(t, c.Lookup("What's your Foo project?"), "相似度 4/6 低于具体问题阈值 0.7")
	assert.Nil(t, c.FindSimilar("Tell me about your Foo project"), "宽泛问题不与具体条目比较")
}

func TestLookupPrimaryProjectParaphraseMisses(t *testing.T) {
	ctx := context.Background()
	c := NewCache(WithProjectIdentity([]string{"LinkUp"}, []string{"LinkUp", "Foo"}))
	_, err := c.Store(ctx, "What's your main project?", longAnswer, []types.SectionName{types.SectionProjects})
	require.NoError(t, err)

	q := "Tell me about your primary project"
	require.True(t, IsBroadQuestion(q), "以 tell me about 开头属于宽泛问题")
	require.False(t, IsBroadQuestion("What's your main project?"))
	assert.InDelta(t, 2.0/9.0, textproc.Similarity(q, "What's your main project?"), 1e-9)
	assert.Nil(t, c.Lookup(q), "不同类别且相似度远低于阈值，按阈值规则应重新生成")
	assert.Nil(t, c.Lookup("Tell me about your Foo project"))
}

func TestLookupBroadThreshold(t *testing.T) {
	ctx := context.Background()
	c := NewCache()
	_, err := c.Store(ctx, "Tell me about yourself", "I am a full-stack developer who enjoys building realtime products.", nil)
	require.NoError(t, err)

	m := c.Lookup("Tell me about yourself quickly please")
	require.NotNil(t, m, "宽泛问题 4/6 达到 0.6 阈值")
	assert.InDelta(t, 4.0/6.0, m.Similarity, 1e-9)
	assert.True(t, m.Served())

	assert.Nil(t, c.Lookup("Tell me about your skills"), "3/6 低于宽泛阈值")
}

func TestLookupRequiresSameClass(t *testing.T) {
	ctx := context.Background()
	c := NewCache()
	_, err := c.Store(ctx, "show me projects", longAnswer, nil)
	require.NoError(t, err)
	assert.Nil(t, c.Lookup("projects show me"), "词集相同但类别不同")
	assert.NotNil(t, c.Lookup("Show me projects!"))
}

func TestLookupRejectsDegenerateAnswers(t *testing.T) {
	cases := map[string]string{
		"":                        RejectEmptyAnswer,
		"Too short":               RejectTooShort,
		"one two three four five": RejectTooShort,
		"That information was not found in the resume sorry": RejectNotFound,
	}
	for answer, reason := range cases {
		c := NewCache()
		c.reset([]types.MemoryEntry{{Question: "Where did you study?", Answer: answer}})
		m := c.Lookup("Where did you study?")
		require.NotNil(t, m, answer)
		assert.Equal(t, reason, m.Rejected, "回答 %q", answer)
		assert.Nil(t, c.FindSimilar("Where did you study?"))
	}
}

func TestLookupProjectIdentityCheck(t *testing.T) {
	ctx := context.Background()
	identity := WithProjectIdentity([]string{"LinkUp", "link-up", "link up"}, []string{"LinkUp", "Foo"})

	c := NewCache(identity)
	_, err := c.Store(ctx, "What's your main project?", "I built Foo, a command line tool for developers.", nil)
	require.NoError(t, err)
	m := c.Lookup("What's your main project?")
	require.NotNil(t, m)
	assert.Equal(t, RejectIdentity, m.Rejected, "项目问题的缓存回答必须提到主项目")

	c = NewCache(identity)
	_, err = c.Store(ctx, "What did you build for the Foo project?", "I built LinkUp with Next.js and Firebase for students.", nil)
	require.NoError(t, err)
	m = c.Lookup("What did you build for the Foo project?")
	require.NotNil(t, m)
	assert.Equal(t, RejectIdentity, m.Rejected, "问题点名的项目必须出现在回答中")

	c = NewCache(identity)
	_, err = c.Store(ctx, "What did you build for the Foo project?", "For Foo I built a command line tool in Go.", nil)
	require.NoError(t, err)
	assert.NotNil(t, c.FindSimilar("What did you build for the Foo project?"))

	// 非项目问题不做一致性检查
	c = NewCache(identity)
	_, err = c.Store(ctx, "Where did you study computer science?", "I studied computer science at State University.", nil)
	require.NoError(t, err)
	assert.NotNil(t, c.FindSimilar("Where did you study computer science?"))
}

func TestLoadRestoresOrderAndTrims(t *testing.T) {
	p := &memPersister{entries: []types.MemoryEntry{
		{Question: "n0"},
		{Question: "n1"},
		{Question: "b1", IsBroad: true},
		{Question: "n2"},
	}}
	c := NewCache(WithPersister(p), WithMaxEntries(3))
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, []string{"n1", "b1", "n2"}, questions(c.Entries()))

	// 加载的数据里最后一个宽泛条目之后还有条目时，插入位置仍在宽泛条目之前
	_, err := c.Store(context.Background(), "Where did you study?", longAnswer, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Where did you study?", "b1", "n2"}, questions(c.Entries()))

	_, err = c.Store(context.Background(), "Tell me about yourself", longAnswer, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "n2", "Tell me about yourself"}, questions(c.Entries()))
	assert.Equal(t, questions(c.Entries()), questions(p.entries), "每次写入后持久化完整序列")
}

func TestLoadCorruptStateStartsEmpty(t *testing.T) {
	p := &memPersister{loadErr: fmt.Errorf("%w: bad json", ErrCorruptState)}
	c := NewCache(WithPersister(p))
	require.NoError(t, c.Load(context.Background()), "数据损坏不应返回错误")
	assert.Zero(t, c.Len())

	p = &memPersister{loadErr: errors.New("connection refused")}
	c = NewCache(WithPersister(p))
	require.Error(t, c.Load(context.Background()))
	assert.Zero(t, c.Len())
}

func TestStoreKeepsEntryWhenPersistFails(t *testing.T) {
	p := &memPersister{saveErr: errors.New("disk full")}
	c := NewCache(WithPersister(p))
	_, err := c.Store(context.Background(), "Where did you study?", longAnswer, nil)
	require.Error(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestStatsAndClear(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}
	c := NewCache(WithPersister(p))
	for _, q := range []string{"Tell me about yourself", "Where did you study?", "Which project uses Firebase?"} {
		_, err := c.Store(ctx, q, longAnswer, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, types.MemoryStats{Total: 3, Broad: 1, Narrow: 2}, c.Stats())

	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, types.MemoryStats{}, c.Stats())
	assert.Empty(t, p.entries)
	assert.Nil(t, c.Lookup("Tell me about yourself"))
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "memory.json")
	store := NewFileStore(path, testLogger())

	c := NewCache(WithPersister(store))
	require.NoError(t, c.Load(ctx), "文件不存在时以空缓存启动")
	_, err := c.Store(ctx, "Tell me about yourself", longAnswer, []types.SectionName{types.SectionSummary})
	require.NoError(t, err)
	_, err = c.Store(ctx, "Where did you study?", longAnswer, []types.SectionName{types.SectionEducation})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"question_hash"`)
	assert.Contains(t, string(raw), `"is_easy": true`)
	assert.Contains(t, string(raw), `"sections_used"`)

	reloaded := NewCache(WithPersister(store))
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, questions(c.Entries()), questions(reloaded.Entries()))
	assert.NotNil(t, reloaded.FindSimilar("tell me about yourself"))
}

func TestFileStoreCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := NewFileStore(path, testLogger())
	_, err := store.Load(ctx)
	require.ErrorIs(t, err, ErrCorruptState)

	c := NewCache(WithPersister(store))
	require.NoError(t, c.Load(ctx))
	assert.Zero(t, c.Len())

	_, err = c.Store(ctx, "Where did you study?", longAnswer, nil)
	require.NoError(t, err)
	entries, err := store.Load(ctx)
	require.NoError(t, err, "写入后文件应恢复为合法 JSON")
	assert.Len(t, entries, 1)
}

func TestFileStoreReadsLegacyLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	legacy := `[{"question":"Tell me about yourself","answer":"I build web apps with React and Node every day.","sections_used":["SUMMARY"],"timestamp":"2025-01-02T03:04:05.123456","question_hash":"abc","is_easy":true}]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	entries, err := NewFileStore(path, testLogger()).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsBroad)
	assert.Equal(t, []types.SectionName{types.SectionSummary}, entries[0].SectionsUsed)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 123456000, time.UTC), entries[0].CreatedAt, "不带时区的时间戳按 UTC 解析")

	c := NewCache(WithPersister(NewFileStore(path, testLogger())))
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, 1, c.Len(), "旧格式条目加载后保留")
}
