package processor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-agent-go/internal/constants"
	"portfolio-agent-go/internal/llm"
	"portfolio-agent-go/internal/memory"
	"portfolio-agent-go/internal/parser"
	"portfolio-agent-go/internal/rag"
	"portfolio-agent-go/internal/types"
	"portfolio-agent-go/internal/web"
)

var testAliases = []string{"linkup", "link-up", "link up"}

const (
	studyAnswer   = "I studied computer science at Tokyo University from 2018 to 2022."
	projectAnswer = "My main project is LinkUp, a social platform built with Next.js and MongoDB."
)

// fakeSearcher 记录搜索词并返回固定结果
type fakeSearcher struct {
	enabled bool
	result  string
	err     error
	queries []string
}

func (f *fakeSearcher) Enabled() bool { return f.enabled }

func (f *fakeSearcher) Search(_ context.Context, query string) (string, error) {
	f.queries = append(f.queries, query)
	return f.result, f.err
}

// failingPersister 保存总是失败
type failingPersister struct{}

func (failingPersister) Load(context.Context) ([]types.MemoryEntry, error) { return nil, nil }
func (failingPersister) Save(context.Context, []types.MemoryEntry) error {
	return errors.New("disk full")
}

type fixture struct {
	service *PortfolioService
	model   *llm.MockChatModel
	cache   *memory.Cache
}

func newFixture(t *testing.T, m *llm.MockChatModel, withResume bool, searcher WebSearcher, cacheOpts ...memory.Option) *fixture {
	t.Helper()
	catalog := parser.NewProjectCatalog([]types.ProjectRecord{
		{Title: "LinkUp", Description: "social platform", Tech: []string{"Next.js", "MongoDB"}},
		{Title: "Foo", Description: "unrelated tool", Tech: []string{"Go"}},
	}, testAliases)
	sections := types.Sections{
		types.SectionEducation: "Tokyo University, B.S. Computer Science, 2018-2022",
		types.SectionProjects:  "LinkUp - social platform using Next.js, MongoDB\n- realtime feed\nFoo - unrelated tool\n- written in Go",
		types.SectionSkills:    "Go, Python, MongoDB",
	}
	corpus := parser.NewResumeCorpus(sections, []string{"https://github.com/alice/linkup"}, "")

	opts := append([]memory.Option{memory.WithProjectIdentity(testAliases, catalog.Titles())}, cacheOpts...)
	cache := memory.NewCache(opts...)
	gen, err := llm.NewGenerator(m, llm.WithPrimaryTitle("LinkUp"))
	require.NoError(t, err)

	components := Components{
		Classifier: rag.NewClassifier(catalog.Primary(), rag.WithPrimaryAliases(testAliases...)),
		Ranker:     rag.NewRanker(corpus, catalog),
		Cache:      cache,
		Generator:  gen,
		Searcher:   searcher,
	}
	if withResume {
		components.Resume = corpus
	}
	svc, err := NewPortfolioService(components)
	require.NoError(t, err)
	return &fixture{service: svc, model: m, cache: cache}
}

func userMessage(t *testing.T, m *llm.MockChatModel) string {
	t.Helper()
	msgs := m.LastMessages()
	require.Len(t, msgs, 2, "应包含 system 与 user 两条消息")
	return msgs[1].Content
}

func TestNewPortfolioServiceRequiresComponents(t *testing.T) {
	_, err := NewPortfolioService(Components{})
	require.ErrorIs(t, err, ErrComponentNotInit)
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	f := newFixture(t, llm.NewMockChatModel(studyAnswer, nil), false, nil)
	_, err := f.service.Ask(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Equal(t, 0, f.model.Calls(), "空问题不调用模型")
}

func TestAskGeneratesThenServesFromCache(t *testing.T) {
	f := newFixture(t, llm.NewMockChatModel(studyAnswer, nil), false, nil)
	ctx := context.Background()

	first, err := f.service.Ask(ctx, "Where did you study computer science?")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, studyAnswer, first.Answer)
	assert.Equal(t, types.IntentGeneral, first.Intent)
	assert.Contains(t, userMessage(t, f.model), "--- EDUCATION ---")
	assert.Greater(t, first.ContextChars, 0)

	second, err := f.service.Ask(ctx, "where did you study Computer Science")
	require.NoError(t, err)
	assert.True(t, second.Cached, "相同问题应直接复用缓存")
	assert.Equal(t, studyAnswer, second.Answer)
	assert.InDelta(t, 1.0, second.Similarity, 1e-9)
	assert.Equal(t, 1, f.model.Calls(), "命中缓存时不再调用模型")
	assert.Equal(t, 2, f.service.Stats().Total, "复用的问答也会写回缓存")
}

func TestAskPrimaryProjectUsesOnlyPrimaryContext(t *testing.T) {
	f := newFixture(t, llm.NewMockChatModel(projectAnswer, nil), true, &fakeSearcher{enabled: true})
	ans, err := f.service.Ask(context.Background(), "What is your main project?")
	require.NoError(t, err)
	assert.Equal(t, types.IntentPrimaryProjectOnly, ans.Intent)
	assert.Equal(t, []types.SectionName{types.SectionProjects}, ans.Sections)
	assert.False(t, ans.Augmented, "主项目问题不联网补充")

	msg := userMessage(t, f.model)
	assert.Contains(t, msg, "LinkUp")
	assert.NotContains(t, msg, "Foo")
}

func TestAskGenerationErrorIsNotCached(t *testing.T) {
	apiErr := &llm.APIError{StatusCode: 429, Message: "slow down"}
	f := newFixture(t, llm.NewMockChatModel("", apiErr), false, nil)

	ans, err := f.service.Ask(context.Background(), "Where did you study computer science?")
	require.ErrorIs(t, err, ErrGenerationFailed)
	require.ErrorIs(t, err, apiErr, "底层错误可以被识别")
	require.NotNil(t, ans)
	assert.Equal(t, "[Error: LLM API rate limit exceeded. Please try again later.]", ans.Answer)
	assert.Equal(t, 0, f.service.Stats().Total, "失败的回答不写入缓存")
}

func TestAskPassesMemoryHintForRejectedCandidate(t *testing.T) {
	m := llm.NewMockChatModelSequential(
		llm.MockResponse{Content: "Tokyo University."},
		llm.MockResponse{Content: studyAnswer},
	)
	f := newFixture(t, m, false, nil)
	ctx := context.Background()

	_, err := f.service.Ask(ctx, "Where did you study computer science?")
	require.NoError(t, err)

	ans, err := f.service.Ask(ctx, "Where did you study computer science?")
	require.NoError(t, err)
	assert.False(t, ans.Cached, "过短的回答不能复用")
	assert.Equal(t, studyAnswer, ans.Answer)
	assert.Contains(t, userMessage(t, m), constants.MemoryHintPrefix+"Tokyo University.")
}

func TestAskSkipsHintForOtherProjectAnswer(t *testing.T) {
	m := llm.NewMockChatModelSequential(
		llm.MockResponse{Content: "My main project is Foo, a tool written in Go for students."},
		llm.MockResponse{Content: projectAnswer},
	)
	f := newFixture(t, m, false, nil)
	ctx := context.Background()

	_, err := f.service.Ask(ctx, "What is your main project?")
	require.NoError(t, err)

	ans, err := f.service.Ask(ctx, "What is your main project?")
	require.NoError(t, err)
	assert.False(t, ans.Cached, "指向其他项目的回答不能复用")
	assert.Equal(t, projectAnswer, ans.Answer)
	assert.NotContains(t, userMessage(t, m), constants.MemoryHintPrefix, "指向其他项目的回答也不作为提示")
}

func TestAskAugmentsShortContextWithSearch(t *testing.T) {
	searcher := &fakeSearcher{enabled: true, result: "LinkUp: a social platform for students"}
	f := newFixture(t, llm.NewMockChatModel(studyAnswer, nil), true, searcher)

	ans, err := f.service.Ask(context.Background(), "Where did you study computer science?")
	require.NoError(t, err)
	assert.True(t, ans.Augmented)
	require.Len(t, searcher.queries, 1)
	assert.True(t, strings.HasPrefix(searcher.queries[0], "LinkUp"), "用项目标题行作为搜索词")
	assert.True(t, strings.HasSuffix(searcher.queries[0], " github"))
	assert.Contains(t, userMessage(t, f.model), "LinkUp: a social platform for students")
}

func TestAskIgnoresSearchFailure(t *testing.T) {
	searcher := &fakeSearcher{enabled: true, err: web.ErrQuotaExceeded}
	f := newFixture(t, llm.NewMockChatModel(studyAnswer, nil), true, searcher)

	ans, err := f.service.Ask(context.Background(), "Where did you study computer science?")
	require.NoError(t, err, "搜索失败不影响回答")
	assert.False(t, ans.Augmented)
	assert.Len(t, searcher.queries, 1)

	disabled := &fakeSearcher{enabled: false}
	f = newFixture(t, llm.NewMockChatModel(studyAnswer, nil), true, disabled)
	_, err = f.service.Ask(context.Background(), "Where did you study computer science?")
	require.NoError(t, err)
	assert.Empty(t, disabled.queries, "未启用时不搜索")
}

func TestAskUsesWebSources(t *testing.T) {
	catalog := parser.NewProjectCatalog(nil, nil)
	corpus := parser.NewResumeCorpus(types.Sections{types.SectionSummary: "Backend developer"}, nil, "")
	m := llm.NewMockChatModel(studyAnswer, nil)
	gen, err := llm.NewGenerator(m)
	require.NoError(t, err)

	svc, err := NewPortfolioService(Components{
		Classifier: rag.NewClassifier(nil),
		Ranker:     rag.NewRanker(corpus, catalog),
		Cache:      memory.NewCache(),
		Generator:  gen,
	}, WithWebSources([]web.Source{{Label: "GitHub: alice/linkup", Content: "README LinkUp connects students"}}))
	require.NoError(t, err)

	_, err = svc.Ask(context.Background(), "Tell me about yourself")
	require.NoError(t, err)
	assert.True(t, strings.Contains(userMessage(t, m), "README LinkUp connects students"), "启动时抓取的内容作为补充上下文")
}

func TestClearMemory(t *testing.T) {
	f := newFixture(t, llm.NewMockChatModel(studyAnswer, nil), false, nil)
	ctx := context.Background()
	_, err := f.service.Ask(ctx, "Where did you study computer science?")
	require.NoError(t, err)
	require.Equal(t, 1, f.service.Stats().Total)

	require.NoError(t, f.service.ClearMemory(ctx))
	assert.Equal(t, 0, f.service.Stats().Total)

	broken := newFixture(t, llm.NewMockChatModel(studyAnswer, nil), false, nil, memory.WithPersister(failingPersister{}))
	err = broken.service.ClearMemory(ctx)
	require.ErrorIs(t, err, ErrMemoryPurgeFailed)
}
