package processor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"portfolio-agent-go/internal/llm"
	"portfolio-agent-go/internal/memory"
	"portfolio-agent-go/internal/rag"
	"portfolio-agent-go/internal/textproc"
	"portfolio-agent-go/internal/tracing"
	"portfolio-agent-go/internal/types"
	"portfolio-agent-go/internal/web"
)

// 定义tracer
var tracer = otel.Tracer("portfolio-agent-go/processor")

// Answer 一次问答的结果
type Answer struct {
	Question   string              `json:"question"`
	Answer     string              `json:"answer"`
	Cached     bool                `json:"cached"`
	Intent     types.Intent        `json:"intent"`
	Sections   []types.SectionName `json:"sections_used,omitempty"`
	Similarity float64             `json:"similarity,omitempty"`
	// ContextChars 生成时使用的上下文长度，命中缓存时为 0
	ContextChars int  `json:"context_chars,omitempty"`
	Augmented    bool `json:"augmented,omitempty"`
}

// PortfolioService 问答编排：缓存查找 → 分类 → 构建上下文 → (联网补充) → 生成 → 写回缓存。
// 同一时刻只处理一个问题，保证缓存的读-写在一次问答内是原子的。
type PortfolioService struct {
	mu sync.Mutex

	components Components
	settings   Settings
}

// NewPortfolioService 创建问答服务，核心组件缺失时返回错误
func NewPortfolioService(components Components, opts ...SettingOpt) (*PortfolioService, error) {
	switch {
	case components.Classifier == nil:
		return nil, NewInitError("classifier", "")
	case components.Ranker == nil:
		return nil, NewInitError("ranker", "")
	case components.Cache == nil:
		return nil, NewInitError("cache", "")
	case components.Generator == nil:
		return nil, NewInitError("generator", "")
	}
	settings := defaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	return &PortfolioService{components: components, settings: settings}, nil
}

// Ask 回答一个问题。
// 模型调用失败时返回面向用户的提示作为回答，同时返回 ErrGenerationFailed；这种回答不写入缓存。
func (s *PortfolioService) Ask(ctx context.Context, question string) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "PortfolioService.Ask", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	question = strings.TrimSpace(question)
	if question == "" {
		err := NewValidationError("question is required")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	span.SetAttributes(attribute.String("question", tracing.SafeQuestion(question)))
	logger := s.settings.Logger.With().Str("question", textproc.TruncateRunes(question, 100)).Logger()

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	cls := s.components.Classifier.Classify(question)
	sectionsUsed := cls.Sections
	if cls.Intent.IsPrimary() {
		sectionsUsed = []types.SectionName{types.SectionProjects}
	}
	span.SetAttributes(attribute.String("intent", string(cls.Intent)))

	match := s.components.Cache.Lookup(question)
	if match.Served() {
		logger.Info().Float64("similarity", match.Similarity).Msg("复用缓存回答")
		span.AddEvent("cache_hit")
		// 复用的问答也重新写入，刷新其在缓存中的位置
		if _, err := s.components.Cache.Store(ctx, question, match.Entry.Answer, sectionsUsed); err != nil {
			logger.Warn().Err(err).Msg("写回缓存失败")
		}
		span.SetAttributes(attribute.Bool("cached", true))
		span.SetStatus(codes.Ok, "")
		return &Answer{
			Question:   question,
			Answer:     match.Entry.Answer,
			Cached:     true,
			Intent:     cls.Intent,
			Sections:   sectionsUsed,
			Similarity: match.Similarity,
		}, nil
	}
	if match != nil {
		logger.Info().Str("reason", match.Rejected).Float64("similarity", match.Similarity).Msg("缓存候选无效，重新生成")
	}

	contextText, augmented := s.buildContext(ctx, question, cls, logger)
	span.SetAttributes(
		attribute.Int("context_chars", textproc.RuneLen(contextText)),
		attribute.Bool("augmented", augmented),
	)

	hint := s.memoryHint(match)
	_, genSpan := tracer.Start(ctx, "Generator.Generate")
	answer, err := s.components.Generator.Generate(ctx, question, contextText, hint)
	if err != nil {
		tracing.RecordError(genSpan, err, tracing.ErrorTypeLLM)
		genSpan.End()
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		logger.Error().Err(err).Msg("生成回答失败")
		return &Answer{
			Question:     question,
			Answer:       llm.UserMessage(err),
			Intent:       cls.Intent,
			Sections:     sectionsUsed,
			ContextChars: textproc.RuneLen(contextText),
			Augmented:    augmented,
		}, NewGenerationError(err)
	}
	genSpan.SetAttributes(attribute.String("answer", tracing.SafeAnswer(answer)))
	genSpan.End()

	if _, err := s.components.Cache.Store(ctx, question, answer, sectionsUsed); err != nil {
		if errors.Is(err, memory.ErrEmptyAnswer) {
			logger.Warn().Msg("空回答不写入缓存")
		} else {
			logger.Warn().Err(err).Msg("写入缓存失败")
		}
	}

	logger.Info().
		Str("intent", string(cls.Intent)).
		Int("context_chars", textproc.RuneLen(contextText)).
		Bool("augmented", augmented).
		Dur("latency", time.Since(start)).
		Msg("回答生成完成")
	span.SetAttributes(attribute.Bool("cached", false))
	span.SetStatus(codes.Ok, "")
	return &Answer{
		Question:     question,
		Answer:       answer,
		Intent:       cls.Intent,
		Sections:     sectionsUsed,
		ContextChars: textproc.RuneLen(contextText),
		Augmented:    augmented,
	}, nil
}

// buildContext 构建上下文；非主项目意图下，上下文过短或问到 GitHub/项目时尝试联网补充
func (s *PortfolioService) buildContext(ctx context.Context, question string, cls types.Classification, logger zerolog.Logger) (string, bool) {
	req := rag.Request{
		Intent:        cls.Intent,
		Keyword:       cls.Keyword,
		Sections:      cls.Sections,
		Supplementary: s.settings.WebSources,
	}
	contextText := s.components.Ranker.BuildContext(req)
	if cls.Intent.IsPrimary() || s.components.Resume == nil {
		return contextText, false
	}

	plan := web.PlanAugmentation(question, contextText, s.components.Resume.Sections(), s.components.Resume.Links(), s.settings.MinContext)
	if !plan.Search {
		return contextText, false
	}
	searcher := s.components.Searcher
	if searcher == nil || !searcher.Enabled() {
		logger.Debug().Str("reason", plan.Reason).Msg("需要联网补充但未配置 SearchAPI")
		return contextText, false
	}

	ctx, span := tracer.Start(ctx, "WebSearcher.Search")
	defer span.End()
	span.SetAttributes(attribute.String("query", plan.Query), attribute.String("reason", plan.Reason))

	result, err := searcher.Search(ctx, plan.Query)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		logger.Warn().Err(err).Str("query", plan.Query).Msg("联网搜索失败，使用已有上下文")
		return contextText, false
	}
	if strings.TrimSpace(result) == "" {
		logger.Info().Str("query", plan.Query).Msg("联网搜索没有结果")
		return contextText, false
	}

	searchBlock := web.FormatSources([]web.Source{{Label: "SearchAPI: " + plan.Query, Content: result}})
	if req.Supplementary != "" {
		req.Supplementary += "\n\n" + searchBlock
	} else {
		req.Supplementary = searchBlock
	}
	logger.Info().Str("reason", plan.Reason).Int("chars", len(result)).Msg("已补充联网内容")
	return s.components.Ranker.BuildContext(req), true
}

// memoryHint 相似但未直接复用的历史回答前若干字符；指向其他项目的回答不作为提示
func (s *PortfolioService) memoryHint(match *memory.Match) string {
	if match == nil || match.Rejected == memory.RejectIdentity {
		return ""
	}
	return textproc.TruncateRunes(strings.TrimSpace(match.Entry.Answer), s.settings.MemoryHintMaxLength)
}

// Stats 返回缓存统计
func (s *PortfolioService) Stats() types.MemoryStats {
	return s.components.Cache.Stats()
}

// ClearMemory 清空问答缓存
func (s *PortfolioService) ClearMemory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.components.Cache.Clear(ctx); err != nil {
		return &AnswerError{Op: "clear", BaseErr: ErrMemoryPurgeFailed, Detail: err.Error(), Cause: err}
	}
	return nil
}
