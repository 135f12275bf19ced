package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/config"
	"portfolio-agent-go/internal/llm"
	"portfolio-agent-go/internal/memory"
	"portfolio-agent-go/internal/parser"
	"portfolio-agent-go/internal/rag"
	"portfolio-agent-go/internal/storage"
	"portfolio-agent-go/internal/textproc"
	"portfolio-agent-go/internal/types"
	"portfolio-agent-go/internal/web"
)

// Corpus 启动时加载的简历与项目资料
type Corpus struct {
	Resume   *parser.ResumeCorpus
	Projects *parser.ProjectCatalog
}

// SyncCorpus 启用 MinIO 时把存储桶中的简历资料同步到资料目录
func SyncCorpus(ctx context.Context, cfg *config.Config, st *storage.Storage, logger zerolog.Logger) error {
	if st == nil || st.MinIO == nil {
		return nil
	}
	n, err := st.MinIO.SyncToDir(ctx, cfg.Corpus.DocsDir)
	if err != nil {
		return fmt.Errorf("同步简历资料失败: %w", err)
	}
	logger.Info().Int("files", n).Str("docs_dir", cfg.Corpus.DocsDir).Msg("已从MinIO同步简历资料")
	return nil
}

// LoadCorpus 从资料目录加载简历（PDF/文本）与项目目录。
// 简历章节和项目目录都为空时返回 ErrCorpusEmpty。
func LoadCorpus(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Corpus, error) {
	pdfExtractor, err := parser.NewEinoPDFTextExtractor(ctx, parser.WithEinoLogger(logger))
	if err != nil {
		return nil, NewInitError("pdf_extractor", err.Error())
	}

	resume, err := parser.NewResumeLoader(cfg.Corpus.DocsDir,
		parser.WithPDFExtractor(pdfExtractor),
		parser.WithResumeLogger(logger),
	).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载简历失败: %w", err)
	}

	catalog, err := parser.NewProjectLoader(cfg.Corpus.DocsDir, cfg.Corpus.PrimaryAliases,
		parser.WithProjectFileNames(cfg.Corpus.ProjectFileNames...),
		parser.WithProjectLogger(logger),
	).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载项目目录失败: %w", err)
	}

	if resume.Sections().TotalLength() == 0 && len(catalog.Projects()) == 0 {
		return nil, &AnswerError{Op: "load_corpus", BaseErr: ErrCorpusEmpty, Detail: cfg.Corpus.DocsDir}
	}
	return &Corpus{Resume: resume, Projects: catalog}, nil
}

// Build 按配置组装问答服务：加载资料、创建分类器/检索器/缓存/模型，
// 并在启用时抓取简历中的 GitHub 仓库作为补充上下文。
func Build(ctx context.Context, cfg *config.Config, st *storage.Storage, logger zerolog.Logger) (*PortfolioService, error) {
	if cfg == nil {
		return nil, NewInitError("config", "配置不能为空")
	}
	if cfg.LLM.APIKey == "" {
		return nil, NewInitError("llm", config.ErrMissingAPIKey.Error())
	}

	corpus, err := LoadCorpus(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	cache, err := buildCache(ctx, cfg, st, corpus, logger)
	if err != nil {
		return nil, err
	}

	generator, err := buildGenerator(cfg, corpus, logger)
	if err != nil {
		return nil, err
	}

	searcher, err := buildSearcher(cfg, st, logger)
	if err != nil {
		return nil, err
	}

	opts := []SettingOpt{
		WithLogger(logger),
		WithMinContext(cfg.Retrieval.AugmentMinContext),
		WithMemoryHintLength(cfg.Retrieval.MemoryHintMaxLength),
	}
	if sources := scrapeGitHub(ctx, cfg, corpus, logger); len(sources) > 0 {
		opts = append(opts, WithWebSources(sources))
	}

	return NewPortfolioService(Components{
		Classifier: buildClassifier(cfg, corpus, logger),
		Ranker: rag.NewRanker(corpus.Resume, corpus.Projects,
			rag.WithBudget(cfg.Retrieval.ContextBudget),
			rag.WithTruncationMarker(cfg.Retrieval.TruncationMarker),
			rag.WithRankerLogger(logger),
		),
		Cache:     cache,
		Generator: generator,
		Resume:    corpus.Resume,
		Searcher:  searcher,
	}, opts...)
}

func buildClassifier(cfg *config.Config, corpus *Corpus, logger zerolog.Logger) *rag.Classifier {
	return rag.NewClassifier(corpus.Projects.Primary(),
		rag.WithPrimaryAliases(cfg.Corpus.PrimaryAliases...),
		rag.WithTechVocabulary(cfg.Retrieval.TechKeywords...),
		rag.WithSkillsText(corpus.Resume.Sections().Get(types.SectionSkills)),
		rag.WithClassifierLogger(logger),
	)
}

func buildCache(ctx context.Context, cfg *config.Config, st *storage.Storage, corpus *Corpus, logger zerolog.Logger) (*memory.Cache, error) {
	persister, err := memory.NewPersister(cfg.Memory, st, logger)
	if err != nil {
		return nil, NewInitError("memory", err.Error())
	}

	primaryNames := append([]string(nil), cfg.Corpus.PrimaryAliases...)
	if p := corpus.Projects.Primary(); p != nil {
		primaryNames = append(primaryNames, p.Title)
	}
	opts := []memory.Option{
		memory.WithMaxEntries(cfg.Memory.MaxEntries),
		memory.WithThresholds(cfg.Memory.NarrowThreshold, cfg.Memory.BroadThreshold),
		memory.WithMinAnswerWords(cfg.Memory.MinAnswerWords),
		memory.WithProjectIdentity(primaryNames, corpus.Projects.Titles()),
		memory.WithLogger(logger),
	}
	if persister != nil {
		opts = append(opts, memory.WithPersister(persister))
	}

	cache := memory.NewCache(opts...)
	if err := cache.Load(ctx); err != nil {
		// 后端暂时不可用时以空缓存启动
		logger.Warn().Err(err).Str("backend", cfg.Memory.Backend).Msg("问答缓存未能恢复")
	}
	stats := cache.Stats()
	logger.Info().
		Str("backend", cfg.Memory.Backend).
		Int("total", stats.Total).
		Int("broad", stats.Broad).
		Int("narrow", stats.Narrow).
		Msg("问答缓存就绪")
	return cache, nil
}

func buildGenerator(cfg *config.Config, corpus *Corpus, logger zerolog.Logger) (*llm.Generator, error) {
	chatModel, err := llm.NewChatModel(cfg.LLM.APIKey,
		llm.WithBaseURL(cfg.LLM.BaseURL),
		llm.WithModelName(cfg.LLM.Model),
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTimeout(config.GetDuration(cfg.LLM.Timeout, 30*time.Second)),
		llm.WithChatLogger(logger),
	)
	if err != nil {
		return nil, NewInitError("llm", err.Error())
	}
	limited := llm.NewRateLimitedModel(chatModel, cfg.LLM.QPM,
		time.Duration(cfg.LLM.RetryWaitMS)*time.Millisecond, cfg.LLM.MaxRetries)

	opts := []llm.GeneratorOption{
		llm.WithResponseWords(cfg.LLM.ResponseWords),
		llm.WithGeneratorLogger(logger),
	}
	if p := corpus.Projects.Primary(); p != nil {
		opts = append(opts, llm.WithPrimaryTitle(p.Title))
	}
	generator, err := llm.NewGenerator(limited, opts...)
	if err != nil {
		return nil, NewInitError("generator", err.Error())
	}
	logger.Info().Str("model", chatModel.ModelName()).Int("qpm", cfg.LLM.QPM).Msg("模型客户端就绪")
	return generator, nil
}

func buildSearcher(cfg *config.Config, st *storage.Storage, logger zerolog.Logger) (*web.SearchClient, error) {
	opts := []web.SearchOption{web.WithSearchLogger(logger)}
	if cfg.SearchAPI.TrackQuota {
		if st == nil || st.Redis == nil {
			return nil, NewInitError("search_api", "track_quota 需要 Redis")
		}
		opts = append(opts, web.WithQuotaCounter(st.Redis, cfg.SearchAPI.MonthlyQuota))
	}
	searcher, err := web.NewSearchClient(cfg.SearchAPI, opts...)
	if err != nil {
		return nil, NewInitError("search_api", err.Error())
	}
	return searcher, nil
}

// scrapeGitHub 抓取简历中 GitHub 仓库的 README。失败只记录日志，不影响启动。
func scrapeGitHub(ctx context.Context, cfg *config.Config, corpus *Corpus, logger zerolog.Logger) []web.Source {
	if !cfg.Scraper.Enabled {
		return nil
	}
	scraper, err := web.NewScraper(cfg.Scraper, web.WithScraperLogger(logger))
	if err != nil {
		logger.Warn().Err(err).Msg("创建网页抓取器失败，跳过 GitHub 内容")
		return nil
	}

	github := textproc.CategorizeLinks(corpus.Resume.Links()).GitHub
	if len(github) == 0 {
		return nil
	}
	sources := scraper.ProcessGitHubLinks(ctx, github)
	logger.Info().Int("links", len(github)).Int("sources", len(sources)).Msg("GitHub 内容抓取完成")
	return sources
}
