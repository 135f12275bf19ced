package processor

import (
	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/web"
)

// Components 聚合问答流程依赖的组件，便于集中管理和测试替换
type Components struct {
	Classifier IntentClassifier
	Ranker     ContextBuilder
	Cache      AnswerCache
	Generator  AnswerGenerator

	// 可选：为空时不做联网补充规划
	Resume   SectionStore
	Searcher WebSearcher
}

// Settings 纯配置项，不包含任何业务逻辑组件
type Settings struct {
	MinContext          int    // 上下文短于该值时尝试联网补充
	MemoryHintMaxLength int    // 相似历史回答提示的长度
	WebSources          string // 启动时抓取的 GitHub 内容，作为补充上下文
	Logger              zerolog.Logger
}

// SettingOpt 设置选项类型，仅改变 Settings 结构体内的字段
type SettingOpt func(*Settings)

func defaultSettings() Settings {
	return Settings{
		MinContext:          web.DefaultMinContext,
		MemoryHintMaxLength: 100,
		Logger:              zerolog.Nop(),
	}
}

// WithMinContext 设置联网补充的上下文长度阈值
func WithMinContext(n int) SettingOpt {
	return func(s *Settings) {
		if n > 0 {
			s.MinContext = n
		}
	}
}

// WithMemoryHintLength 设置相似历史回答提示的长度
func WithMemoryHintLength(n int) SettingOpt {
	return func(s *Settings) {
		if n > 0 {
			s.MemoryHintMaxLength = n
		}
	}
}

// WithWebSources 设置启动时抓取的外部内容
func WithWebSources(sources []web.Source) SettingOpt {
	return func(s *Settings) { s.WebSources = web.FormatSources(sources) }
}

// WithLogger 设置日志记录器
func WithLogger(logger zerolog.Logger) SettingOpt {
	return func(s *Settings) { s.Logger = logger }
}
