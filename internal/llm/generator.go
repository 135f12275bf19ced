package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/constants"
)

const (
	// DefaultResponseWords 回答字数上限
	DefaultResponseWords = 120
	// overflowSlack 超出上限不到该词数时保留原文
	overflowSlack = 20
	ellipsis      = "..."
)

// ErrEmptyAnswer 模型返回了空内容
var ErrEmptyAnswer = errors.New("llm: model returned an empty answer")

// 把第三人称、第二人称的自我描述改写为第一人称
var voiceRewrites = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`(?i)\byou\s+worked\b`), "I worked"},
	{regexp.MustCompile(`(?i)\b(?:the|this)\s+(?:candidate|developer)\s+`), "I "},
	{regexp.MustCompile(`(?i)\b(?:they|he|she)\s+built\b`), "I built"},
	{regexp.MustCompile(`(?i)\b(?:he|she)\s+worked\b`), "I worked"},
}

// Generator 组装提示词、调用模型并对回答做后处理
type Generator struct {
	model         model.ChatModel
	primaryTitle  string
	responseWords int
	systemPrompt  string
	logger        zerolog.Logger
}

// GeneratorOption Generator 选项
type GeneratorOption func(*Generator)

// WithPrimaryTitle 系统提示词中强调的主项目名称
func WithPrimaryTitle(title string) GeneratorOption {
	return func(g *Generator) { g.primaryTitle = strings.TrimSpace(title) }
}

// WithResponseWords 设置回答字数上限
func WithResponseWords(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.responseWords = n
		}
	}
}

// WithSystemPrompt 覆盖默认系统提示词
func WithSystemPrompt(prompt string) GeneratorOption {
	return func(g *Generator) { g.systemPrompt = prompt }
}

// WithGeneratorLogger 设置日志记录器
func WithGeneratorLogger(logger zerolog.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = logger }
}

// NewGenerator 创建 Generator
func NewGenerator(m model.ChatModel, opts ...GeneratorOption) (*Generator, error) {
	if m == nil {
		return nil, fmt.Errorf("chat model 不能为空")
	}
	g := &Generator{
		model:         m,
		responseWords: DefaultResponseWords,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.systemPrompt == "" {
		g.systemPrompt = BuildSystemPrompt(g.primaryTitle, g.responseWords)
	}
	return g, nil
}

// SystemPrompt 返回当前使用的系统提示词
func (g *Generator) SystemPrompt() string {
	return g.systemPrompt
}

// BuildSystemPrompt 生成第一人称问答的系统提示词
func BuildSystemPrompt(primaryTitle string, words int) string {
	if words <= 0 {
		words = DefaultResponseWords
	}
	var b strings.Builder
	b.WriteString("You ARE the person whose resume this is. You speak in the first person only.\n\n")
	b.WriteString("CRITICAL RULES:\n")
	b.WriteString(`- Always use "I": "I built", "I worked on", "I focused on", "I used".` + "\n")
	b.WriteString(`- NEVER use "you", "the candidate", "the developer", "they built", "he/she worked".` + "\n")
	b.WriteString("- If asked about projects, answer only about the project(s) in the context. Do not mix or invent projects.\n")
	b.WriteString(`- Use the provided context (resume, project catalog, GitHub, web). Only say "Not found" if there is truly no relevant information.` + "\n")
	if primaryTitle != "" {
		fmt.Fprintf(&b, "- For \"explain your project\", \"most recent project\" or \"%s\": answer ONLY about %s using the context given.\n", primaryTitle, primaryTitle)
	}
	b.WriteString("\nResponse style:\n")
	b.WriteString("- first person, confident, professional\n")
	b.WriteString("- 4-7 short bullet points OR a short paragraph\n")
	fmt.Fprintf(&b, "- Maximum %d words\n", words)
	b.WriteString("- No raw file dumps, no config lists\n")
	b.WriteString("- UX-friendly explanations")
	return b.String()
}

// BuildUserMessage 拼接上下文、历史提示和问题
func BuildUserMessage(question, contextText, memoryHint string) string {
	var b strings.Builder
	b.WriteString("CONTEXT:\n")
	b.WriteString(contextText)
	b.WriteString("\n")
	if memoryHint != "" {
		b.WriteString("\n")
		b.WriteString(constants.MemoryHintPrefix)
		b.WriteString(memoryHint)
	}
	b.WriteString("\n\nQUESTION: ")
	b.WriteString(question)
	b.WriteString("\n\nRESPONSE (concise and direct):")
	return b.String()
}

// Generate 生成回答。返回的回答已经过人称改写和字数截断；
// 出错时返回原始错误，调用方可用 UserMessage 转换为面向用户的提示。
func (g *Generator) Generate(ctx context.Context, question, contextText, memoryHint string) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(g.systemPrompt),
		schema.UserMessage(BuildUserMessage(question, contextText, memoryHint)),
	}

	start := time.Now()
	resp, err := g.model.Generate(ctx, messages)
	if err != nil {
		g.logger.Error().Err(err).Dur("latency", time.Since(start)).Msg("生成回答失败")
		return "", err
	}

	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	answer = EnforceFirstPersonVoice(answer)
	words := len(strings.Fields(answer))
	answer = LimitWords(answer, g.responseWords)

	g.logger.Info().Int("chars", len(answer)).Int("words", words).Dur("latency", time.Since(start)).Msg("回答生成完成")
	return answer, nil
}

// EnforceFirstPersonVoice 把常见的第三人称表述改写为第一人称
func EnforceFirstPersonVoice(answer string) string {
	if len(answer) < 10 {
		return answer
	}
	for _, r := range voiceRewrites {
		answer = r.pattern.ReplaceAllString(answer, r.repl)
	}
	return answer
}

// LimitWords 词数超过 limit+20 时只保留前 limit 个词并追加省略号
func LimitWords(answer string, limit int) string {
	if limit <= 0 {
		return answer
	}
	words := strings.Fields(answer)
	if len(words) <= limit+overflowSlack {
		return answer
	}
	return strings.Join(words[:limit], " ") + ellipsis
}

// UserMessage 把生成错误转换为面向用户的提示，这类回答不会写入缓存
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return "[Error: LLM API rate limit exceeded. Please try again later.]"
		case apiErr.StatusCode == 401:
			return "[Error: Invalid LLM API key. Check your GROQ_API_KEY.]"
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "[Error: API request timed out. Please try again.]"
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate_limit") || strings.Contains(lower, "rate limit") || strings.Contains(msg, "429"):
		return "[Error: LLM API rate limit exceeded. Please try again later.]"
	case strings.Contains(msg, "401") || strings.Contains(lower, "unauthorized"):
		return "[Error: Invalid LLM API key. Check your GROQ_API_KEY.]"
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		return "[Error: API request timed out. Please try again.]"
	}
	return "[Error generating response: " + truncate(msg, 200) + "]"
}
