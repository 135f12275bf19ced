package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"

	"portfolio-agent-go/pkg/utils"
)

const (
	// DefaultBaseURL Groq 的 OpenAI 兼容接口
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModelName 默认模型
	DefaultModelName = "llama-3.1-8b-instant"

	chatCompletionsPath = "/chat/completions"
	defaultTimeout      = 30 * time.Second
)

// ErrEmptyChoices 接口返回了空的 choices
var ErrEmptyChoices = errors.New("llm: completion has no choices")

// APIError 接口返回非 200 状态码
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("llm api status %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("llm api status %d: %s", e.StatusCode, e.Message)
}

// --- OpenAI 兼容请求/响应结构 ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	TopP        *float32      `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   *chatCompletionUsage   `json:"usage,omitempty"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ChatModel 实现了 model.ChatModel 接口，
// 通过 hertz 客户端调用 OpenAI 兼容的 chat/completions 接口（默认 Groq）。
type ChatModel struct {
	apiKey      string
	modelName   string
	baseURL     string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	httpClient  *client.Client
	logger      zerolog.Logger
}

// ChatModelOption ChatModel 选项
type ChatModelOption func(*ChatModel)

// WithModelName 设置模型名称
func WithModelName(name string) ChatModelOption {
	return func(m *ChatModel) {
		if strings.TrimSpace(name) != "" {
			m.modelName = name
		}
	}
}

// WithBaseURL 设置接口地址，不含 /chat/completions
func WithBaseURL(url string) ChatModelOption {
	return func(m *ChatModel) {
		if strings.TrimSpace(url) != "" {
			m.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithTemperature 设置默认温度
func WithTemperature(t float32) ChatModelOption {
	return func(m *ChatModel) { m.temperature = t }
}

// WithMaxTokens 设置默认最大输出 token 数
func WithMaxTokens(n int) ChatModelOption {
	return func(m *ChatModel) { m.maxTokens = n }
}

// WithTimeout 设置单次请求超时
func WithTimeout(d time.Duration) ChatModelOption {
	return func(m *ChatModel) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithHTTPClient 使用外部创建的 hertz 客户端
func WithHTTPClient(c *client.Client) ChatModelOption {
	return func(m *ChatModel) { m.httpClient = c }
}

// WithChatLogger 设置日志记录器
func WithChatLogger(logger zerolog.Logger) ChatModelOption {
	return func(m *ChatModel) { m.logger = logger }
}

// NewChatModel 创建一个新的 ChatModel 实例
func NewChatModel(apiKey string, opts ...ChatModelOption) (*ChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}
	m := &ChatModel{
		apiKey:      apiKey,
		modelName:   DefaultModelName,
		baseURL:     DefaultBaseURL,
		temperature: 0.2,
		maxTokens:   220,
		timeout:     defaultTimeout,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.httpClient == nil {
		c, err := utils.NewHTTPClient(m.timeout)
		if err != nil {
			return nil, err
		}
		m.httpClient = c
	}
	m.logger.Info().Str("base_url", m.baseURL).Str("model", m.modelName).Msg("LLM 客户端初始化完成")
	return m, nil
}

// ModelName 返回实际使用的模型名称
func (m *ChatModel) ModelName() string {
	return m.modelName
}

// Generate 实现 model.ChatModel 接口
func (m *ChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	temperature := m.temperature
	maxTokens := m.maxTokens
	modelName := m.modelName
	options := model.GetCommonOptions(&model.Options{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		Model:       &modelName,
	}, opts...)

	payload := chatCompletionRequest{
		Model:       *options.Model,
		Messages:    make([]chatMessage, 0, len(messages)),
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
		TopP:        options.TopP,
		Stop:        options.Stop,
	}
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		payload.Messages = append(payload.Messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(m.baseURL + chatCompletionsPath)
	req.SetMethod(consts.MethodPost)
	req.Header.SetContentTypeBytes([]byte("application/json"))
	req.SetHeader("Authorization", "Bearer "+m.apiKey)
	req.SetBody(body)

	start := time.Now()
	m.logger.Debug().Str("model", payload.Model).Int("messages", len(payload.Messages)).Msg("发送 LLM 请求")
	if err := m.httpClient.DoTimeout(ctx, req, resp, m.timeout); err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}

	respBody := resp.Body()
	if status := resp.StatusCode(); status != consts.StatusOK {
		apiErr := &APIError{StatusCode: status, Message: truncate(string(respBody), 200)}
		var eb apiErrorBody
		if json.Unmarshal(respBody, &eb) == nil && eb.Error.Message != "" {
			apiErr.Message = eb.Error.Message
			apiErr.Type = eb.Error.Type
		}
		return nil, apiErr
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, ErrEmptyChoices
	}

	evt := m.logger.Debug().Dur("latency", time.Since(start)).Str("finish_reason", out.Choices[0].FinishReason)
	if out.Usage != nil {
		evt = evt.Int("total_tokens", out.Usage.TotalTokens)
	}
	evt.Msg("收到 LLM 响应")

	msg := schema.AssistantMessage(out.Choices[0].Message.Content, nil)
	if out.Usage != nil {
		msg.ResponseMeta = &schema.ResponseMeta{
			FinishReason: out.Choices[0].FinishReason,
			Usage: &schema.TokenUsage{
				PromptTokens:     out.Usage.PromptTokens,
				CompletionTokens: out.Usage.CompletionTokens,
				TotalTokens:      out.Usage.TotalTokens,
			},
		}
	}
	return msg, nil
}

// Stream 以单个分片的流返回完整结果
func (m *ChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// BindTools 问答场景不使用工具调用
func (m *ChatModel) BindTools(tools []*schema.ToolInfo) error {
	if len(tools) > 0 {
		m.logger.Warn().Int("tools", len(tools)).Msg("ChatModel 不支持工具调用，忽略绑定")
	}
	return nil
}

var _ model.ChatModel = (*ChatModel)(nil)

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
