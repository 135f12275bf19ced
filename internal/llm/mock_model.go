package llm

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrMockExhausted 顺序响应已用完
var ErrMockExhausted = errors.New("mock chat model has run out of sequential responses")

// MockResponse 定义了 MockChatModel 的单次预期响应
type MockResponse struct {
	Content string
	Error   error
}

// MockChatModel 是一个用于测试的 model.ChatModel 的模拟实现
type MockChatModel struct {
	mu sync.Mutex

	// 固定响应
	ExpectedResponse string
	ExpectedError    error

	// 顺序响应，非空时优先使用
	SequentialResponses []MockResponse
	responseIndex       int

	calls    int
	received [][]*schema.Message
}

// NewMockChatModel 创建一个返回固定响应的 MockChatModel
func NewMockChatModel(expectedResponse string, expectedError error) *MockChatModel {
	return &MockChatModel{ExpectedResponse: expectedResponse, ExpectedError: expectedError}
}

// NewMockChatModelSequential 创建一个按顺序返回不同响应的 MockChatModel
func NewMockChatModelSequential(responses ...MockResponse) *MockChatModel {
	return &MockChatModel{SequentialResponses: responses}
}

// Generate 模拟 LLM 的 Generate 方法
func (m *MockChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	received := make([]*schema.Message, len(input))
	copy(received, input)
	m.received = append(m.received, received)

	if len(m.SequentialResponses) > 0 {
		if m.responseIndex >= len(m.SequentialResponses) {
			return nil, ErrMockExhausted
		}
		resp := m.SequentialResponses[m.responseIndex]
		m.responseIndex++
		if resp.Error != nil {
			return nil, resp.Error
		}
		return schema.AssistantMessage(resp.Content, nil), nil
	}

	if m.ExpectedError != nil {
		return nil, m.ExpectedError
	}
	return schema.AssistantMessage(m.ExpectedResponse, nil), nil
}

// Stream 模拟 LLM 的 Stream 方法
func (m *MockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// BindTools 模拟绑定工具的方法
func (m *MockChatModel) BindTools(_ []*schema.ToolInfo) error {
	return nil
}

// Calls 返回 Generate 被调用的次数
func (m *MockChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastMessages 返回最近一次调用收到的消息
func (m *MockChatModel) LastMessages() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.received) == 0 {
		return nil
	}
	return m.received[len(m.received)-1]
}

var _ model.ChatModel = (*MockChatModel)(nil)
