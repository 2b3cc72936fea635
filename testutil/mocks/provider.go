// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定分块、启动错误、流中错误注入，以及用于打断测试的闸门。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/companion/llm"
	"github.com/BaSui01/companion/types"
)

// --- MockProvider 结构 ---

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	name   string
	chunks []string

	// 错误注入
	startErr  error
	streamErr *types.Error
	failAfter int
	holdAfter int
	hold      <-chan struct{}

	// 调用记录
	calls []MockProviderCall
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Messages []types.Message
	System   string
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:      "mock",
		chunks:    []string{"Mock response"},
		failAfter: -1,
		holdAfter: -1,
	}
}

// WithName 设置 Provider 名称
func (m *MockProvider) WithName(name string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithResponse 设置单块响应
func (m *MockProvider) WithResponse(response string) *MockProvider {
	return m.WithStreamChunks(response)
}

// WithStreamChunks 设置流式响应块
func (m *MockProvider) WithStreamChunks(chunks ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = chunks
	return m
}

// WithError 让 ChatCompletion 直接返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
	return m
}

// WithStreamError 在发送 n 个块后以 err 结束流
func (m *MockProvider) WithStreamError(n int, err *types.Error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.streamErr = err
	return m
}

// WithHold 在发送 n 个块后阻塞，直到 gate 关闭或 ctx 取消
func (m *MockProvider) WithHold(n int, gate <-chan struct{}) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdAfter = n
	m.hold = gate
	return m
}

// --- llm.Provider 接口实现 ---

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

// ChatCompletion 按配置发送流式块
func (m *MockProvider) ChatCompletion(ctx context.Context, messages []types.Message, system string) (<-chan llm.StreamChunk, error) {
	m.mu.Lock()
	snapshot := make([]types.Message, len(messages))
	copy(snapshot, messages)
	m.calls = append(m.calls, MockProviderCall{Messages: snapshot, System: system})

	if m.startErr != nil {
		err := m.startErr
		m.mu.Unlock()
		return nil, err
	}
	chunks := append([]string(nil), m.chunks...)
	name, failAfter, streamErr := m.name, m.failAfter, m.streamErr
	holdAfter, hold := m.holdAfter, m.hold
	m.mu.Unlock()

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		for i := 0; ; i++ {
			if i == holdAfter && hold != nil {
				select {
				case <-hold:
				case <-ctx.Done():
					return
				}
			}
			if i == failAfter && streamErr != nil {
				select {
				case ch <- llm.StreamChunk{Provider: name, Err: streamErr}:
				case <-ctx.Done():
				}
				return
			}
			if i >= len(chunks) {
				return
			}
			select {
			case ch <- llm.StreamChunk{Provider: name, Model: "mock-model", Delta: chunks[i]}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// --- 调用记录查询 ---

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// LastCall 返回最后一次调用
func (m *MockProvider) LastCall() (MockProviderCall, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.calls) == 0 {
		return MockProviderCall{}, false
	}
	return m.calls[len(m.calls)-1], true
}

var _ llm.Provider = (*MockProvider)(nil)
