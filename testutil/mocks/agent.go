// =============================================================================
// 🤖 MockAgent - 对话代理模拟实现
// =============================================================================
// 按脚本输出句子单元，记录打断、历史加载与外部写入的记忆
//
// 使用方法:
//
//	a := mocks.NewMockAgent().WithSentences("Hi.", "How are you?")
//	for res := range a.Chat(ctx, agent.TextInput("hello", "Human")) { ... }
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/companion/agent"
	"github.com/BaSui01/companion/agent/output"
	"github.com/BaSui01/companion/types"
)

// MockAgent 是 agent.Agent 的模拟实现
type MockAgent struct {
	mu sync.Mutex

	name    string
	outputs []output.Output
	err     error

	holdAfter int
	hold      <-chan struct{}

	// 调用记录
	inputs       []agent.BatchInput
	interrupts   []string
	historyLoads []string
	added        []types.Message
	running      bool
	concurrent   bool
}

// NewMockAgent 创建 MockAgent
func NewMockAgent() *MockAgent {
	return &MockAgent{name: "AI", holdAfter: -1}
}

// WithName 设置输出单元的说话人
func (m *MockAgent) WithName(name string) *MockAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithSentences 每个文本产出一个句子单元
func (m *MockAgent) WithSentences(texts ...string) *MockAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs = m.outputs[:0]
	for _, t := range texts {
		m.outputs = append(m.outputs, output.Sentence(output.SentenceOutput{
			DisplayText: output.NewDisplayText(t, m.name, ""),
			TTSText:     t,
		}))
	}
	return m
}

// WithOutputs 设置原始输出单元
func (m *MockAgent) WithOutputs(outs ...output.Output) *MockAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs = outs
	return m
}

// WithError 在全部输出之后产出一个错误
func (m *MockAgent) WithError(err error) *MockAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithHold 在输出 n 个单元后阻塞，直到 gate 关闭或 ctx 取消
func (m *MockAgent) WithHold(n int, gate <-chan struct{}) *MockAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdAfter = n
	m.hold = gate
	return m
}

// Chat 实现 agent.Agent
func (m *MockAgent) Chat(ctx context.Context, input agent.BatchInput) <-chan agent.Result {
	m.mu.Lock()
	m.inputs = append(m.inputs, input)
	if m.running {
		m.concurrent = true
	}
	m.running = true
	outs := append([]output.Output(nil), m.outputs...)
	err, holdAfter, hold := m.err, m.holdAfter, m.hold
	m.mu.Unlock()

	ch := make(chan agent.Result)
	go func() {
		defer func() {
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			close(ch)
		}()
		for i := 0; ; i++ {
			if i == holdAfter && hold != nil {
				select {
				case <-hold:
				case <-ctx.Done():
					return
				}
			}
			if i >= len(outs) {
				break
			}
			select {
			case ch <- agent.Result{Output: outs[i]}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case ch <- agent.Result{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return ch
}

// HandleInterrupt 记录打断
func (m *MockAgent) HandleInterrupt(heardResponse string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interrupts = append(m.interrupts, heardResponse)
}

// SetMemoryFromHistory 记录历史加载
func (m *MockAgent) SetMemoryFromHistory(ctx context.Context, confUID, historyUID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyLoads = append(m.historyLoads, confUID+"/"+historyUID)
}

// AddMessage 实现 agent.MemoryWriter
func (m *MockAgent) AddMessage(msg types.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added = append(m.added, msg)
}

// --- 调用记录查询 ---

// Inputs 返回每次 Chat 的输入
func (m *MockAgent) Inputs() []agent.BatchInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]agent.BatchInput(nil), m.inputs...)
}

// Interrupts 返回每次 HandleInterrupt 的参数
func (m *MockAgent) Interrupts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.interrupts...)
}

// HistoryLoads 返回 "conf/history" 形式的加载记录
func (m *MockAgent) HistoryLoads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.historyLoads...)
}

// Added 返回通过 AddMessage 写入的消息
func (m *MockAgent) Added() []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Message(nil), m.added...)
}

// SawConcurrentChat 报告是否出现过并发的 Chat 调用
func (m *MockAgent) SawConcurrentChat() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.concurrent
}

var (
	_ agent.Agent        = (*MockAgent)(nil)
	_ agent.MemoryWriter = (*MockAgent)(nil)
)
