package agent

import (
	"sync"

	"github.com/BaSui01/companion/types"
)

// Memory 是按插入顺序排列的对话记忆。
// 只允许追加，唯一的原地修改是打断时改写最后一条 assistant 消息。
type Memory struct {
	mu       sync.RWMutex
	messages []types.Message
}

// NewMemory creates a memory seeded with msgs.
func NewMemory(msgs ...types.Message) *Memory {
	m := &Memory{}
	m.messages = append(m.messages, msgs...)
	return m
}

// Add appends msg.
func (m *Memory) Add(msg types.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// Messages returns a copy of all entries.
func (m *Memory) Messages() []types.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Last returns the newest entry.
func (m *Memory) Last() (types.Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.messages) == 0 {
		return types.Message{}, false
	}
	return m.messages[len(m.messages)-1], true
}

// ReplaceLastContent rewrites the content of the newest entry. It reports
// false when memory is empty.
func (m *Memory) ReplaceLastContent(content string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return false
	}
	m.messages[len(m.messages)-1].Content = content
	return true
}

// Reset replaces all entries with msgs.
func (m *Memory) Reset(msgs ...types.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages[:0:0], msgs...)
}
