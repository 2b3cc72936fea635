package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/BaSui01/companion/agent"
	"github.com/BaSui01/companion/config"
)

// Sender 把出站消息写给客户端，实现需保证并发安全
type Sender interface {
	Send(ctx context.Context, msg any) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg any) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, msg any) error { return f(ctx, msg) }

// Session 是一个连接的服务端状态。
// ID 与 Character 在创建后不变；其余可变字段由 mu 保护。
type Session struct {
	ID        string
	Character config.CharacterConfig
	CreatedAt time.Time

	sender  Sender
	limiter *rate.Limiter

	mu         sync.Mutex
	agent      agent.Agent
	historyUID string
	audio      []float32
}

// Options 创建 Session 的可选参数
type Options struct {
	Agent  agent.Agent
	Sender Sender
	// MessageRPS 为 0 时不限制入站消息速率
	MessageRPS   float64
	MessageBurst int
}

// New creates a session.
func New(id string, char config.CharacterConfig, opts Options) *Session {
	s := &Session{
		ID:        id,
		Character: char,
		CreatedAt: time.Now(),
		sender:    opts.Sender,
		agent:     opts.Agent,
	}
	if opts.MessageRPS > 0 {
		burst := opts.MessageBurst
		if burst <= 0 {
			burst = int(opts.MessageRPS) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.MessageRPS), burst)
	}
	return s
}

// ConfUID returns the active configuration id.
func (s *Session) ConfUID() string { return s.Character.ConfUID }

// Send writes msg to the client. A session without a sender drops it.
func (s *Session) Send(ctx context.Context, msg any) error {
	if s.sender == nil {
		return nil
	}
	return s.sender.Send(ctx, msg)
}

// AllowMessage reports whether an inbound message fits the rate limit.
func (s *Session) AllowMessage() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// Agent returns the session's agent.
func (s *Session) Agent() agent.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent
}

// HistoryUID returns the active history id, empty when none.
func (s *Session) HistoryUID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyUID
}

// SetHistoryUID sets the active history id.
func (s *Session) SetHistoryUID(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyUID = uid
}

// AppendAudio appends samples to the input accumulator.
func (s *Session) AppendAudio(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, samples...)
}

// TakeAudio returns the accumulated samples and empties the accumulator.
func (s *Session) TakeAudio() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.audio
	s.audio = nil
	return out
}

// ClearAudio empties the accumulator.
func (s *Session) ClearAudio() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = nil
}

// AudioLen returns the number of buffered samples.
func (s *Session) AudioLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audio)
}
