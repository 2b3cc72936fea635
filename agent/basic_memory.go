package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/companion/agent/output"
	"github.com/BaSui01/companion/agent/pipeline"
	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/history"
	"github.com/BaSui01/companion/llm"
	"github.com/BaSui01/companion/llm/tokenizer"
	"github.com/BaSui01/companion/types"
)

// BasicMemoryConfig basic_memory_agent 的运行参数
type BasicMemoryConfig struct {
	CharacterName       string
	Avatar              string
	PersonaPrompt       string
	FasterFirstResponse bool
	SegmentMethod       string
	InterruptMethod     string
	UsePipeline         bool
	MaxContextTokens    int
	EmotionKeywords     []string
	TTSPreprocessor     config.TTSPreprocessorConfig
}

// Option 配置 BasicMemoryAgent 的可选依赖
type Option func(*BasicMemoryAgent)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *BasicMemoryAgent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithHistory sets the store used by SetMemoryFromHistory.
func WithHistory(r HistoryReader) Option {
	return func(a *BasicMemoryAgent) { a.history = r }
}

// WithTokenizer sets the tokenizer used to trim the context window.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(a *BasicMemoryAgent) { a.tokenizer = t }
}

// BasicMemoryAgent 持有对话记忆并通过无状态的 llm.Provider 生成回复。
type BasicMemoryAgent struct {
	cfg          BasicMemoryConfig
	provider     llm.Provider
	systemPrompt string
	memory       *Memory
	history      HistoryReader
	tokenizer    tokenizer.Tokenizer
	logger       *zap.Logger

	// execMu 保证同一实例上至多一个进行中的 Chat
	execMu sync.Mutex

	stateMu          sync.Mutex
	interruptHandled bool
}

// NewBasicMemoryAgent creates the agent. provider must not be nil.
func NewBasicMemoryAgent(provider llm.Provider, cfg BasicMemoryConfig, opts ...Option) (*BasicMemoryAgent, error) {
	if provider == nil {
		return nil, types.NewError(types.ErrProviderNotSet, "llm provider not set")
	}
	if cfg.InterruptMethod == "" {
		cfg.InterruptMethod = InterruptMethodUser
	}
	if cfg.SegmentMethod == "" {
		cfg.SegmentMethod = pipeline.SegmentPysbd
	}

	a := &BasicMemoryAgent{
		cfg:      cfg,
		provider: provider,
		memory:   NewMemory(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("component", "basic_memory_agent"), zap.String("provider", provider.Name()))
	a.systemPrompt = buildSystemPrompt(cfg.PersonaPrompt, cfg.InterruptMethod)
	return a, nil
}

func buildSystemPrompt(persona, interruptMethod string) string {
	if interruptMethod == InterruptMethodUser {
		return persona + InterruptPromptSuffix
	}
	return persona
}

// SystemPrompt returns the prompt sent with every request.
func (a *BasicMemoryAgent) SystemPrompt() string { return a.systemPrompt }

// Memory returns a snapshot of the memory entries.
func (a *BasicMemoryAgent) Memory() []types.Message { return a.memory.Messages() }

// AddMessage appends msg to memory.
func (a *BasicMemoryAgent) AddMessage(msg types.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	a.memory.Add(msg)
}

// Chat implements Agent.
func (a *BasicMemoryAgent) Chat(ctx context.Context, input BatchInput) <-chan Result {
	if !a.execMu.TryLock() {
		return errorResult(types.NewError(types.ErrAgentBusy, "agent is busy"))
	}

	a.stateMu.Lock()
	a.interruptHandled = false
	a.stateMu.Unlock()

	user := types.NewUserMessage(input.ToTextPrompt())
	user.Name = input.FromName()
	a.memory.Add(user)
	messages := a.contextWindow()

	out := make(chan Result)
	go func() {
		defer close(out)
		defer a.execMu.Unlock()

		start := time.Now()
		stream, err := a.provider.ChatCompletion(ctx, messages, a.systemPrompt)
		if err != nil {
			sendResult(ctx, out, Result{Err: err})
			return
		}

		var full string
		if a.cfg.UsePipeline {
			full, err = a.streamThroughPipeline(ctx, stream, out)
		} else {
			full, err = a.streamBuffered(ctx, stream, out)
		}
		switch {
		case ctx.Err() != nil:
			a.logger.Debug("chat cancelled", zap.Int("partial_len", len(full)))
			return
		case err != nil:
			a.logger.Warn("chat failed", zap.Error(err))
			sendResult(ctx, out, Result{Err: err})
			return
		}

		reply := types.NewAssistantMessage(full)
		reply.Name = a.cfg.CharacterName
		reply.Avatar = a.cfg.Avatar
		a.memory.Add(reply)
		a.logger.Debug("chat completed", zap.Duration("elapsed", time.Since(start)), zap.Int("memory_len", a.memory.Len()))
	}()
	return out
}

// streamBuffered collects the whole response and emits it as one unit.
func (a *BasicMemoryAgent) streamBuffered(ctx context.Context, stream <-chan llm.StreamChunk, out chan<- Result) (string, error) {
	full, err := llm.Collect(ctx, stream)
	if err != nil {
		return full, err
	}
	unit := output.Sentence(output.SentenceOutput{
		DisplayText: output.NewDisplayText(full, a.cfg.CharacterName, a.cfg.Avatar),
		TTSText:     full,
	})
	sendResult(ctx, out, Result{Output: unit})
	return full, nil
}

// streamThroughPipeline feeds tokens into the transform pipeline and forwards
// each sentence unit as soon as it is ready.
func (a *BasicMemoryAgent) streamThroughPipeline(ctx context.Context, stream <-chan llm.StreamChunk, out chan<- Result) (string, error) {
	// 上游出错时先取消 pipeCtx 再关闭 tokens，分句器据此丢弃未完成的句子
	pipeCtx, abort := context.WithCancel(ctx)
	defer abort()

	tokens := make(chan string)
	readerDone := make(chan struct{})
	var (
		full      strings.Builder
		streamErr error
	)
	go func() {
		defer close(readerDone)
		defer close(tokens)
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-stream:
				if !ok {
					return
				}
				if chunk.Err != nil {
					streamErr = chunk.Err
					abort()
					return
				}
				full.WriteString(chunk.Delta)
				select {
				case tokens <- chunk.Delta:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	units := pipeline.Run(pipeCtx, tokens, pipeline.Config{
		Divider: pipeline.DividerConfig{
			SegmentMethod:       a.cfg.SegmentMethod,
			FasterFirstResponse: a.cfg.FasterFirstResponse,
		},
		Display: pipeline.DisplayConfig{
			Name:     a.cfg.CharacterName,
			Avatar:   a.cfg.Avatar,
			Keywords: a.cfg.EmotionKeywords,
		},
		TTS: a.cfg.TTSPreprocessor,
	})
	for unit := range units {
		if !sendResult(ctx, out, Result{Output: output.Sentence(unit)}) {
			break
		}
	}
	<-readerDone
	return full.String(), streamErr
}

// contextWindow returns the memory as sent to the model. The stored system
// entry is dropped since the prompt travels separately.
func (a *BasicMemoryAgent) contextWindow() []types.Message {
	messages := a.memory.Messages()
	if len(messages) > 0 && messages[0].Role == types.RoleSystem && messages[0].Content == a.systemPrompt {
		messages = messages[1:]
	}
	if a.cfg.MaxContextTokens <= 0 || a.tokenizer == nil {
		return messages
	}
	budget := a.cfg.MaxContextTokens
	if n, err := a.tokenizer.CountTokens(a.systemPrompt); err == nil {
		budget -= n
	}
	trimmed := tokenizer.TrimToBudget(a.tokenizer, messages, budget)
	if len(trimmed) < len(messages) {
		a.logger.Debug("context trimmed", zap.Int("from", len(messages)), zap.Int("to", len(trimmed)))
	}
	return trimmed
}

// HandleInterrupt implements Agent.
func (a *BasicMemoryAgent) HandleInterrupt(heardResponse string) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	if a.interruptHandled {
		return
	}
	a.interruptHandled = true

	if last, ok := a.memory.Last(); ok && last.Role == types.RoleAssistant {
		a.memory.ReplaceLastContent(heardResponse + "...")
	} else if heardResponse != "" {
		msg := types.NewAssistantMessage(heardResponse + "...")
		msg.Name = a.cfg.CharacterName
		msg.Avatar = a.cfg.Avatar
		a.memory.Add(msg)
	}

	role := types.RoleUser
	if a.cfg.InterruptMethod == InterruptMethodSystem {
		role = types.RoleSystem
	}
	a.memory.Add(types.NewMessage(role, InterruptMarker))
	a.logger.Info("interrupt handled", zap.Int("heard_len", len(heardResponse)))
}

// SetMemoryFromHistory implements Agent. It waits for an in-flight Chat to
// finish so the turn never writes into the replaced memory.
func (a *BasicMemoryAgent) SetMemoryFromHistory(ctx context.Context, confUID, historyUID string) {
	a.execMu.Lock()
	defer a.execMu.Unlock()

	system := types.NewSystemMessage(a.systemPrompt)
	if a.history == nil {
		a.memory.Reset(system)
		return
	}

	entries, err := a.history.Read(ctx, confUID, historyUID)
	if err != nil {
		a.logger.Warn("load history failed, memory reset to system prompt",
			zap.String("conf_uid", confUID),
			zap.String("history_uid", historyUID),
			zap.Error(err))
		a.memory.Reset(system)
		return
	}

	msgs := make([]types.Message, 0, len(entries)+1)
	msgs = append(msgs, system)
	for _, e := range entries {
		if e.Role == history.RoleMetadata {
			continue
		}
		role := types.RoleAssistant
		if e.Role == history.RoleHuman {
			role = types.RoleUser
		}
		msgs = append(msgs, types.Message{
			Role:      role,
			Content:   e.Content,
			Name:      e.Name,
			Avatar:    e.Avatar,
			Timestamp: e.Timestamp,
		})
	}
	a.memory.Reset(msgs...)
	a.logger.Debug("memory loaded from history", zap.String("history_uid", historyUID), zap.Int("entries", len(msgs)-1))
}

var (
	_ Agent        = (*BasicMemoryAgent)(nil)
	_ MemoryWriter = (*BasicMemoryAgent)(nil)
)
