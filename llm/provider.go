package llm

import (
	"context"
	"strings"

	"github.com/BaSui01/companion/types"
)

// StreamChunk 是 ChatCompletion 返回的单个增量。
// Err 非空时表示流在此处失败，之后不会再有 chunk。
type StreamChunk struct {
	Provider     string       `json:"provider,omitempty"`
	Model        string       `json:"model,omitempty"`
	Delta        string       `json:"delta"`
	FinishReason string       `json:"finish_reason,omitempty"`
	Err          *types.Error `json:"error,omitempty"`
}

// Provider 定义了无状态的语言模型接口。
// 实现不得跨调用保存任何对话记忆，全部上下文都由 messages 传入。
// system 非空时作为系统提示词，由各适配器按自身协议放置。
type Provider interface {
	// ChatCompletion 发起流式请求，返回增量 token 通道。
	// 通道在流结束、出错或 ctx 取消后关闭。
	ChatCompletion(ctx context.Context, messages []types.Message, system string) (<-chan StreamChunk, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}

// Closer 由需要在进程退出时释放远端资源的 Provider 实现（如 ollama 卸载模型）。
type Closer interface {
	Close(ctx context.Context) error
}

// Collect 读完整个流并拼接文本。遇到错误 chunk 时返回已收到的部分和该错误。
func Collect(ctx context.Context, ch <-chan StreamChunk) (string, error) {
	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				return sb.String(), nil
			}
			if chunk.Err != nil {
				return sb.String(), chunk.Err
			}
			sb.WriteString(chunk.Delta)
		}
	}
}

// ErrorStream 返回只包含一个错误 chunk 的已关闭通道。
func ErrorStream(err *types.Error) <-chan StreamChunk {
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Err: err}
	close(ch)
	return ch
}

// WithSystem prepends system to messages when it is not empty.
func WithSystem(messages []types.Message, system string) []types.Message {
	if system == "" {
		return messages
	}
	out := make([]types.Message, 0, len(messages)+1)
	out = append(out, types.Message{Role: types.RoleSystem, Content: system})
	return append(out, messages...)
}
