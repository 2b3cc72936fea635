package agent

import (
	"context"

	"github.com/BaSui01/companion/agent/output"
	"github.com/BaSui01/companion/history"
	"github.com/BaSui01/companion/types"
)

// Interrupt markers written into memory when a turn is cut short.
const (
	InterruptMarker = "[Interrupted by user]"
	// InterruptPromptSuffix 在 interrupt_method 为 user 时追加到系统提示词
	InterruptPromptSuffix = "\n\nIf you received `[interrupted by user]` signal, you were interrupted."
)

// Interrupt methods.
const (
	InterruptMethodUser   = "user"
	InterruptMethodSystem = "system"
)

// Result 是 Chat 序列中的一个元素，Output 与 Err 二者择一
type Result struct {
	Output output.Output
	Err    error
}

// Agent 是对话代理的统一接口。
//
// Chat 返回的通道是有限且不可重放的序列，在完成、出错或 ctx 取消后关闭；
// 生成中途失败时只会再产出一个 Err 元素。同一实例上不允许并发调用 Chat。
type Agent interface {
	Chat(ctx context.Context, input BatchInput) <-chan Result
	// HandleInterrupt reconciles memory after a cut-short turn. Repeated calls
	// before the next Chat are no-ops.
	HandleInterrupt(heardResponse string)
	// SetMemoryFromHistory replaces memory with the system prompt plus the
	// stored history. Load failures fall back to the system entry only. It
	// waits for an in-flight Chat to finish before swapping.
	SetMemoryFromHistory(ctx context.Context, confUID, historyUID string)
}

// MemoryWriter 由支持外部写入记忆的 Agent 实现（群聊增量同步使用）
type MemoryWriter interface {
	AddMessage(msg types.Message)
}

// HistoryReader 读取一段历史记录
type HistoryReader interface {
	Read(ctx context.Context, confUID, historyUID string) ([]history.Message, error)
}

// errorResult returns a closed channel carrying only err.
func errorResult(err error) <-chan Result {
	ch := make(chan Result, 1)
	ch <- Result{Err: err}
	close(ch)
	return ch
}

func sendResult(ctx context.Context, out chan<- Result, r Result) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
