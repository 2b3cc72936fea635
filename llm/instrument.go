package llm

import (
	"context"
	"time"

	"github.com/BaSui01/companion/types"
)

// 流式请求结束状态
const (
	StreamSuccess   = "success"
	StreamError     = "error"
	StreamCancelled = "cancelled"
)

// Observer 接收每次流式请求的结果，由指标收集器实现。
type Observer interface {
	ObserveLLM(provider, status string, duration time.Duration)
}

// Instrument 包装 Provider：在流结束时上报状态与耗时。
// obs 为 nil 时原样返回 p。
func Instrument(p Provider, obs Observer) Provider {
	if p == nil || obs == nil {
		return p
	}
	return &instrumented{Provider: p, obs: obs}
}

type instrumented struct {
	Provider
	obs Observer
}

func (i *instrumented) ChatCompletion(ctx context.Context, messages []types.Message, system string) (<-chan StreamChunk, error) {
	start := time.Now()
	in, err := i.Provider.ChatCompletion(ctx, messages, system)
	if err != nil {
		i.obs.ObserveLLM(i.Name(), StreamError, time.Since(start))
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		status := StreamSuccess
		defer func() { i.obs.ObserveLLM(i.Name(), status, time.Since(start)) }()

		for chunk := range in {
			if chunk.Err != nil {
				status = StreamError
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				status = StreamCancelled
				// 排空上游，让适配器 goroutine 退出
				for range in {
				}
				return
			}
		}
		if status == StreamSuccess && ctx.Err() != nil {
			status = StreamCancelled
		}
	}()
	return out, nil
}

// Close 转发给被包装的 Provider
func (i *instrumented) Close(ctx context.Context) error {
	if c, ok := i.Provider.(Closer); ok {
		return c.Close(ctx)
	}
	return nil
}
