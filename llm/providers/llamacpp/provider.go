// Package llamacpp holds the local llama.cpp provider kind. In-process
// inference is not available in this build, so every call fails with a
// NOT_IMPLEMENTED error instead of returning empty output.
package llamacpp

import (
	"context"

	"github.com/BaSui01/companion/llm"
	"github.com/BaSui01/companion/types"
	"go.uber.org/zap"
)

// Provider is the llama_cpp_llm stub.
type Provider struct {
	modelPath string
	logger    *zap.Logger
}

// New creates the stub for the given model file.
func New(modelPath string, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{modelPath: modelPath, logger: logger}
}

func (p *Provider) Name() string { return "llama_cpp_llm" }

// ChatCompletion always fails.
func (p *Provider) ChatCompletion(ctx context.Context, messages []types.Message, system string) (<-chan llm.StreamChunk, error) {
	p.logger.Warn("llama.cpp inference requested but not available", zap.String("model_path", p.modelPath))
	return nil, types.NewNotImplementedError("llama_cpp_llm").WithProvider(p.Name())
}
