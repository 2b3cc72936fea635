package pipeline

import (
	"context"

	"github.com/BaSui01/companion/agent/output"
	"github.com/BaSui01/companion/config"
)

// Config 汇总四个阶段的配置
type Config struct {
	Divider DividerConfig
	Display DisplayConfig
	TTS     config.TTSPreprocessorConfig
}

// Run chains segmentation, action extraction, display shaping and TTS
// filtering. Each stage yields as soon as its input allows. The returned
// channel closes when tokens closes or ctx is done.
func Run(ctx context.Context, tokens <-chan string, cfg Config) <-chan output.SentenceOutput {
	sentences := SentenceDivider(ctx, tokens, cfg.Divider)
	units := ActionExtractor(ctx, sentences, cfg.Display.Keywords)
	shaped := DisplayProcessor(ctx, units, cfg.Display)
	return TTSFilter(ctx, shaped, cfg.TTS)
}
