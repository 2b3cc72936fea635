package pipeline

import (
	"context"
	"strings"
	"unicode"

	"github.com/BaSui01/companion/agent/output"
	"github.com/BaSui01/companion/config"
)

// TTSFilter derives the speakable text of each unit. The display text is
// left as is. A unit whose speakable text is empty is still emitted so the
// frontend can show it without audio.
func TTSFilter(ctx context.Context, in <-chan Shaped, cfg config.TTSPreprocessorConfig) <-chan output.SentenceOutput {
	out := make(chan output.SentenceOutput)
	go func() {
		defer close(out)
		for unit := range recv(ctx, in) {
			s := output.SentenceOutput{
				DisplayText: unit.Display,
				TTSText:     FilterForTTS(unit.Text, cfg),
				Actions:     unit.Actions,
			}
			if !send(ctx, out, s) {
				return
			}
		}
	}()
	return out
}

// FilterForTTS applies the configured removals in a fixed order: asterisk
// spans, bracket spans, then special characters.
func FilterForTTS(text string, cfg config.TTSPreprocessorConfig) string {
	if cfg.IgnoreAsterisks {
		text = removeAsterisks(text)
	}
	if cfg.IgnoreBrackets {
		text = removeNested(text, '[', ']')
	}
	if cfg.IgnoreParentheses {
		text = removeNested(text, '(', ')')
		text = removeNested(text, '（', '）')
	}
	if cfg.IgnoreAngleBrackets {
		text = removeNested(text, '<', '>')
	}
	if cfg.RemoveSpecialChar {
		text = removeSpecial(text)
	}
	return collapseSpaces(text)
}

func removeAsterisks(text string) string {
	var b strings.Builder
	inside := false
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '*' {
			if !inside {
				b.WriteRune(runes[i])
			}
			continue
		}
		for i+1 < len(runes) && runes[i+1] == '*' {
			i++
		}
		inside = !inside
	}
	if inside {
		// 未闭合的星号：保留其后的文本
		idx := strings.LastIndex(text, "*")
		b.WriteString(strings.TrimLeft(text[idx:], "*"))
	}
	return b.String()
}

func removeNested(text string, open, close rune) string {
	var b strings.Builder
	depth := 0
	for _, r := range text {
		switch {
		case r == open:
			depth++
		case r == close:
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func removeSpecial(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			return r
		case strings.ContainsRune(`.,!?;:'`, r), strings.ContainsRune("，。！？；：、", r):
			return r
		}
		return -1
	}, text)
}
