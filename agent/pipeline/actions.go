package pipeline

import (
	"context"
	"regexp"
	"strings"

	"github.com/BaSui01/companion/agent/output"
)

// Unit 是流水线中间阶段传递的句子
type Unit struct {
	Text    string
	Actions output.Actions
}

var tagPattern = regexp.MustCompile(`\[([^\[\]]+)\]`)

// ActionExtractor collects [keyword] tags that match a configured emotion
// keyword (case-insensitive) into Actions.Expressions, in order of
// appearance. The sentence text itself is passed through unchanged.
func ActionExtractor(ctx context.Context, in <-chan string, keywords []string) <-chan Unit {
	known := make(map[string]string, len(keywords))
	for _, k := range keywords {
		known[strings.ToLower(strings.TrimSpace(k))] = k
	}
	out := make(chan Unit)
	go func() {
		defer close(out)
		for sentence := range recv(ctx, in) {
			unit := Unit{Text: sentence}
			for _, m := range tagPattern.FindAllStringSubmatch(sentence, -1) {
				if kw, ok := known[strings.ToLower(strings.TrimSpace(m[1]))]; ok {
					unit.Actions.Expressions = append(unit.Actions.Expressions, kw)
				}
			}
			if !send(ctx, out, unit) {
				return
			}
		}
	}()
	return out
}

// stripKeywordTags removes the tags ActionExtractor recognised.
func stripKeywordTags(text string, keywords []string) string {
	if len(keywords) == 0 {
		return text
	}
	known := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		known[strings.ToLower(strings.TrimSpace(k))] = struct{}{}
	}
	return tagPattern.ReplaceAllStringFunc(text, func(tag string) string {
		inner := strings.ToLower(strings.TrimSpace(tag[1 : len(tag)-1]))
		if _, ok := known[inner]; ok {
			return ""
		}
		return tag
	})
}

// recv adapts a channel so ranging over it stops when ctx is done.
func recv[T any](ctx context.Context, in <-chan T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					return
				}
				if !send(ctx, out, v) {
					return
				}
			}
		}
	}()
	return out
}
