package pipeline

import (
	"context"
	"strings"

	"github.com/BaSui01/companion/agent/output"
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// DisplayConfig 控制展示文本的说话人信息
type DisplayConfig struct {
	Name     string
	Avatar   string
	Keywords []string
}

// Shaped 是带展示文本的中间单元
type Shaped struct {
	Text    string
	Display output.DisplayText
	Actions output.Actions
}

// DisplayProcessor strips <think> blocks, which may span several units, and
// the recognised keyword tags, then attaches the speaker name and avatar.
// A unit left empty by stripping is dropped unless it carries actions; it is
// then emitted with empty text so the expression still reaches the client.
func DisplayProcessor(ctx context.Context, in <-chan Unit, cfg DisplayConfig) <-chan Shaped {
	out := make(chan Shaped)
	go func() {
		defer close(out)
		inThink := false
		for unit := range recv(ctx, in) {
			var spoken string
			spoken, inThink = stripThink(unit.Text, inThink)
			visible := strings.TrimSpace(collapseSpaces(stripKeywordTags(spoken, cfg.Keywords)))
			// 思考块内的标签不算动作
			if visible == "" && (unit.Actions.IsEmpty() || strings.TrimSpace(spoken) == "") {
				continue
			}
			shaped := Shaped{
				Text:    visible,
				Display: output.NewDisplayText(visible, cfg.Name, cfg.Avatar),
				Actions: unit.Actions,
			}
			if !send(ctx, out, shaped) {
				return
			}
		}
	}()
	return out
}

// stripThink removes text inside think tags and returns the state to carry
// into the next unit.
func stripThink(text string, inThink bool) (string, bool) {
	var b strings.Builder
	for text != "" {
		if inThink {
			idx := strings.Index(text, thinkClose)
			if idx < 0 {
				return b.String(), true
			}
			text = text[idx+len(thinkClose):]
			inThink = false
			continue
		}
		idx := strings.Index(text, thinkOpen)
		if idx < 0 {
			b.WriteString(text)
			break
		}
		b.WriteString(text[:idx])
		text = text[idx+len(thinkOpen):]
		inThink = true
	}
	return b.String(), inThink
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
