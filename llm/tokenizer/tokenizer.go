package tokenizer

import (
	"strings"

	"github.com/BaSui01/companion/types"
)

// Tokenizer 是统一的 token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数,
	// 包括每条消息的开销（角色标记、分隔符等）。
	CountMessages(messages []types.Message) (int, error)

	// Name 返回分词器的名称.
	Name() string
}

// ForModel 返回适合该模型的分词器.
// OpenAI 家族模型使用 tiktoken, 其余模型使用估算器.
func ForModel(model string) Tokenizer {
	m := strings.ToLower(model)
	if strings.HasPrefix(m, "gpt-") || strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") {
		return NewTiktokenTokenizer(model)
	}
	return NewEstimatorTokenizer(model)
}

// fallback 在 tiktoken 不可用时退回到估算器.
type fallback struct {
	primary   Tokenizer
	secondary Tokenizer
}

// WithFallback wraps primary so that any counting error falls back to secondary.
func WithFallback(primary, secondary Tokenizer) Tokenizer {
	return &fallback{primary: primary, secondary: secondary}
}

func (f *fallback) CountTokens(text string) (int, error) {
	if n, err := f.primary.CountTokens(text); err == nil {
		return n, nil
	}
	return f.secondary.CountTokens(text)
}

func (f *fallback) CountMessages(messages []types.Message) (int, error) {
	if n, err := f.primary.CountMessages(messages); err == nil {
		return n, nil
	}
	return f.secondary.CountMessages(messages)
}

func (f *fallback) Name() string { return f.primary.Name() + "|" + f.secondary.Name() }

// TrimToBudget 保留开头的 system 消息与最近的若干条消息, 使总 token 数不超过 budget.
// budget <= 0 时原样返回. 最后一条消息总是保留.
func TrimToBudget(t Tokenizer, messages []types.Message, budget int) []types.Message {
	if budget <= 0 || len(messages) == 0 {
		return messages
	}
	total, err := t.CountMessages(messages)
	if err != nil || total <= budget {
		return messages
	}

	var head []types.Message
	body := messages
	if messages[0].Role == types.RoleSystem {
		head = messages[:1]
		body = messages[1:]
	}

	used, _ := t.CountMessages(head)
	kept := 0
	for i := len(body) - 1; i >= 0; i-- {
		n, err := t.CountMessages(body[i : i+1])
		if err != nil {
			break
		}
		if kept > 0 && used+n > budget {
			break
		}
		used += n
		kept++
	}

	out := make([]types.Message, 0, len(head)+kept)
	out = append(out, head...)
	return append(out, body[len(body)-kept:]...)
}
