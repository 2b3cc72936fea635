package pipeline

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segment methods accepted by SentenceDivider.
const (
	SegmentPysbd = "pysbd"
	SegmentRegex = "regex"
	SegmentNone  = "none"
)

// 首句快速输出时，逗号切分所需的最少字符数
const minFirstChunkRunes = 10

var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {}, "st": {},
	"vs": {}, "etc": {}, "e.g": {}, "i.e": {}, "inc": {}, "ltd": {}, "no": {},
}

// DividerConfig controls how the token stream is cut into sentence units.
type DividerConfig struct {
	// SegmentMethod is pysbd, regex or none. Unknown values behave like regex.
	SegmentMethod string
	// FasterFirstResponse lets the first unit end at a comma.
	FasterFirstResponse bool
}

// SentenceDivider turns a token stream into a stream of trimmed, non-empty
// sentence units. It never waits for more input than the boundary rule needs,
// and flushes the remainder when the token stream closes.
func SentenceDivider(ctx context.Context, tokens <-chan string, cfg DividerConfig) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		d := &divider{cfg: cfg, first: true}
		for {
			select {
			case <-ctx.Done():
				return
			case tok, ok := <-tokens:
				if !ok {
					if ctx.Err() != nil {
						return
					}
					if rest := strings.TrimSpace(d.buf.String()); rest != "" {
						send(ctx, out, rest)
					}
					return
				}
				d.buf.WriteString(tok)
				for {
					unit, found := d.next()
					if !found {
						break
					}
					if unit == "" {
						continue
					}
					if !send(ctx, out, unit) {
						return
					}
				}
			}
		}
	}()
	return out
}

type divider struct {
	cfg   DividerConfig
	buf   strings.Builder
	first bool
}

// next cuts one unit off the buffer when a complete boundary is present.
func (d *divider) next() (string, bool) {
	text := d.buf.String()
	if d.cfg.SegmentMethod == SegmentNone {
		return "", false
	}
	cut := d.sentenceBoundary(text)
	if cut < 0 && d.first && d.cfg.FasterFirstResponse {
		cut = commaBoundary(text)
	}
	if cut < 0 {
		return "", false
	}
	unit := strings.TrimSpace(text[:cut])
	rest := text[cut:]
	d.buf.Reset()
	d.buf.WriteString(rest)
	if unit != "" {
		d.first = false
	}
	return unit, true
}

// sentenceBoundary returns the byte offset just past a confirmed sentence end,
// or -1. ASCII terminators need a following whitespace to be confirmed; CJK
// terminators are final on their own.
func (d *divider) sentenceBoundary(text string) int {
	for i, r := range text {
		switch r {
		case '。', '！', '？', '…':
			return absorbClosers(text, i+utf8.RuneLen(r))
		case '.', '!', '?':
			end := absorbClosers(text, skipSame(text, i+1, r))
			if end >= len(text) {
				return -1
			}
			next, _ := utf8.DecodeRuneInString(text[end:])
			if !unicode.IsSpace(next) {
				continue
			}
			if r == '.' && d.cfg.SegmentMethod != SegmentRegex && isAbbreviation(text[:i]) {
				continue
			}
			return end
		}
	}
	return -1
}

func commaBoundary(text string) int {
	if utf8.RuneCountInString(text) < minFirstChunkRunes {
		return -1
	}
	for i, r := range text {
		switch r {
		case '，', '、':
			if utf8.RuneCountInString(text[:i]) >= minFirstChunkRunes-1 {
				return i + utf8.RuneLen(r)
			}
		case ',':
			end := i + 1
			if end >= len(text) {
				return -1
			}
			next, _ := utf8.DecodeRuneInString(text[end:])
			if unicode.IsSpace(next) && utf8.RuneCountInString(text[:i]) >= minFirstChunkRunes-1 {
				return end
			}
		}
	}
	return -1
}

func skipSame(text string, i int, r rune) int {
	for i < len(text) {
		next, size := utf8.DecodeRuneInString(text[i:])
		if next != r && !(r != '.' && (next == '!' || next == '?')) {
			break
		}
		i += size
	}
	return i
}

func absorbClosers(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !strings.ContainsRune(`"')]）」』”’`, r) {
			break
		}
		i += size
	}
	return i
}

func isAbbreviation(before string) bool {
	idx := strings.LastIndexFunc(before, unicode.IsSpace)
	word := strings.ToLower(strings.TrimLeft(before[idx+1:], `"'(`))
	if word == "" {
		return false
	}
	if _, ok := abbreviations[word]; ok {
		return true
	}
	// 单个字母加点，例如姓名缩写 "J."
	return utf8.RuneCountInString(word) == 1 && unicode.IsLetter([]rune(word)[0])
}

func send[T any](ctx context.Context, out chan<- T, v T) bool {
	select {
	case out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
