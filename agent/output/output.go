// Package output defines the structured units an agent emits: a sentence unit
// or an audio unit, each carrying display metadata and optional actions.
package output

// Actions 附加在输出单元上的动作，所有字段均可选
type Actions struct {
	Expressions []string `json:"expressions,omitempty"`
	Pictures    []string `json:"pictures,omitempty"`
	Sounds      []string `json:"sounds,omitempty"`
}

// IsEmpty reports whether no action is set.
func (a Actions) IsEmpty() bool {
	return len(a.Expressions) == 0 && len(a.Pictures) == 0 && len(a.Sounds) == 0
}

// DisplayText 是前端展示用的文本与说话人信息
type DisplayText struct {
	Text   string `json:"text"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// DefaultName 是未指定说话人时的名字
const DefaultName = "AI"

// NewDisplayText fills Name with DefaultName when empty.
func NewDisplayText(text, name, avatar string) DisplayText {
	if name == "" {
		name = DefaultName
	}
	return DisplayText{Text: text, Name: name, Avatar: avatar}
}

// SentenceOutput 是文本句子单元，TTSText 是送入语音合成的文本
type SentenceOutput struct {
	DisplayText DisplayText `json:"display_text"`
	TTSText     string      `json:"tts_text"`
	Actions     Actions     `json:"actions"`
}

// AudioOutput 是已合成的音频单元
type AudioOutput struct {
	AudioPath   string      `json:"audio_path"`
	DisplayText DisplayText `json:"display_text"`
	Transcript  string      `json:"transcript"`
	Actions     Actions     `json:"actions"`
}

// Kind 标记 Output 的具体形态
type Kind string

const (
	KindSentence Kind = "sentence"
	KindAudio    Kind = "audio"
)

// Output is a tagged variant: exactly one of Sentence or Audio is set,
// matching Kind. Use the constructors to keep the invariant.
type Output struct {
	Kind     Kind            `json:"kind"`
	Sentence *SentenceOutput `json:"sentence,omitempty"`
	Audio    *AudioOutput    `json:"audio,omitempty"`
}

// Sentence wraps a sentence unit.
func Sentence(s SentenceOutput) Output {
	return Output{Kind: KindSentence, Sentence: &s}
}

// Audio wraps an audio unit.
func Audio(a AudioOutput) Output {
	return Output{Kind: KindAudio, Audio: &a}
}

// Display returns the display text of whichever shape is set.
func (o Output) Display() DisplayText {
	switch o.Kind {
	case KindSentence:
		if o.Sentence != nil {
			return o.Sentence.DisplayText
		}
	case KindAudio:
		if o.Audio != nil {
			return o.Audio.DisplayText
		}
	}
	return DisplayText{}
}

// ActionSet returns the actions of whichever shape is set.
func (o Output) ActionSet() Actions {
	switch o.Kind {
	case KindSentence:
		if o.Sentence != nil {
			return o.Sentence.Actions
		}
	case KindAudio:
		if o.Audio != nil {
			return o.Audio.Actions
		}
	}
	return Actions{}
}

// Valid reports whether exactly the shape named by Kind is set.
func (o Output) Valid() bool {
	switch o.Kind {
	case KindSentence:
		return o.Sentence != nil && o.Audio == nil
	case KindAudio:
		return o.Audio != nil && o.Sentence == nil
	default:
		return false
	}
}
