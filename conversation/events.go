package conversation

import (
	"github.com/BaSui01/companion/agent/output"
)

// 出站事件的 type 字段
const (
	TypeControl       = "control"
	TypeFullText      = "full-text"
	TypeAudio         = "audio"
	TypeTranscription = "user-input-transcription"
	TypeError         = "error"
	TypeExpression    = "expression"
	TypeMotion        = "motion"
)

// control 事件的 text 取值
const (
	ControlChainStart = "conversation-chain-start"
	ControlChainEnd   = "conversation-chain-end"
	ControlStartMic   = "start-mic"
	ControlInterrupt  = "interrupt"
	ControlMicEnd     = "mic-audio-end"
)

// ThinkingText 在轮次开始时以 full-text 发送
const ThinkingText = "Thinking..."

// AudioSliceLength 是 volumes 中每个采样片段的毫秒数
const AudioSliceLength = 20

// TextEvent 是只带 text 的事件（control、full-text、转写）
type TextEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Control builds a control event.
func Control(text string) TextEvent { return TextEvent{Type: TypeControl, Text: text} }

// FullText builds a full-text event.
func FullText(text string) TextEvent { return TextEvent{Type: TypeFullText, Text: text} }

// Transcription builds a user-input-transcription event.
func Transcription(text string) TextEvent { return TextEvent{Type: TypeTranscription, Text: text} }

// ErrorEvent 报告轮次或请求失败
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Error builds an error event.
func Error(message string) ErrorEvent { return ErrorEvent{Type: TypeError, Message: message} }

// ExpressionEvent 让前端切换模型表情。DurationMS 为 0 表示一直保持
type ExpressionEvent struct {
	Type         string `json:"type"`
	ExpressionID string `json:"expression_id"`
	DurationMS   int    `json:"duration,omitempty"`
	Priority     int    `json:"priority,omitempty"`
}

// Expression builds an expression event.
func Expression(id string, durationMS, priority int) ExpressionEvent {
	return ExpressionEvent{Type: TypeExpression, ExpressionID: id, DurationMS: durationMS, Priority: priority}
}

// MotionEvent 让前端播放模型动作组中的一个动作
type MotionEvent struct {
	Type        string `json:"type"`
	MotionGroup string `json:"motion_group"`
	MotionIndex int    `json:"motion_index"`
	Loop        bool   `json:"loop,omitempty"`
	Priority    int    `json:"priority,omitempty"`
}

// Motion builds a motion event.
func Motion(group string, index int, loop bool, priority int) MotionEvent {
	return MotionEvent{Type: TypeMotion, MotionGroup: group, MotionIndex: index, Loop: loop, Priority: priority}
}

// AudioEvent 是一个输出单元的客户端形态。
// Forwarded 为 true 表示内容来自同组其他会话的 AI。
type AudioEvent struct {
	Type        string             `json:"type"`
	Audio       string             `json:"audio,omitempty"`
	Volumes     []float64          `json:"volumes"`
	SliceLength int                `json:"slice_length"`
	DisplayText output.DisplayText `json:"display_text"`
	Actions     *output.Actions    `json:"actions,omitempty"`
	Forwarded   bool               `json:"forwarded"`
}

// newAudioEvent 构造音频事件；空动作集省略 actions 字段
func newAudioEvent(audio string, display output.DisplayText, actions output.Actions) AudioEvent {
	ev := AudioEvent{
		Type:        TypeAudio,
		Audio:       audio,
		Volumes:     []float64{},
		SliceLength: AudioSliceLength,
		DisplayText: display,
	}
	if !actions.IsEmpty() {
		a := actions
		ev.Actions = &a
	}
	return ev
}

// forwardedCopy 返回标记了 forwarded 的副本
func (e AudioEvent) forwardedCopy(forwarded bool) AudioEvent {
	e.Forwarded = forwarded
	return e
}
