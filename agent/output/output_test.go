package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputVariants(t *testing.T) {
	s := Sentence(SentenceOutput{
		DisplayText: NewDisplayText("Hi!", "", ""),
		TTSText:     "Hi!",
		Actions:     Actions{Expressions: []string{"joy"}},
	})
	assert.True(t, s.Valid())
	assert.Equal(t, KindSentence, s.Kind)
	assert.Equal(t, "AI", s.Display().Name)
	assert.Equal(t, []string{"joy"}, s.ActionSet().Expressions)

	a := Audio(AudioOutput{AudioPath: "cache/a.wav", DisplayText: NewDisplayText("Yo", "Mao", "mao.png")})
	assert.True(t, a.Valid())
	assert.Equal(t, "Mao", a.Display().Name)
	assert.True(t, a.ActionSet().IsEmpty())

	assert.False(t, Output{Kind: KindSentence}.Valid())
	assert.False(t, Output{Kind: KindAudio, Audio: &AudioOutput{}, Sentence: &SentenceOutput{}}.Valid())
	assert.False(t, Output{}.Valid())
	assert.Equal(t, DisplayText{}, Output{}.Display())
}
