package agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/BaSui01/companion/agent"
	"github.com/BaSui01/companion/types"
)

func TestMemory_AddPreservesOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		contents := rapid.SliceOf(rapid.String()).Draw(t, "contents")
		roles := rapid.SampledFrom([]types.Role{types.RoleSystem, types.RoleUser, types.RoleAssistant})

		m := agent.NewMemory()
		want := make([]types.Message, 0, len(contents))
		for i, c := range contents {
			msg := types.Message{Role: roles.Draw(t, "role"), Content: c}
			m.Add(msg)
			want = append(want, msg)
			if m.Len() != i+1 {
				t.Fatalf("len after %d adds = %d", i+1, m.Len())
			}
		}

		got := m.Messages()
		if len(got) != len(want) {
			t.Fatalf("len = %d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("entry %d = %+v, want %+v", i, got[i], want[i])
			}
		}
	})
}

func TestMemory_SnapshotIsCopy(t *testing.T) {
	m := agent.NewMemory(types.Message{Role: types.RoleUser, Content: "a"})
	snap := m.Messages()
	snap[0].Content = "changed"
	assert.Equal(t, "a", m.Messages()[0].Content)
}

func TestMemory_LastAndReplace(t *testing.T) {
	m := agent.NewMemory()
	_, ok := m.Last()
	assert.False(t, ok)
	assert.False(t, m.ReplaceLastContent("x"))

	m.Add(types.Message{Role: types.RoleAssistant, Content: "long answer"})
	assert.True(t, m.ReplaceLastContent("long..."))
	last, ok := m.Last()
	assert.True(t, ok)
	assert.Equal(t, "long...", last.Content)

	m.Reset(types.Message{Role: types.RoleSystem, Content: "sys"})
	assert.Equal(t, 1, m.Len())
}
