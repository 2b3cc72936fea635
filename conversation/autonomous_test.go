package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/testutil/mocks"
	"github.com/BaSui01/companion/types"
)

func newAutonomous(h *harness, cfg config.AutonomousConfig) *Autonomous {
	a := NewAutonomous(h.orch, cfg, nil)
	a.pickPrompt = func() string { return AutonomousPrompts[0] }
	return a
}

func TestAutonomous_GenerateStartsProactiveTurn(t *testing.T) {
	h := newHarness(t, Options{})
	ag := mocks.NewMockAgent().WithSentences("Fun fact.")
	s, rec := h.addSession("s1", "AI", ag)
	a := newAutonomous(h, config.DefaultAutonomousConfig())

	assert.Equal(t, 1, a.Generate(""))
	waitChainEnd(t, rec)

	require.Len(t, ag.Inputs(), 1)
	assert.Equal(t, AutonomousPrompts[0], ag.Inputs()[0].ToTextPrompt())
	stored := h.history.forHistory("h-" + s.ID)
	require.Len(t, stored, 1, "the prompt is not stored")
	assert.Equal(t, "Fun fact.", stored[0].Content)
	assert.False(t, a.Status().LastRun.IsZero())
}

func TestAutonomous_GenerateUsesGivenPrompt(t *testing.T) {
	h := newHarness(t, Options{})
	ag := mocks.NewMockAgent().WithSentences("Sure.")
	_, rec := h.addSession("s1", "AI", ag)
	a := newAutonomous(h, config.DefaultAutonomousConfig())

	assert.Equal(t, 1, a.Generate("Talk about cats"))
	waitChainEnd(t, rec)
	require.Len(t, ag.Inputs(), 1)
	assert.Equal(t, "Talk about cats", ag.Inputs()[0].ToTextPrompt())
}

func TestAutonomous_GenerateWithoutClients(t *testing.T) {
	h := newHarness(t, Options{})
	a := newAutonomous(h, config.DefaultAutonomousConfig())
	assert.Zero(t, a.Generate(""))
}

func TestAutonomous_SkipsBusySessionSilently(t *testing.T) {
	h := newHarness(t, Options{})
	gate := make(chan struct{})
	defer close(gate)
	busy := mocks.NewMockAgent().WithSentences("Long answer.").WithHold(0, gate)
	s, rec := h.addSession("busy", "AI", busy)
	_, idleRec := h.addSession("idle", "AI", mocks.NewMockAgent().WithSentences("Hi."))

	require.NoError(t, h.orch.HandleText(s, "question", nil))
	a := newAutonomous(h, config.DefaultAutonomousConfig())

	assert.Equal(t, 1, a.Generate(""))
	waitChainEnd(t, idleRec)
	assert.Empty(t, rec.errors(), "a skipped session gets no error event")
	assert.Len(t, busy.Inputs(), 1)
}

func TestAutonomous_GroupTriggeredOnce(t *testing.T) {
	h := newHarness(t, Options{})
	agentA := mocks.NewMockAgent().WithName("Alice").WithSentences("A here.")
	agentB := mocks.NewMockAgent().WithName("Bob").WithSentences("B here.")
	_, recA := h.addSession("A", "Alice", agentA)
	_, recB := h.addSession("B", "Bob", agentB)
	_, err := h.groups.AddClientToGroup("A", "B")
	require.NoError(t, err)

	a := newAutonomous(h, config.DefaultAutonomousConfig())
	assert.Equal(t, 1, a.Generate(""))
	waitChainEnd(t, recA)
	waitChainEnd(t, recB)
	assert.Len(t, agentA.Inputs(), 1)
	assert.Len(t, agentB.Inputs(), 1)
}

func TestAutonomous_RunSpeaksWhenEnabled(t *testing.T) {
	h := newHarness(t, Options{})
	ag := mocks.NewMockAgent().WithSentences("Tick.")
	h.addSession("s1", "AI", ag)

	a := newAutonomous(h, config.AutonomousConfig{
		Enabled:     true,
		Interval:    10 * time.Millisecond,
		MinInterval: 10 * time.Millisecond,
		MaxInterval: 20 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(ag.Inputs()) >= 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestAutonomous_RunIdleWhenDisabled(t *testing.T) {
	h := newHarness(t, Options{})
	ag := mocks.NewMockAgent().WithSentences("Tick.")
	h.addSession("s1", "AI", ag)

	a := newAutonomous(h, config.AutonomousConfig{
		Interval:    5 * time.Millisecond,
		MinInterval: 5 * time.Millisecond,
		MaxInterval: 5 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, ag.Inputs())

	a.SetEnabled(true)
	require.Eventually(t, func() bool { return len(ag.Inputs()) >= 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestAutonomous_SetInterval(t *testing.T) {
	h := newHarness(t, Options{})
	a := newAutonomous(h, config.DefaultAutonomousConfig())

	lo, hi := 30*time.Second, 90*time.Second
	require.NoError(t, a.SetInterval(time.Minute, &lo, &hi))
	st := a.Status()
	assert.Equal(t, time.Minute, st.Interval)
	assert.Equal(t, lo, st.MinInterval)
	assert.Equal(t, hi, st.MaxInterval)

	require.NoError(t, a.SetInterval(45*time.Second, nil, nil))
	assert.Equal(t, lo, a.Status().MinInterval, "range kept when omitted")

	err := a.SetInterval(0, nil, nil)
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))

	big := 5 * time.Minute
	err = a.SetInterval(time.Minute, &big, nil)
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
	assert.Equal(t, lo, a.Status().MinInterval, "rejected update leaves settings unchanged")
}

func TestAutonomous_NextWait(t *testing.T) {
	h := newHarness(t, Options{})
	tests := []struct {
		name string
		cfg  config.AutonomousConfig
		want time.Duration
	}{
		{"random range", config.AutonomousConfig{MinInterval: time.Minute, MaxInterval: 3 * time.Minute}, 2 * time.Minute},
		{"fixed range", config.AutonomousConfig{MinInterval: time.Minute, MaxInterval: time.Minute}, time.Minute},
		{"interval only", config.AutonomousConfig{Interval: 90 * time.Second}, 90 * time.Second},
		{"nothing set", config.AutonomousConfig{}, fallbackInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAutonomous(h, tt.cfg)
			a.between = func(lo, hi time.Duration) time.Duration { return (lo + hi) / 2 }
			assert.Equal(t, tt.want, a.nextWait())
		})
	}
}
