package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/companion/agent"
	"github.com/BaSui01/companion/history"
	"github.com/BaSui01/companion/internal/metrics"
	"github.com/BaSui01/companion/session"
	"github.com/BaSui01/companion/types"
)

// =============================================================================
// 👥 群组对话
// =============================================================================

// groupState 是群组的共享对话记录，以及每个成员已经看到的位置。
type groupState struct {
	mu          sync.Mutex
	shared      []string
	memoryIndex map[string]int
	introduced  map[string]bool
}

func newGroupState() *groupState {
	return &groupState{memoryIndex: make(map[string]int), introduced: make(map[string]bool)}
}

// since returns the shared entries id has not seen yet.
func (g *groupState) since(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.memoryIndex[id]
	if idx > len(g.shared) {
		idx = len(g.shared)
	}
	return append([]string(nil), g.shared[idx:]...)
}

func (g *groupState) append(entry string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.shared = append(g.shared, entry)
}

func (g *groupState) markSeen(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.memoryIndex[id] = len(g.shared)
}

// markIntroduced reports whether id is introduced for the first time.
func (g *groupState) markIntroduced(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.introduced[id] {
		return false
	}
	g.introduced[id] = true
	return true
}

func (g *groupState) forget(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.memoryIndex, id)
	delete(g.introduced, id)
}

func (o *Orchestrator) groupState(groupID string) *groupState {
	o.groupMu.Lock()
	defer o.groupMu.Unlock()
	st, ok := o.groupStates[groupID]
	if !ok {
		st = newGroupState()
		o.groupStates[groupID] = st
	}
	return st
}

func (o *Orchestrator) forgetMember(id string) {
	o.groupMu.Lock()
	defer o.groupMu.Unlock()
	for _, st := range o.groupStates {
		st.forget(id)
	}
}

// speakingOrder rotates members (join order) so that first speaks first.
func speakingOrder(members []string, first string) []string {
	for i, id := range members {
		if id == first {
			out := make([]string, 0, len(members))
			out = append(out, members[i:]...)
			return append(out, members[:i]...)
		}
	}
	return append([]string(nil), members...)
}

// GroupIntro 是每个成员首次参与群聊时写入其记忆的说明
func GroupIntro(humanName string, others []string) string {
	return fmt.Sprintf("You are in a group conversation with %s and other AIs: %s", humanName, strings.Join(others, ", "))
}

func (o *Orchestrator) runGroup(ctx context.Context, task *Task, s *session.Session, members []string, in turnInput, transcript string) string {
	final := context.WithoutCancel(ctx)
	snap, _ := o.groups.GetClientGroup(s.ID)
	state := o.groupState(snap.ID)
	logger := o.logger.With(zap.String("session_id", s.ID), zap.String("group_id", snap.ID))

	var order []*session.Session
	for _, id := range speakingOrder(members, s.ID) {
		if peer, ok := o.sessions.Get(id); ok {
			order = append(order, peer)
		}
	}

	o.broadcastText(ctx, order, Control(ControlChainStart))
	if transcript != "" {
		o.broadcastText(ctx, order, Transcription(transcript))
	}
	o.broadcastText(ctx, order, FullText(ThinkingText))
	defer o.broadcastText(final, order, Control(ControlChainEnd))

	human := s.Character.HumanName
	if !in.proactive {
		prompt := in.batch.ToTextPrompt()
		state.append(human + ": " + prompt)
		o.store(final, order, history.NewMessage(history.RoleHuman, prompt, human, ""))
	}

	for i, member := range order {
		if ctx.Err() != nil {
			return metrics.StatusInterrupted
		}
		o.introduce(state, member, order, human)

		lines := state.since(member.ID)
		if i == 0 && in.proactive {
			lines = append(lines, ProactivePrompt)
		}
		if len(lines) == 0 {
			continue
		}
		batch := agent.BatchInput{
			Texts:  []agent.TextData{{Source: agent.TextSourceInput, Content: strings.Join(lines, "\n"), FromName: human}},
			Images: in.batch.Images,
		}

		res := o.speak(ctx, task, member, batch, order)
		name := member.Character.CharacterName
		switch {
		case res.interrupted:
			if res.heard != "" {
				state.append(name + ": " + res.heard + "...")
				o.storeAI(final, order, member, res.heard+"...")
			}
			state.markSeen(member.ID)
			logger.Info("group turn interrupted", zap.String("speaker", member.ID))
			return metrics.StatusInterrupted
		case res.err != nil:
			state.markSeen(member.ID)
			o.fail(s, fmt.Errorf("%s: %w", name, res.err))
			if member.ID != s.ID {
				o.send(o.ctx, member, Error(res.err.Error()))
			}
			return metrics.StatusError
		}
		if res.text != "" {
			state.append(name + ": " + res.text)
			o.storeAI(final, order, member, res.text)
		}
		state.markSeen(member.ID)
	}
	return metrics.StatusCompleted
}

// introduce tells member's agent about the group once.
func (o *Orchestrator) introduce(state *groupState, member *session.Session, order []*session.Session, human string) {
	if !state.markIntroduced(member.ID) {
		return
	}

	w, ok := member.Agent().(agent.MemoryWriter)
	if !ok {
		return
	}
	others := make([]string, 0, len(order)-1)
	for _, peer := range order {
		if peer.ID != member.ID {
			others = append(others, peer.Character.CharacterName)
		}
	}
	w.AddMessage(types.NewUserMessage(GroupIntro(human, others)))
}

func (o *Orchestrator) broadcastText(ctx context.Context, recipients []*session.Session, msg any) {
	for _, r := range recipients {
		o.send(ctx, r, msg)
	}
}
