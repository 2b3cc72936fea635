package handlers

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/companion/agent"
	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/conversation"
	"github.com/BaSui01/companion/group"
	"github.com/BaSui01/companion/history"
	"github.com/BaSui01/companion/session"
	"github.com/BaSui01/companion/testutil/mocks"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

type fakeConnMetrics struct {
	connected    atomic.Int64
	disconnected atomic.Int64
	members      atomic.Int64
}

func (m *fakeConnMetrics) WSConnected()          { m.connected.Add(1) }
func (m *fakeConnMetrics) WSDisconnected()       { m.disconnected.Add(1) }
func (m *fakeConnMetrics) SetGroupMembers(n int) { m.members.Store(int64(n)) }

type wsHarness struct {
	handler  *WSHandler
	sessions *session.Registry
	groups   *group.Manager
	metrics  *fakeConnMetrics
	store    *history.FileStore
	url      string

	mu     sync.Mutex
	agents []*mocks.MockAgent
}

func newWSHarness(t *testing.T, mutate func(*WSOptions)) *wsHarness {
	t.Helper()

	h := &wsHarness{
		sessions: session.NewRegistry(),
		groups:   group.NewManager(zap.NewNop()),
		metrics:  &fakeConnMetrics{},
		store:    history.NewFileStore(t.TempDir(), nil),
	}
	orch, err := conversation.New(conversation.Options{
		Sessions: h.sessions,
		Groups:   h.groups,
		History:  h.store,
	})
	require.NoError(t, err)

	opts := WSOptions{
		Sessions:     h.sessions,
		Groups:       h.groups,
		Orchestrator: orch,
		History:      h.store,
		Metrics:      h.metrics,
		Character: config.CharacterConfig{
			ConfName:      "mao",
			ConfUID:       "mao_conf",
			CharacterName: "Mao",
			HumanName:     "Human",
			ModelName:     "mao_pro",
		},
		NewAgent: func(config.CharacterConfig) (agent.Agent, error) {
			ag := mocks.NewMockAgent().WithSentences("Hello.")
			h.mu.Lock()
			h.agents = append(h.agents, ag)
			h.mu.Unlock()
			return ag, nil
		},
	}
	if mutate != nil {
		mutate(&opts)
	}

	h.handler, err = NewWSHandler(opts)
	require.NoError(t, err)

	srv := httptest.NewServer(h.handler)
	h.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	t.Cleanup(func() {
		h.handler.Close()
		srv.Close()
		_ = orch.Shutdown(context.Background())
	})
	return h
}

func (h *wsHarness) agent(i int) *mocks.MockAgent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.agents[i]
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	uid  string
}

// dial 建立连接并读完握手阶段的四条消息
func (h *wsHarness) dial(t *testing.T) *wsClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, h.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })

	c := &wsClient{t: t, conn: conn}
	first := c.next()
	assert.Equal(t, "full-text", first["type"])
	assert.Equal(t, "Connection established", first["text"])

	conf := c.next()
	require.Equal(t, MsgSetModelAndConf, conf["type"])
	c.uid, _ = conf["client_uid"].(string)
	require.NotEmpty(t, c.uid)

	update := c.next()
	assert.Equal(t, MsgGroupUpdate, update["type"])

	mic := c.next()
	assert.Equal(t, conversation.TypeControl, mic["type"])
	assert.Equal(t, conversation.ControlStartMic, mic["text"])
	return c
}

func (c *wsClient) send(msg map[string]any) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(c.t, wsjson.Write(ctx, c.conn, msg))
}

func (c *wsClient) next() map[string]any {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var msg map[string]any
	require.NoError(c.t, wsjson.Read(ctx, c.conn, &msg))
	return msg
}

// expect 读到指定类型的消息为止
func (c *wsClient) expect(typ string) map[string]any {
	c.t.Helper()
	for {
		msg := c.next()
		if msg["type"] == typ {
			return msg
		}
	}
}

// expectControl 读到指定 control 事件为止
func (c *wsClient) expectControl(text string) {
	c.t.Helper()
	for {
		msg := c.expect(conversation.TypeControl)
		if msg["text"] == text {
			return
		}
	}
}

func members(msg map[string]any) []string {
	raw, _ := msg["members"].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, v.(string))
	}
	return out
}

// =============================================================================
// 🧪 WSHandler 测试
// =============================================================================

func TestNewWSHandler_RequiresDependencies(t *testing.T) {
	_, err := NewWSHandler(WSOptions{})
	assert.Error(t, err)

	orch, err := conversation.New(conversation.Options{Sessions: session.NewRegistry()})
	require.NoError(t, err)
	_, err = NewWSHandler(WSOptions{
		Sessions:     session.NewRegistry(),
		Groups:       group.NewManager(nil),
		Orchestrator: orch,
	})
	assert.Error(t, err, "agent factory is required")
}

func TestWSHandler_ConnectHandshake(t *testing.T) {
	h := newWSHarness(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, h.url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	c := &wsClient{t: t, conn: conn}
	assert.Equal(t, map[string]any{"type": "full-text", "text": "Connection established"}, c.next())

	conf := c.next()
	assert.Equal(t, "mao", conf["conf_name"])
	assert.Equal(t, "mao_conf", conf["conf_uid"])
	assert.Equal(t, "mao_pro", conf["model_name"])

	update := c.next()
	assert.Equal(t, []string{}, members(update))
	assert.Equal(t, false, update["is_owner"])

	assert.Equal(t, map[string]any{"type": "control", "text": "start-mic"}, c.next())

	assert.Equal(t, 1, h.sessions.Len())
	assert.EqualValues(t, 1, h.metrics.connected.Load())
}

func TestWSHandler_AgentFactoryFailure(t *testing.T) {
	h := newWSHarness(t, func(o *WSOptions) {
		o.NewAgent = func(config.CharacterConfig) (agent.Agent, error) {
			return nil, errors.New("no such llm provider")
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, h.url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	c := &wsClient{t: t, conn: conn}
	msg := c.next()
	assert.Equal(t, conversation.TypeError, msg["type"])
	assert.Contains(t, msg["message"], "no such llm provider")

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusInternalError, websocket.CloseStatus(err))
	assert.Equal(t, 0, h.sessions.Len())
}

func TestWSHandler_TextTurn(t *testing.T) {
	h := newWSHarness(t, nil)
	c := h.dial(t)

	c.send(map[string]any{"type": MsgTextInput, "text": "hi"})
	c.expectControl(conversation.ControlChainStart)

	audio := c.expect(conversation.TypeAudio)
	display := audio["display_text"].(map[string]any)
	assert.Equal(t, "Hello.", display["text"])
	assert.Equal(t, false, audio["forwarded"])

	c.expectControl(conversation.ControlChainEnd)

	inputs := h.agent(0).Inputs()
	require.Len(t, inputs, 1)
}

func TestWSHandler_InterruptWithoutTurn(t *testing.T) {
	h := newWSHarness(t, nil)
	c := h.dial(t)

	c.send(map[string]any{"type": MsgInterruptSignal, "text": "Hel"})
	c.send(map[string]any{"type": MsgHeartbeat})
	c.expect(MsgHeartbeatAck)

	assert.Equal(t, []string{"Hel"}, h.agent(0).Interrupts())
}

func TestWSHandler_Heartbeat(t *testing.T) {
	h := newWSHarness(t, nil)
	c := h.dial(t)

	c.send(map[string]any{"type": MsgHeartbeat})
	assert.Equal(t, map[string]any{"type": MsgHeartbeatAck}, c.next())
}

func TestWSHandler_InvalidJSON(t *testing.T) {
	h := newWSHarness(t, nil)
	c := h.dial(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.conn.Write(ctx, websocket.MessageText, []byte("{not json")))

	msg := c.next()
	assert.Equal(t, conversation.TypeError, msg["type"])
	assert.Contains(t, msg["message"], "invalid message")

	// 连接仍然可用
	c.send(map[string]any{"type": MsgHeartbeat})
	c.expect(MsgHeartbeatAck)
}

func TestWSHandler_RateLimit(t *testing.T) {
	h := newWSHarness(t, func(o *WSOptions) {
		o.MessageRPS = 0.001
		o.MessageBurst = 1
	})
	c := h.dial(t)

	c.send(map[string]any{"type": MsgHeartbeat})
	c.expect(MsgHeartbeatAck)

	c.send(map[string]any{"type": MsgHeartbeat})
	msg := c.next()
	assert.Equal(t, conversation.TypeError, msg["type"])
	assert.Equal(t, "rate limit exceeded", msg["message"])

	// 打断信号不受限流影响
	c.send(map[string]any{"type": MsgInterruptSignal, "text": "x"})
	require.Eventually(t, func() bool { return len(h.agent(0).Interrupts()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWSHandler_Group(t *testing.T) {
	h := newWSHarness(t, nil)
	a := h.dial(t)
	b := h.dial(t)

	a.send(map[string]any{"type": MsgAddClientToGroup, "invitee_uid": b.uid})

	update := a.expect(MsgGroupUpdate)
	assert.Equal(t, []string{a.uid, b.uid}, members(update))
	assert.Equal(t, true, update["is_owner"])

	result := a.expect(MsgGroupOperationResult)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "Successfully added client "+b.uid+" to group", result["message"])

	updateB := b.expect(MsgGroupUpdate)
	assert.Equal(t, []string{a.uid, b.uid}, members(updateB))
	assert.Equal(t, false, updateB["is_owner"])
	assert.EqualValues(t, 2, h.metrics.members.Load())

	b.send(map[string]any{"type": MsgRequestGroupInfo})
	info := b.expect(MsgGroupUpdate)
	assert.Len(t, members(info), 2)

	// B 断开后群组只剩一人，解散
	b.conn.Close(websocket.StatusNormalClosure, "")
	dissolved := a.expect(MsgGroupUpdate)
	assert.Equal(t, []string{}, members(dissolved))
	assert.Equal(t, false, dissolved["is_owner"])

	require.Eventually(t, func() bool { return h.sessions.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, h.groups.MemberCount())
	assert.EqualValues(t, 1, h.metrics.disconnected.Load())
}

func TestWSHandler_GroupErrors(t *testing.T) {
	h := newWSHarness(t, nil)
	a := h.dial(t)
	b := h.dial(t)

	a.send(map[string]any{"type": MsgAddClientToGroup, "invitee_uid": "nobody"})
	result := a.expect(MsgGroupOperationResult)
	assert.Equal(t, false, result["success"])
	assert.Equal(t, "Client nobody not found", result["message"])

	a.send(map[string]any{"type": MsgAddClientToGroup, "invitee_uid": a.uid})
	result = a.expect(MsgGroupOperationResult)
	assert.Equal(t, false, result["success"])

	a.send(map[string]any{"type": MsgRemoveClientFromGroup, "target_uid": b.uid})
	result = a.expect(MsgGroupOperationResult)
	assert.Equal(t, false, result["success"])
}

func TestWSHandler_RemoveFromGroup(t *testing.T) {
	h := newWSHarness(t, nil)
	a := h.dial(t)
	b := h.dial(t)
	c := h.dial(t)

	a.send(map[string]any{"type": MsgAddClientToGroup, "invitee_uid": b.uid})
	a.expect(MsgGroupOperationResult)
	a.send(map[string]any{"type": MsgAddClientToGroup, "invitee_uid": c.uid})
	a.expect(MsgGroupOperationResult)

	a.send(map[string]any{"type": MsgRemoveClientFromGroup, "target_uid": c.uid})
	result := a.expect(MsgGroupOperationResult)
	assert.Equal(t, true, result["success"])

	// C 收到移出后的更新
	for {
		update := c.expect(MsgGroupUpdate)
		if len(members(update)) == 0 {
			break
		}
	}
	assert.Equal(t, []string{a.uid, b.uid}, h.groups.GetGroupMembers(a.uid))
}

func TestWSHandler_HistoryLifecycle(t *testing.T) {
	h := newWSHarness(t, nil)
	c := h.dial(t)

	c.send(map[string]any{"type": MsgFetchHistoryList})
	list := c.expect(MsgHistoryList)
	assert.Equal(t, []any{}, list["histories"])

	c.send(map[string]any{"type": MsgCreateNewHistory})
	created := c.expect(MsgNewHistoryCreated)
	uid, _ := created["history_uid"].(string)
	require.NotEmpty(t, uid)
	assert.Contains(t, h.agent(0).HistoryLoads(), "mao_conf/"+uid)

	c.send(map[string]any{"type": MsgTextInput, "text": "hi"})
	c.expectControl(conversation.ControlChainEnd)
	require.Eventually(t, func() bool {
		msgs, err := h.store.Read(context.Background(), "mao_conf", uid)
		return err == nil && len(msgs) == 2
	}, 2*time.Second, 10*time.Millisecond)

	c.send(map[string]any{"type": MsgFetchHistoryList})
	list = c.expect(MsgHistoryList)
	require.Len(t, list["histories"], 1)

	c.send(map[string]any{"type": MsgFetchAndSetHistory, "history_uid": uid})
	data := c.expect(MsgHistoryData)
	messages := data["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "hi", messages[0].(map[string]any)["content"])
	assert.Equal(t, "Hello.", messages[1].(map[string]any)["content"])

	c.send(map[string]any{"type": MsgDeleteHistory, "history_uid": uid})
	deleted := c.expect(MsgHistoryDeleted)
	assert.Equal(t, true, deleted["success"])
	assert.Equal(t, uid, deleted["history_uid"])

	s, ok := h.sessions.Get(c.uid)
	require.True(t, ok)
	assert.Empty(t, s.HistoryUID())
}

func TestWSHandler_HistorySwitchStopsRunningTurn(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	held := mocks.NewMockAgent().WithSentences("Hello.", "Still talking.").WithHold(1, gate)
	h := newWSHarness(t, func(o *WSOptions) {
		o.NewAgent = func(config.CharacterConfig) (agent.Agent, error) { return held, nil }
	})
	c := h.dial(t)

	c.send(map[string]any{"type": MsgTextInput, "text": "hi"})
	c.expect(conversation.TypeAudio)

	c.send(map[string]any{"type": MsgCreateNewHistory})
	created := c.expect(MsgNewHistoryCreated)
	uid, _ := created["history_uid"].(string)
	require.NotEmpty(t, uid)

	// 新记忆加载前旧轮次已被打断并退出
	assert.Equal(t, []string{"Hello."}, held.Interrupts())
	assert.Equal(t, []string{"mao_conf/" + uid}, held.HistoryLoads())
	assert.False(t, h.handler.opts.Orchestrator.Tasks().Active(c.uid))
	assert.False(t, held.SawConcurrentChat())
}

func TestWSHandler_HistoryErrors(t *testing.T) {
	h := newWSHarness(t, nil)
	c := h.dial(t)

	c.send(map[string]any{"type": MsgFetchAndSetHistory, "history_uid": "2026-01-01_00-00-00_missing"})
	msg := c.expect(conversation.TypeError)
	assert.Contains(t, msg["message"], "not found")

	c.send(map[string]any{"type": MsgFetchAndSetHistory, "history_uid": "../escape"})
	c.expect(conversation.TypeError)
}

func TestWSHandler_HistoryDisabled(t *testing.T) {
	h := newWSHarness(t, func(o *WSOptions) { o.History = nil })
	c := h.dial(t)

	c.send(map[string]any{"type": MsgFetchHistoryList})
	msg := c.expect(conversation.TypeError)
	assert.Equal(t, "chat history is not enabled", msg["message"])
}

func TestWSHandler_Catalog(t *testing.T) {
	configDir := t.TempDir()
	bgDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "shizuku.yaml"),
		[]byte("character_config:\n  conf_name: Shizuku\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bgDir, "night.png"), []byte("png"), 0o644))

	h := newWSHarness(t, func(o *WSOptions) {
		o.Catalog = config.NewCatalog(configDir, bgDir, nil)
	})
	c := h.dial(t)

	c.send(map[string]any{"type": MsgFetchConfigs})
	configs := c.expect(MsgConfigFiles)
	assert.Equal(t, []any{map[string]any{"filename": "shizuku.yaml", "name": "Shizuku"}}, configs["configs"])

	c.send(map[string]any{"type": MsgFetchBackgrounds})
	bgs := c.expect(MsgBackgroundFiles)
	assert.Equal(t, []any{map[string]any{"name": "night.png", "url": "/bg/night.png"}}, bgs["files"])
}

func TestWSHandler_CatalogMissing(t *testing.T) {
	h := newWSHarness(t, nil)
	c := h.dial(t)

	c.send(map[string]any{"type": MsgFetchConfigs})
	assert.Equal(t, []any{}, c.expect(MsgConfigFiles)["configs"])
}

func TestWSHandler_AudioFrames(t *testing.T) {
	h := newWSHarness(t, nil)
	c := h.dial(t)

	c.send(map[string]any{"type": MsgMicAudioData, "audio": []float32{0.1, 0.2}})
	c.send(map[string]any{"type": MsgRawAudioData, "audio": []float32{0.3}})
	c.send(map[string]any{"type": MsgHeartbeat})
	c.expect(MsgHeartbeatAck)

	s, ok := h.sessions.Get(c.uid)
	require.True(t, ok)
	assert.Equal(t, 3, s.AudioLen())

	// 没有 ASR 时转写失败，缓冲被取走
	c.send(map[string]any{"type": MsgMicAudioEnd})
	c.expect(conversation.TypeError)
	assert.Equal(t, 0, s.AudioLen())
}

func TestWSHandler_ExpressionAndMotionCommands(t *testing.T) {
	h := newWSHarness(t, nil)
	c := h.dial(t)

	c.send(map[string]any{"type": MsgExpressionCommand, "expression_id": "smile", "duration": 1500})
	expr := c.next()
	assert.Equal(t, conversation.TypeExpression, expr["type"])
	assert.Equal(t, "smile", expr["expression_id"])
	assert.EqualValues(t, 1500, expr["duration"])

	c.send(map[string]any{"type": MsgExpressionCommand, "expression_id": 3})
	assert.Equal(t, "3", c.next()["expression_id"], "numeric ids are accepted")

	c.send(map[string]any{"type": MsgMotionCommand, "motion_group": "idle", "motion_index": 0, "loop": true})
	motion := c.next()
	assert.Equal(t, conversation.TypeMotion, motion["type"])
	assert.Equal(t, "idle", motion["motion_group"])
	assert.EqualValues(t, 0, motion["motion_index"])
	assert.Equal(t, true, motion["loop"])
}

func TestWSHandler_CommandValidation(t *testing.T) {
	h := newWSHarness(t, nil)
	c := h.dial(t)

	c.send(map[string]any{"type": MsgExpressionCommand})
	assert.Contains(t, c.expect(conversation.TypeError)["message"], "expression_id")

	c.send(map[string]any{"type": MsgMotionCommand, "motion_group": "idle"})
	assert.Contains(t, c.expect(conversation.TypeError)["message"], "motion_index")

	c.send(map[string]any{"type": MsgMotionCommand, "motion_index": 1})
	assert.Contains(t, c.expect(conversation.TypeError)["message"], "motion_group")
}

func TestWSHandler_IgnoresPlaybackNotices(t *testing.T) {
	h := newWSHarness(t, nil)
	c := h.dial(t)

	c.send(map[string]any{"type": MsgPlaybackComplete})
	c.send(map[string]any{"type": MsgAudioPlayStart})
	c.send(map[string]any{"type": "something-new"})
	c.send(map[string]any{"type": MsgHeartbeat})
	assert.Equal(t, MsgHeartbeatAck, c.next()["type"])
}

func TestWSHandler_Close(t *testing.T) {
	h := newWSHarness(t, nil)
	c := h.dial(t)

	h.handler.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := c.conn.Read(ctx)
	assert.Error(t, err)
	require.Eventually(t, func() bool { return h.sessions.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, h.metrics.disconnected.Load())
}
