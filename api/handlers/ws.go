package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/companion/agent"
	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/conversation"
	"github.com/BaSui01/companion/group"
	"github.com/BaSui01/companion/history"
	"github.com/BaSui01/companion/internal/ctxkeys"
	"github.com/BaSui01/companion/session"
	"github.com/BaSui01/companion/types"
)

// =============================================================================
// 🔌 WebSocket 会话处理器
// =============================================================================

// AgentFactory 为新连接构建 Agent
type AgentFactory func(char config.CharacterConfig) (agent.Agent, error)

// ConnectionMetrics 由 metrics.Collector 实现
type ConnectionMetrics interface {
	WSConnected()
	WSDisconnected()
	SetGroupMembers(n int)
}

// WSOptions 是 WSHandler 的依赖
type WSOptions struct {
	Sessions     *session.Registry
	Groups       *group.Manager
	Orchestrator *conversation.Orchestrator
	NewAgent     AgentFactory
	Character    config.CharacterConfig

	// 以下可为空
	History        history.Store
	Catalog        *config.Catalog
	Metrics        ConnectionMetrics
	AllowedOrigins []string
	MessageRPS     float64
	MessageBurst   int
	ReadLimit      int64
	WriteTimeout   time.Duration
	Logger         *zap.Logger
}

// WSHandler 处理 /client-ws 上的长连接，一个连接对应一个会话
type WSHandler struct {
	opts   WSOptions
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWSHandler creates the handler.
func NewWSHandler(opts WSOptions) (*WSHandler, error) {
	switch {
	case opts.Sessions == nil:
		return nil, types.NewMissingFieldError("Sessions", "ws handler")
	case opts.Groups == nil:
		return nil, types.NewMissingFieldError("Groups", "ws handler")
	case opts.Orchestrator == nil:
		return nil, types.NewMissingFieldError("Orchestrator", "ws handler")
	case opts.NewAgent == nil:
		return nil, types.NewMissingFieldError("NewAgent", "ws handler")
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 8 << 20
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WSHandler{
		opts:   opts,
		logger: opts.Logger.With(zap.String("component", "ws")),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Close ends every open connection.
func (h *WSHandler) Close() {
	h.cancel()
}

// wsSender 把出站消息编码为 JSON 文本帧。
// 写入不跟随轮次 ctx：coder/websocket 在写入时 ctx 取消会关闭整个连接。
type wsSender struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (s wsSender) Send(ctx context.Context, msg any) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	return wsjson.Write(ctx, s.conn, msg)
}

// ServeHTTP upgrades the request and serves the session until the client
// disconnects or Close is called.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.opts.AllowedOrigins})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("remote_addr", r.RemoteAddr))
		return
	}
	conn.SetReadLimit(h.opts.ReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(h.ctx, cancel)
	defer stop()

	sender := wsSender{conn: conn, timeout: h.opts.WriteTimeout}
	s, err := h.open(ctx, sender, connFields(r))
	if err != nil {
		_ = sender.Send(ctx, conversation.Error(err.Error()))
		conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}
	defer h.closeSession(s)

	h.readLoop(ctx, conn, s)
	conn.Close(websocket.StatusNormalClosure, "")
}

// connFields 从握手请求中取出请求 ID、认证主体与对端地址
func connFields(r *http.Request) []zap.Field {
	fields := []zap.Field{zap.String("remote_addr", r.RemoteAddr)}
	if id, ok := ctxkeys.RequestID(r.Context()); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if sub, ok := ctxkeys.Subject(r.Context()); ok {
		fields = append(fields, zap.String("subject", sub))
	}
	return fields
}

// open 注册会话并发送连接建立时的四条消息
func (h *WSHandler) open(ctx context.Context, sender session.Sender, fields []zap.Field) (*session.Session, error) {
	ag, err := h.opts.NewAgent(h.opts.Character)
	if err != nil {
		h.logger.Error("failed to build agent", zap.Error(err))
		return nil, fmt.Errorf("failed to build agent: %w", err)
	}

	id := session.NewID()
	char := h.opts.Character
	s := session.New(id, char, session.Options{
		Agent:        ag,
		Sender:       sender,
		MessageRPS:   h.opts.MessageRPS,
		MessageBurst: h.opts.MessageBurst,
	})
	h.opts.Sessions.Add(s)
	if h.opts.Metrics != nil {
		h.opts.Metrics.WSConnected()
	}
	h.logger.Info("client connected",
		append(fields, zap.String("client_uid", id), zap.String("conf_uid", char.ConfUID))...)

	h.send(ctx, s, conversation.FullText("Connection established"))
	h.send(ctx, s, SetModelAndConf{
		Type:      MsgSetModelAndConf,
		ModelName: char.ModelName,
		ConfName:  char.ConfName,
		ConfUID:   char.ConfUID,
		ClientUID: id,
	})
	h.sendGroupUpdate(ctx, s.ID)
	h.send(ctx, s, conversation.Control(conversation.ControlStartMic))
	return s, nil
}

// closeSession 断开时的清理：取消轮次、离开群组、注销会话
func (h *WSHandler) closeSession(s *session.Session) {
	h.opts.Orchestrator.EndSession(s)
	if change, ok := h.opts.Groups.RemoveClient(s.ID); ok {
		h.opts.Orchestrator.OnGroupChange(change, s.ID)
		h.notifyGroup(context.Background(), change, s.ID)
	}
	h.opts.Sessions.Remove(s.ID)

	if h.opts.Metrics != nil {
		h.opts.Metrics.WSDisconnected()
		h.opts.Metrics.SetGroupMembers(h.opts.Groups.MemberCount())
	}
	h.logger.Info("client disconnected", zap.String("client_uid", s.ID))
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, s *session.Session) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
				h.logger.Debug("websocket read ended", zap.String("client_uid", s.ID), zap.Error(err))
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.send(ctx, s, conversation.Error("invalid message: "+err.Error()))
			continue
		}
		if !exemptFromRateLimit(msg.Type) && !s.AllowMessage() {
			h.send(ctx, s, conversation.Error("rate limit exceeded"))
			continue
		}
		h.dispatch(ctx, s, msg)
	}
}

// dispatch 按消息类型路由
func (h *WSHandler) dispatch(ctx context.Context, s *session.Session, msg inboundMessage) {
	orch := h.opts.Orchestrator
	var err error

	switch msg.Type {
	case MsgTextInput:
		err = orch.HandleText(s, msg.Text, msg.Images)
	case MsgMicAudioData, MsgRawAudioData:
		s.AppendAudio(msg.Audio)
	case MsgMicAudioEnd:
		err = orch.HandleAudioEnd(s)
	case MsgAISpeakSignal:
		err = orch.HandleProactive(s)
	case MsgInterruptSignal:
		orch.Interrupt(s, msg.Text)

	case MsgAddClientToGroup:
		h.addToGroup(ctx, s, msg.InviteeUID)
	case MsgRemoveClientFromGroup:
		h.removeFromGroup(ctx, s, msg.TargetUID)
	case MsgRequestGroupInfo:
		h.sendGroupUpdate(ctx, s.ID)

	case MsgFetchHistoryList, MsgFetchAndSetHistory, MsgCreateNewHistory, MsgDeleteHistory:
		h.handleHistory(ctx, s, msg)

	case MsgFetchConfigs:
		var configs []config.ConfigFile
		if h.opts.Catalog != nil {
			configs = h.opts.Catalog.Configs()
		}
		h.send(ctx, s, ConfigFiles{Type: MsgConfigFiles, Configs: nonNil(configs)})
	case MsgFetchBackgrounds:
		var files []config.BackgroundFile
		if h.opts.Catalog != nil {
			files = h.opts.Catalog.Backgrounds()
		}
		h.send(ctx, s, BackgroundFiles{Type: MsgBackgroundFiles, Files: nonNil(files)})

	case MsgExpressionCommand:
		if msg.ExpressionID == "" {
			h.send(ctx, s, conversation.Error("expression_id is required"))
			return
		}
		h.send(ctx, s, conversation.Expression(string(msg.ExpressionID), msg.Duration, msg.Priority))
	case MsgMotionCommand:
		if msg.MotionGroup == "" || msg.MotionIndex == nil || *msg.MotionIndex < 0 {
			h.send(ctx, s, conversation.Error("motion_group and motion_index are required"))
			return
		}
		h.send(ctx, s, conversation.Motion(msg.MotionGroup, *msg.MotionIndex, msg.Loop, msg.Priority))

	case MsgHeartbeat:
		h.send(ctx, s, typeOnly{Type: MsgHeartbeatAck})
	case MsgPlaybackComplete, MsgAudioPlayStart:
		// 前端播放状态，无需处理

	default:
		h.logger.Debug("unknown message type", zap.String("client_uid", s.ID), zap.String("type", msg.Type))
	}

	// 轮次错误已由编排器以 error 事件通知客户端
	if err != nil {
		h.logger.Debug("turn not started", zap.String("client_uid", s.ID), zap.String("type", msg.Type), zap.Error(err))
	}
}

// --- 群组 ---

func (h *WSHandler) addToGroup(ctx context.Context, s *session.Session, invitee string) {
	if _, ok := h.opts.Sessions.Get(invitee); !ok {
		h.sendGroupResult(ctx, s, false, fmt.Sprintf("Client %s not found", invitee))
		return
	}
	change, err := h.opts.Groups.AddClientToGroup(s.ID, invitee)
	if err != nil {
		h.sendGroupResult(ctx, s, false, errorMessage(err))
		return
	}
	h.opts.Orchestrator.OnGroupChange(change, "")
	h.notifyGroup(ctx, change, "")
	h.recordGroupSize()
	h.sendGroupResult(ctx, s, true, fmt.Sprintf("Successfully added client %s to group", invitee))
}

func (h *WSHandler) removeFromGroup(ctx context.Context, s *session.Session, target string) {
	change, err := h.opts.Groups.RemoveClientFromGroup(s.ID, target)
	if err != nil {
		h.sendGroupResult(ctx, s, false, errorMessage(err))
		return
	}
	h.opts.Orchestrator.OnGroupChange(change, target)
	h.notifyGroup(ctx, change, "")
	h.recordGroupSize()
	h.sendGroupResult(ctx, s, true, fmt.Sprintf("Successfully removed client %s from group", target))
}

// notifyGroup 给受影响的在线会话推送最新成员列表，skip 为已断开的会话
func (h *WSHandler) notifyGroup(ctx context.Context, change group.Change, skip string) {
	for _, id := range change.Affected {
		if id == skip {
			continue
		}
		h.sendGroupUpdate(ctx, id)
	}
}

func (h *WSHandler) sendGroupUpdate(ctx context.Context, id string) {
	s, ok := h.opts.Sessions.Get(id)
	if !ok {
		return
	}
	members := h.opts.Groups.GetGroupMembers(id)
	if members == nil {
		members = []string{}
	}
	h.send(ctx, s, GroupUpdate{Type: MsgGroupUpdate, Members: members, IsOwner: h.opts.Groups.IsOwner(id)})
}

func (h *WSHandler) sendGroupResult(ctx context.Context, s *session.Session, ok bool, message string) {
	h.send(ctx, s, GroupOperationResult{Type: MsgGroupOperationResult, Success: ok, Message: message})
}

func (h *WSHandler) recordGroupSize() {
	if h.opts.Metrics != nil {
		h.opts.Metrics.SetGroupMembers(h.opts.Groups.MemberCount())
	}
}

// --- 历史记录 ---

func (h *WSHandler) handleHistory(ctx context.Context, s *session.Session, msg inboundMessage) {
	store := h.opts.History
	if store == nil {
		h.send(ctx, s, conversation.Error("chat history is not enabled"))
		return
	}
	conf := s.ConfUID()

	switch msg.Type {
	case MsgFetchHistoryList:
		infos, err := store.List(ctx, conf)
		if err != nil {
			h.historyError(ctx, s, msg.Type, err)
			return
		}
		h.send(ctx, s, HistoryList{Type: MsgHistoryList, Histories: nonNil(infos)})

	case MsgFetchAndSetHistory:
		messages, err := store.Read(ctx, conf, msg.HistoryUID)
		if err != nil {
			h.historyError(ctx, s, msg.Type, err)
			return
		}
		if !h.stopTurn(ctx, s) {
			return
		}
		s.SetHistoryUID(msg.HistoryUID)
		s.Agent().SetMemoryFromHistory(ctx, conf, msg.HistoryUID)
		h.send(ctx, s, HistoryData{Type: MsgHistoryData, Messages: nonNil(messages)})

	case MsgCreateNewHistory:
		uid, err := store.Create(ctx, conf)
		if err != nil {
			h.historyError(ctx, s, msg.Type, err)
			return
		}
		if !h.stopTurn(ctx, s) {
			return
		}
		s.SetHistoryUID(uid)
		s.Agent().SetMemoryFromHistory(ctx, conf, uid)
		h.send(ctx, s, NewHistoryCreated{Type: MsgNewHistoryCreated, HistoryUID: uid})

	case MsgDeleteHistory:
		err := store.Delete(ctx, conf, msg.HistoryUID)
		if err != nil {
			h.logger.Warn("failed to delete history",
				zap.String("client_uid", s.ID), zap.String("history_uid", msg.HistoryUID), zap.Error(err))
		} else if msg.HistoryUID == s.HistoryUID() {
			s.SetHistoryUID("")
		}
		h.send(ctx, s, HistoryDeleted{Type: MsgHistoryDeleted, Success: err == nil, HistoryUID: msg.HistoryUID})
	}
}

// stopTurn 切换历史前结束当前轮次，避免旧轮次写入新记忆
func (h *WSHandler) stopTurn(ctx context.Context, s *session.Session) bool {
	if err := h.opts.Orchestrator.StopTurn(ctx, s); err != nil {
		h.logger.Debug("stop turn before history switch", zap.String("client_uid", s.ID), zap.Error(err))
		return false
	}
	return true
}

func (h *WSHandler) historyError(ctx context.Context, s *session.Session, op string, err error) {
	h.logger.Warn("history operation failed", zap.String("client_uid", s.ID), zap.String("op", op), zap.Error(err))
	h.send(ctx, s, conversation.Error(errorMessage(err)))
}

// --- 发送 ---

func (h *WSHandler) send(ctx context.Context, s *session.Session, msg any) {
	if err := s.Send(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("send failed", zap.String("client_uid", s.ID), zap.Error(err))
	}
}

func errorMessage(err error) string {
	if te, ok := types.AsError(err); ok {
		return te.Message
	}
	return err.Error()
}

// nonNil 保证空列表编码为 [] 而不是 null
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
