package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/conversation"
	"github.com/BaSui01/companion/session"
	"github.com/BaSui01/companion/types"
)

// ClientUIDHeader 指定 REST 控制接口的目标会话
const ClientUIDHeader = "X-Client-UID"

// maxControlBody 控制接口请求体上限
const maxControlBody = 64 << 10

// =============================================================================
// 🎭 表情、动作与定时发言控制接口
// =============================================================================

// ControlHandler 处理 /api/expression、/api/motion 与 /api/autonomous/*
type ControlHandler struct {
	sessions   *session.Registry
	autonomous *conversation.Autonomous
	character  config.CharacterConfig
	logger     *zap.Logger
}

// NewControlHandler creates the handler. autonomous may be nil, in which case
// the /api/autonomous endpoints answer 503.
func NewControlHandler(sessions *session.Registry, autonomous *conversation.Autonomous, character config.CharacterConfig, logger *zap.Logger) *ControlHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ControlHandler{
		sessions:   sessions,
		autonomous: autonomous,
		character:  character,
		logger:     logger.With(zap.String("component", "control")),
	}
}

// Register mounts the endpoints on mux.
func (h *ControlHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/expression", h.HandleExpression)
	mux.HandleFunc("POST /api/motion", h.HandleMotion)
	mux.HandleFunc("GET /api/autonomous/status", h.HandleAutonomousStatus)
	mux.HandleFunc("POST /api/autonomous/control", h.HandleAutonomousControl)
	mux.HandleFunc("POST /api/autonomous/generate", h.HandleAutonomousGenerate)
}

// --- 表情与动作 ---

// ExpressionRequest 是 /api/expression 的请求体
type ExpressionRequest struct {
	ExpressionID flexID `json:"expressionId"`
	Duration     int    `json:"duration"`
	Priority     int    `json:"priority"`
	ClientUID    string `json:"client_uid"`
}

// MotionRequest 是 /api/motion 的请求体
type MotionRequest struct {
	MotionGroup string `json:"motionGroup"`
	MotionIndex *int   `json:"motionIndex"`
	Loop        bool   `json:"loop"`
	Priority    int    `json:"priority"`
	ClientUID   string `json:"client_uid"`
}

// HandleExpression pushes an expression event to one session.
func (h *ControlHandler) HandleExpression(w http.ResponseWriter, r *http.Request) {
	var req ExpressionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ExpressionID == "" {
		WriteError(w, types.NewMissingFieldError("expressionId", "expression request"), h.logger)
		return
	}
	s, ok := h.target(w, r, req.ClientUID)
	if !ok {
		return
	}
	ev := conversation.Expression(string(req.ExpressionID), req.Duration, req.Priority)
	if !h.push(r.Context(), w, s, ev) {
		return
	}
	h.logger.Info("expression triggered",
		zap.String("client_uid", s.ID),
		zap.String("expression_id", ev.ExpressionID),
		zap.Int("duration", req.Duration),
		zap.Int("priority", req.Priority))
	WriteSuccess(w, map[string]any{"client_uid": s.ID, "expression_id": ev.ExpressionID})
}

// HandleMotion pushes a motion event to one session.
func (h *ControlHandler) HandleMotion(w http.ResponseWriter, r *http.Request) {
	var req MotionRequest
	if !h.decode(w, r, &req) {
		return
	}
	switch {
	case req.MotionGroup == "":
		WriteError(w, types.NewMissingFieldError("motionGroup", "motion request"), h.logger)
		return
	case req.MotionIndex == nil:
		WriteError(w, types.NewMissingFieldError("motionIndex", "motion request"), h.logger)
		return
	case *req.MotionIndex < 0:
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "motionIndex must not be negative", h.logger)
		return
	}
	s, ok := h.target(w, r, req.ClientUID)
	if !ok {
		return
	}
	ev := conversation.Motion(req.MotionGroup, *req.MotionIndex, req.Loop, req.Priority)
	if !h.push(r.Context(), w, s, ev) {
		return
	}
	h.logger.Info("motion triggered",
		zap.String("client_uid", s.ID),
		zap.String("motion_group", ev.MotionGroup),
		zap.Int("motion_index", ev.MotionIndex))
	WriteSuccess(w, map[string]any{"client_uid": s.ID, "motion_group": ev.MotionGroup, "motion_index": ev.MotionIndex})
}

// target 按请求体或 X-Client-UID 头找到目标会话
func (h *ControlHandler) target(w http.ResponseWriter, r *http.Request, bodyUID string) (*session.Session, bool) {
	uid := bodyUID
	if uid == "" {
		uid = r.Header.Get(ClientUIDHeader)
	}
	if uid == "" {
		WriteError(w, types.NewMissingFieldError("client_uid", "control request"), h.logger)
		return nil, false
	}
	s, ok := h.sessions.Get(uid)
	if !ok {
		WriteError(w, types.Errorf(types.ErrSessionNotFound, "client %s is not connected", uid), h.logger)
		return nil, false
	}
	return s, true
}

func (h *ControlHandler) push(ctx context.Context, w http.ResponseWriter, s *session.Session, ev any) bool {
	if err := s.Send(ctx, ev); err != nil {
		WriteError(w, types.NewError(types.ErrServiceUnavailable, "failed to reach client").WithCause(err), h.logger)
		return false
	}
	return true
}

// --- 定时主动发言 ---

// AutonomousStatusResponse 是 /api/autonomous/status 的数据
type AutonomousStatusResponse struct {
	Mode               string    `json:"mode"`
	Active             bool      `json:"active"`
	Character          string    `json:"character"`
	CharacterID        string    `json:"character_id"`
	GeneratorEnabled   bool      `json:"autonomous_generator_enabled"`
	GeneratorInterval  float64   `json:"autonomous_generator_interval"`
	MinIntervalSeconds float64   `json:"min_interval_seconds"`
	MaxIntervalSeconds float64   `json:"max_interval_seconds"`
	LastRun            time.Time `json:"last_run,omitzero"`
}

// AutonomousControlRequest 是 /api/autonomous/control 的请求体，间隔以秒为单位
type AutonomousControlRequest struct {
	Enabled     *bool    `json:"enabled"`
	Interval    *float64 `json:"interval"`
	MinInterval *float64 `json:"min_interval"`
	MaxInterval *float64 `json:"max_interval"`
}

// AutonomousGenerateRequest 是 /api/autonomous/generate 的请求体
type AutonomousGenerateRequest struct {
	Prompt string `json:"prompt"`
}

// HandleAutonomousStatus reports the generator settings.
func (h *ControlHandler) HandleAutonomousStatus(w http.ResponseWriter, r *http.Request) {
	if !h.autonomousReady(w) {
		return
	}
	WriteSuccess(w, h.status())
}

// HandleAutonomousControl toggles the generator and updates its intervals.
func (h *ControlHandler) HandleAutonomousControl(w http.ResponseWriter, r *http.Request) {
	if !h.autonomousReady(w) {
		return
	}
	var req AutonomousControlRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.Interval != nil || req.MinInterval != nil || req.MaxInterval != nil {
		interval := h.autonomous.Status().Interval
		if req.Interval != nil {
			interval = seconds(*req.Interval)
		}
		var lo, hi *time.Duration
		if req.MinInterval != nil {
			d := seconds(*req.MinInterval)
			lo = &d
		}
		if req.MaxInterval != nil {
			d := seconds(*req.MaxInterval)
			hi = &d
		}
		if err := h.autonomous.SetInterval(interval, lo, hi); err != nil {
			writeErr(w, err, h.logger)
			return
		}
	}
	if req.Enabled != nil {
		h.autonomous.SetEnabled(*req.Enabled)
	}
	WriteSuccess(w, h.status())
}

// HandleAutonomousGenerate triggers one round of proactive speech right away.
func (h *ControlHandler) HandleAutonomousGenerate(w http.ResponseWriter, r *http.Request) {
	if !h.autonomousReady(w) {
		return
	}
	// 请求体可省略，此时随机选择提示
	var req AutonomousGenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxControlBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid request body: "+err.Error(), h.logger)
		return
	}
	started := h.autonomous.Generate(req.Prompt)
	WriteSuccess(w, map[string]any{"turns_started": started})
}

func (h *ControlHandler) autonomousReady(w http.ResponseWriter) bool {
	if h.autonomous == nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "autonomous mode is not available", h.logger)
		return false
	}
	return true
}

func (h *ControlHandler) status() AutonomousStatusResponse {
	st := h.autonomous.Status()
	mode := "manual"
	if st.Enabled {
		mode = "autonomous"
	}
	return AutonomousStatusResponse{
		Mode:               mode,
		Active:             st.Enabled,
		Character:          h.character.CharacterName,
		CharacterID:        h.character.ConfUID,
		GeneratorEnabled:   st.Enabled,
		GeneratorInterval:  st.Interval.Seconds(),
		MinIntervalSeconds: st.MinInterval.Seconds(),
		MaxIntervalSeconds: st.MaxInterval.Seconds(),
		LastRun:            st.LastRun,
	}
}

// --- 辅助 ---

func (h *ControlHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxControlBody))
	if err := dec.Decode(v); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid request body: "+err.Error(), h.logger)
		return false
	}
	return true
}

func writeErr(w http.ResponseWriter, err error, logger *zap.Logger) {
	if te, ok := types.AsError(err); ok {
		WriteError(w, te, logger)
		return
	}
	WriteError(w, types.NewError(types.ErrInternalError, err.Error()), logger)
}

func seconds(v float64) time.Duration { return time.Duration(v * float64(time.Second)) }
