package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/companion/agent"
	"github.com/BaSui01/companion/agent/output"
	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/group"
	"github.com/BaSui01/companion/history"
	"github.com/BaSui01/companion/internal/metrics"
	"github.com/BaSui01/companion/internal/telemetry"
	"github.com/BaSui01/companion/session"
	"github.com/BaSui01/companion/types"
)

// 轮次模式，用作指标与 span 标签
const (
	ModeSingle = "single"
	ModeGroup  = "group"
)

// ProactivePrompt 是 ai-speak-signal 触发的主动发言提示
const ProactivePrompt = "Please say something that would be engaging and appropriate for the current context."

// =============================================================================
// 🔌 协作方接口
// =============================================================================

// Transcriber 把音频样本转成文本（ASR）
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
}

// Synthesizer 把文本合成为音频句柄（TTS）
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, tts config.TTSConfig) (string, error)
}

// HistoryAppender 追加一条历史记录
type HistoryAppender interface {
	Append(ctx context.Context, confUID, historyUID string, msg history.Message) error
}

// TurnRecorder 记录轮次结果，由 metrics.Collector 实现
type TurnRecorder interface {
	RecordTurn(mode, status string, duration time.Duration)
}

// Options 是 Orchestrator 的依赖，除 Sessions 外均可为空
type Options struct {
	Sessions  *session.Registry
	Groups    *group.Manager
	ASR       Transcriber
	TTS       Synthesizer
	History   HistoryAppender
	Metrics   TurnRecorder
	Telemetry *telemetry.TurnInstruments
	Logger    *zap.Logger
}

// =============================================================================
// 🎬 对话编排器
// =============================================================================

// Orchestrator 驱动单人与群组对话轮次。每个轮次在独立 goroutine 中运行，
// 由 TaskController 保证同一会话（或群组）同一时间只有一个轮次。
type Orchestrator struct {
	sessions    *session.Registry
	groups      *group.Manager
	asr         Transcriber
	tts         Synthesizer
	history     HistoryAppender
	metrics     TurnRecorder
	instruments *telemetry.TurnInstruments
	tasks       *TaskController
	logger      *zap.Logger

	ctx  context.Context
	stop context.CancelFunc

	groupMu     sync.Mutex
	groupStates map[string]*groupState
}

// New creates an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Sessions == nil {
		return nil, types.NewMissingFieldError("sessions", "orchestrator")
	}
	groups := opts.Groups
	if groups == nil {
		groups = group.NewManager(logger)
	}
	instruments := opts.Telemetry
	if instruments == nil {
		var err error
		if instruments, err = telemetry.NewTurnInstruments(nil, nil); err != nil {
			return nil, err
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		sessions:    opts.Sessions,
		groups:      groups,
		asr:         opts.ASR,
		tts:         opts.TTS,
		history:     opts.History,
		metrics:     opts.Metrics,
		instruments: instruments,
		tasks:       NewTaskController(logger),
		logger:      logger.With(zap.String("component", "orchestrator")),
		ctx:         ctx,
		stop:        stop,
		groupStates: make(map[string]*groupState),
	}, nil
}

// Tasks exposes the cancellation controller.
func (o *Orchestrator) Tasks() *TaskController { return o.tasks }

// turnInput 是一次轮次的原始输入
type turnInput struct {
	batch     agent.BatchInput
	audio     []float32
	proactive bool
	// quiet 时忙碌不回 error 事件（定时主动发言）
	quiet bool
}

// HandleText starts a text turn for s.
func (o *Orchestrator) HandleText(s *session.Session, text string, images []agent.ImageData) error {
	in := agent.TextInput(text, s.Character.HumanName)
	in.Images = images
	return o.start(s, turnInput{batch: in})
}

// HandleAudioEnd starts a voice turn from the session's accumulated audio.
// An empty buffer abandons the turn with a warning and no events.
func (o *Orchestrator) HandleAudioEnd(s *session.Session) error {
	samples := s.TakeAudio()
	if len(samples) == 0 {
		o.logger.Warn("empty audio buffer, turn abandoned", zap.String("session_id", s.ID))
		return nil
	}
	return o.start(s, turnInput{audio: samples})
}

// HandleProactive starts a turn in which the AI speaks first.
func (o *Orchestrator) HandleProactive(s *session.Session) error {
	return o.start(s, turnInput{batch: agent.TextInput(ProactivePrompt, s.Character.HumanName), proactive: true})
}

// HandlePrompt starts a proactive turn driven by prompt. A busy session is
// reported through the returned error only, the client gets no error event.
func (o *Orchestrator) HandlePrompt(s *session.Session, prompt string) error {
	return o.start(s, turnInput{batch: agent.TextInput(prompt, s.Character.HumanName), proactive: true, quiet: true})
}

// Interrupt aborts the turn the session takes part in and clears its audio
// buffer. Without a running turn the heard text goes straight to the agent.
func (o *Orchestrator) Interrupt(s *session.Session, heard string) {
	s.ClearAudio()
	key, members := o.route(s.ID)

	if _, ok := o.tasks.Interrupt(key, heard); !ok {
		if ag := s.Agent(); ag != nil && heard != "" {
			ag.HandleInterrupt(heard)
		}
		return
	}
	for _, id := range members {
		if id == s.ID {
			continue
		}
		if peer, ok := o.sessions.Get(id); ok {
			o.send(o.ctx, peer, Control(ControlInterrupt))
		}
	}
}

// StopTurn interrupts the turn the session takes part in and waits until it
// has fully exited, including the agent's interrupt bookkeeping. Used before
// the session's memory is swapped for another history.
func (o *Orchestrator) StopTurn(ctx context.Context, s *session.Session) error {
	key, members := o.route(s.ID)
	if _, ok := o.tasks.Interrupt(key, ""); ok {
		for _, id := range members {
			if id == s.ID {
				continue
			}
			if peer, ok := o.sessions.Get(id); ok {
				o.send(o.ctx, peer, Control(ControlInterrupt))
			}
		}
	}
	return o.tasks.WaitIdle(ctx, key)
}

// EndSession aborts the session's own turn on disconnect. A group turn keeps
// running for the remaining members.
func (o *Orchestrator) EndSession(s *session.Session) {
	if o.tasks.Cancel(s.ID) {
		o.logger.Info("turn cancelled on disconnect", zap.String("session_id", s.ID))
	}
	o.forgetMember(s.ID)
}

// OnGroupChange updates the group bookkeeping after a membership change.
// leaving is the session that left, or empty.
func (o *Orchestrator) OnGroupChange(change group.Change, leaving string) {
	o.groupMu.Lock()
	defer o.groupMu.Unlock()
	if change.Dissolved {
		delete(o.groupStates, change.GroupID)
		o.tasks.Cancel(groupKey(change.GroupID))
		return
	}
	if st, ok := o.groupStates[change.GroupID]; ok && leaving != "" {
		st.forget(leaving)
	}
}

// Shutdown aborts all turns and waits for them to exit.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stop()
	o.tasks.CancelAll()
	return o.tasks.Wait(ctx)
}

// route returns the controller key for id and, when grouped, the members.
func (o *Orchestrator) route(id string) (string, []string) {
	snap, ok := o.groups.GetClientGroup(id)
	if !ok || len(snap.Members) < 2 {
		return id, nil
	}
	return groupKey(snap.ID), snap.Members
}

func groupKey(groupID string) string { return "group:" + groupID }

func (o *Orchestrator) start(s *session.Session, in turnInput) error {
	key, members := o.route(s.ID)
	ctx, task, err := o.tasks.Start(o.ctx, key)
	if err != nil {
		if in.quiet {
			return err
		}
		o.logger.Warn("turn rejected", zap.String("session_id", s.ID), zap.Error(err))
		o.send(o.ctx, s, Error(err.Error()))
		return err
	}

	go func() {
		defer o.tasks.Finish(task)
		o.runTurn(ctx, task, s, members, in)
	}()
	return nil
}

// =============================================================================
// 🔄 轮次执行
// =============================================================================

func (o *Orchestrator) runTurn(ctx context.Context, task *Task, s *session.Session, members []string, in turnInput) {
	mode := ModeSingle
	if len(members) > 1 {
		mode = ModeGroup
	}
	started := time.Now()
	ctx, span := o.instruments.StartTurn(ctx, s.ID, mode)
	status := metrics.StatusCompleted
	defer func() {
		elapsed := time.Since(started)
		o.instruments.EndTurn(context.WithoutCancel(ctx), span, mode, status, elapsed)
		if o.metrics != nil {
			o.metrics.RecordTurn(mode, status, elapsed)
		}
	}()
	logger := o.logger.With(zap.String("session_id", s.ID), zap.String("mode", mode))

	transcript := ""
	if in.audio != nil {
		text, err := o.transcribe(ctx, in.audio)
		switch {
		case ctx.Err() != nil:
			status = metrics.StatusInterrupted
			return
		case err != nil:
			logger.Error("transcription failed", zap.Error(err))
			o.send(o.ctx, s, Error(err.Error()))
			status = metrics.StatusError
			return
		case strings.TrimSpace(text) == "":
			logger.Warn("empty transcription, turn abandoned")
			return
		}
		transcript = text
		in.batch = agent.TextInput(text, s.Character.HumanName)
	}

	if mode == ModeGroup {
		status = o.runGroup(ctx, task, s, members, in, transcript)
	} else {
		status = o.runSingle(ctx, task, s, in, transcript)
	}
	logger.Info("turn finished", zap.String("status", status), zap.Duration("elapsed", time.Since(started)))
}

func (o *Orchestrator) runSingle(ctx context.Context, task *Task, s *session.Session, in turnInput, transcript string) string {
	final := context.WithoutCancel(ctx)
	recipients := []*session.Session{s}

	o.send(ctx, s, Control(ControlChainStart))
	if transcript != "" {
		o.send(ctx, s, Transcription(transcript))
	}
	o.send(ctx, s, FullText(ThinkingText))
	defer o.send(final, s, Control(ControlChainEnd))

	if !in.proactive {
		o.store(final, recipients, history.NewMessage(history.RoleHuman, in.batch.ToTextPrompt(), s.Character.HumanName, ""))
	}

	res := o.speak(ctx, task, s, in.batch, recipients)
	switch {
	case res.interrupted:
		if res.heard != "" {
			o.storeAI(final, recipients, s, res.heard+"...")
		}
		return metrics.StatusInterrupted
	case res.err != nil:
		o.fail(s, res.err)
		return metrics.StatusError
	default:
		if res.text != "" {
			o.storeAI(final, recipients, s, res.text)
		}
		return metrics.StatusCompleted
	}
}

// speechResult 是一个 AI 发言的结果
type speechResult struct {
	text        string
	heard       string
	interrupted bool
	err         error
}

// speak runs one Chat call for speaker and forwards every unit to recipients.
// On cancellation it drains the agent and calls HandleInterrupt exactly once
// with the client's heard text, or the text forwarded so far.
func (o *Orchestrator) speak(ctx context.Context, task *Task, speaker *session.Session, in agent.BatchInput, recipients []*session.Session) speechResult {
	ag := speaker.Agent()
	if ag == nil {
		return speechResult{err: types.Errorf(types.ErrProviderNotSet, "session %s has no agent", speaker.ID)}
	}

	var (
		spoken []string
		genErr error
	)
	for r := range ag.Chat(ctx, in) {
		if genErr != nil || ctx.Err() != nil {
			continue
		}
		if r.Err != nil {
			genErr = r.Err
			continue
		}
		ev, err := o.render(ctx, r.Output, speaker.Character)
		if err != nil {
			if ctx.Err() == nil {
				genErr = err
			}
			continue
		}
		if ctx.Err() != nil {
			continue
		}
		o.broadcast(ctx, speaker.ID, recipients, ev)
		if t := ev.DisplayText.Text; t != "" {
			spoken = append(spoken, t)
		}
	}

	text := strings.Join(spoken, " ")
	if ctx.Err() != nil {
		heard := task.Heard()
		if heard == "" {
			heard = text
		}
		ag.HandleInterrupt(heard)
		return speechResult{text: text, heard: heard, interrupted: true}
	}
	return speechResult{text: text, err: genErr}
}

// render turns an output unit into an audio event, synthesizing speech for
// sentence units with non-empty tts text.
func (o *Orchestrator) render(ctx context.Context, out output.Output, char config.CharacterConfig) (AudioEvent, error) {
	switch {
	case out.Kind == output.KindSentence && out.Sentence != nil:
		sent := out.Sentence
		audio := ""
		if o.tts != nil && strings.TrimSpace(sent.TTSText) != "" {
			path, err := o.tts.Synthesize(ctx, sent.TTSText, char.TTS)
			if err != nil {
				return AudioEvent{}, err
			}
			audio = path
		}
		return newAudioEvent(audio, sent.DisplayText, sent.Actions), nil
	case out.Kind == output.KindAudio && out.Audio != nil:
		a := out.Audio
		return newAudioEvent(a.AudioPath, a.DisplayText, a.Actions), nil
	default:
		return AudioEvent{}, types.Errorf(types.ErrInternalError, "invalid output unit kind %q", out.Kind)
	}
}

func (o *Orchestrator) transcribe(ctx context.Context, samples []float32) (string, error) {
	if o.asr == nil {
		return "", types.NewError(types.ErrCollaborator, "no ASR service configured")
	}
	return o.asr.Transcribe(ctx, samples)
}

// =============================================================================
// 📤 发送与存储
// =============================================================================

func (o *Orchestrator) send(ctx context.Context, s *session.Session, msg any) {
	if err := s.Send(ctx, msg); err != nil {
		o.logger.Debug("send failed", zap.String("session_id", s.ID), zap.Error(err))
	}
}

// broadcast sends ev to every recipient concurrently; copies for sessions
// other than the speaker are marked forwarded.
func (o *Orchestrator) broadcast(ctx context.Context, speakerID string, recipients []*session.Session, ev AudioEvent) {
	if len(recipients) == 1 {
		o.send(ctx, recipients[0], ev.forwardedCopy(recipients[0].ID != speakerID))
		return
	}
	var g errgroup.Group
	for _, r := range recipients {
		g.Go(func() error {
			return r.Send(ctx, ev.forwardedCopy(r.ID != speakerID))
		})
	}
	if err := g.Wait(); err != nil {
		o.logger.Debug("broadcast incomplete", zap.String("speaker", speakerID), zap.Error(err))
	}
}

func (o *Orchestrator) fail(s *session.Session, err error) {
	o.logger.Error("turn failed", zap.String("session_id", s.ID), zap.Error(err))
	o.send(o.ctx, s, Error(err.Error()))
}

// store appends msg to each recipient's active history.
func (o *Orchestrator) store(ctx context.Context, recipients []*session.Session, msg history.Message) {
	if o.history == nil {
		return
	}
	for _, r := range recipients {
		uid := r.HistoryUID()
		if uid == "" {
			continue
		}
		if err := o.history.Append(ctx, r.ConfUID(), uid, msg); err != nil {
			o.logger.Warn("history append failed",
				zap.String("session_id", r.ID),
				zap.String("history_uid", uid),
				zap.Error(err))
		}
	}
}

func (o *Orchestrator) storeAI(ctx context.Context, recipients []*session.Session, speaker *session.Session, text string) {
	c := speaker.Character
	o.store(ctx, recipients, history.NewMessage(history.RoleAI, text, c.CharacterName, c.Avatar))
}
