package conversation

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/types"
)

// AutonomousPrompts 是定时主动发言随机选用的提示
var AutonomousPrompts = []string{
	"Say something interesting about yourself",
	"Share a random thought",
	"What's on your mind?",
	"Tell me something fun",
	"What would you like to talk about?",
	"Share a random observation",
	"What's happening?",
	"Say something spontaneous",
	"What are you thinking about?",
	"Share something random",
}

// fallbackInterval 在配置没有给出任何间隔时使用
const fallbackInterval = 2 * time.Minute

// AutonomousStatus 是定时发言器的当前设置
type AutonomousStatus struct {
	Enabled     bool
	Interval    time.Duration
	MinInterval time.Duration
	MaxInterval time.Duration
	LastRun     time.Time
}

// =============================================================================
// ⏰ 定时主动发言
// =============================================================================

// Autonomous 在随机间隔后让每个在线会话的 AI 主动说一句话。
// 同一群组只触发一次；正在进行轮次的会话本轮跳过。
type Autonomous struct {
	orch   *Orchestrator
	logger *zap.Logger

	// 测试中替换为确定性实现
	pickPrompt func() string
	between    func(lo, hi time.Duration) time.Duration

	mu      sync.Mutex
	cfg     config.AutonomousConfig
	lastRun time.Time
	wake    chan struct{}
}

// NewAutonomous creates a generator driving turns through orch.
func NewAutonomous(orch *Orchestrator, cfg config.AutonomousConfig, logger *zap.Logger) *Autonomous {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Autonomous{
		orch:   orch,
		logger: logger.With(zap.String("component", "autonomous")),
		pickPrompt: func() string {
			return AutonomousPrompts[rand.IntN(len(AutonomousPrompts))]
		},
		between: func(lo, hi time.Duration) time.Duration {
			return lo + rand.N(hi-lo)
		},
		cfg:  cfg,
		wake: make(chan struct{}, 1),
	}
}

// Run waits a random interval, speaks if enabled, and repeats until ctx ends.
// Changing the settings restarts the current wait.
func (a *Autonomous) Run(ctx context.Context) {
	for {
		timer := time.NewTimer(a.nextWait())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-a.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}
		if a.Status().Enabled {
			a.Generate("")
		}
	}
}

// Generate starts one proactive turn per idle session or group using prompt,
// or a random prompt when empty. It returns the number of turns started.
func (a *Autonomous) Generate(prompt string) int {
	if prompt == "" {
		prompt = a.pickPrompt()
	}
	a.mu.Lock()
	a.lastRun = time.Now()
	a.mu.Unlock()

	ids := a.orch.sessions.IDs()
	if len(ids) == 0 {
		a.logger.Debug("no connected clients, skipping")
		return 0
	}

	started := 0
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		key, _ := a.orch.route(id)
		if seen[key] {
			continue
		}
		seen[key] = true

		s, ok := a.orch.sessions.Get(id)
		if !ok {
			continue
		}
		if err := a.orch.HandlePrompt(s, prompt); err != nil {
			a.logger.Debug("session skipped", zap.String("session_id", id), zap.Error(err))
			continue
		}
		started++
	}
	a.logger.Info("autonomous message triggered", zap.String("prompt", prompt), zap.Int("turns", started))
	return started
}

// SetEnabled switches periodic speaking on or off.
func (a *Autonomous) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.cfg.Enabled = enabled
	a.mu.Unlock()
	a.logger.Info("autonomous generator toggled", zap.Bool("enabled", enabled))
	a.poke()
}

// SetInterval updates the base interval and, when given, the random range.
func (a *Autonomous) SetInterval(interval time.Duration, minInterval, maxInterval *time.Duration) error {
	a.mu.Lock()
	next := a.cfg
	next.Interval = interval
	if minInterval != nil {
		next.MinInterval = *minInterval
	}
	if maxInterval != nil {
		next.MaxInterval = *maxInterval
	}
	switch {
	case next.Interval <= 0 || next.MinInterval < 0 || next.MaxInterval < 0:
		a.mu.Unlock()
		return types.NewError(types.ErrInvalidRequest, "intervals must be positive")
	case next.MaxInterval > 0 && next.MinInterval > next.MaxInterval:
		a.mu.Unlock()
		return types.NewError(types.ErrInvalidRequest, "min_interval exceeds max_interval")
	}
	a.cfg = next
	a.mu.Unlock()

	a.logger.Info("autonomous interval updated",
		zap.Duration("interval", next.Interval),
		zap.Duration("min_interval", next.MinInterval),
		zap.Duration("max_interval", next.MaxInterval))
	a.poke()
	return nil
}

// Status returns the current settings.
func (a *Autonomous) Status() AutonomousStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AutonomousStatus{
		Enabled:     a.cfg.Enabled,
		Interval:    a.cfg.Interval,
		MinInterval: a.cfg.MinInterval,
		MaxInterval: a.cfg.MaxInterval,
		LastRun:     a.lastRun,
	}
}

// nextWait 在 [min, max) 内取随机值；范围无效时退回固定间隔
func (a *Autonomous) nextWait() time.Duration {
	st := a.Status()
	lo, hi := st.MinInterval, st.MaxInterval
	switch {
	case lo > 0 && hi > lo:
		return a.between(lo, hi)
	case lo > 0 && hi == lo:
		return lo
	case st.Interval > 0:
		return st.Interval
	default:
		return fallbackInterval
	}
}

func (a *Autonomous) poke() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}
