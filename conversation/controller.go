package conversation

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/companion/types"
)

// =============================================================================
// ✋ 打断控制器
// =============================================================================

// Task 是一个正在运行的对话轮次的取消句柄。
type Task struct {
	key    string
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	heard       string
	interrupted bool
}

// Key returns the controller key the task is registered under.
func (t *Task) Key() string { return t.key }

// Done is closed when the turn goroutine has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Interrupted reports whether the task was aborted by an interrupt signal.
func (t *Task) Interrupted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interrupted
}

// Heard returns the text the client reported hearing before the interrupt.
func (t *Task) Heard() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.heard
}

func (t *Task) abort(heard string, interrupted bool) {
	t.mu.Lock()
	if interrupted && !t.interrupted {
		t.interrupted = true
		t.heard = heard
	}
	t.mu.Unlock()
	t.cancel()
}

// TaskController 维护 key（会话 ID 或 group:<id>）到运行中轮次的映射。
// 同一 key 同一时间至多一个轮次；被打断但尚未退出的轮次记在 stopping 中，
// 新轮次会等它结束后再开始，保证同一 Agent 不会并发 Chat。
type TaskController struct {
	mu       sync.Mutex
	running  map[string]*Task
	stopping map[string]*Task
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// NewTaskController creates an empty controller.
func NewTaskController(logger *zap.Logger) *TaskController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskController{
		running:  make(map[string]*Task),
		stopping: make(map[string]*Task),
		logger:   logger.With(zap.String("component", "task_controller")),
	}
}

// Start registers a new turn under key and returns its context. It first
// waits for an interrupted turn under key to exit. A key with a turn still
// running yields ErrAgentBusy.
func (c *TaskController) Start(parent context.Context, key string) (context.Context, *Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		prev, ok := c.stopping[key]
		if !ok {
			break
		}
		c.mu.Unlock()
		select {
		case <-prev.done:
		case <-parent.Done():
			c.mu.Lock()
			return nil, nil, parent.Err()
		}
		c.mu.Lock()
	}

	if err := parent.Err(); err != nil {
		return nil, nil, err
	}
	if _, ok := c.running[key]; ok {
		return nil, nil, types.Errorf(types.ErrAgentBusy, "a conversation is already running for %s", key)
	}
	ctx, cancel := context.WithCancel(parent)
	t := &Task{key: key, cancel: cancel, done: make(chan struct{})}
	c.running[key] = t
	c.wg.Add(1)
	return ctx, t, nil
}

// Finish removes t if it is still the registered task for its key and marks
// it done. Call exactly once from the turn goroutine.
func (c *TaskController) Finish(t *Task) {
	c.mu.Lock()
	if c.running[t.key] == t {
		delete(c.running, t.key)
	}
	if c.stopping[t.key] == t {
		delete(c.stopping, t.key)
	}
	c.mu.Unlock()
	t.cancel()
	close(t.done)
	c.wg.Done()
}

// Interrupt aborts the turn running under key, records the heard text, and
// removes the mapping. It reports whether a turn was found.
func (c *TaskController) Interrupt(key, heard string) (*Task, bool) {
	t, ok := c.detach(key)
	if !ok {
		return nil, false
	}
	c.logger.Info("turn interrupted", zap.String("task", key), zap.Int("heard_len", len(heard)))
	t.abort(heard, true)
	return t, true
}

// Cancel aborts the turn under key without treating it as an interrupt
// (used on disconnect).
func (c *TaskController) Cancel(key string) bool {
	t, ok := c.detach(key)
	if ok {
		t.abort("", false)
	}
	return ok
}

// detach moves the running task under key to stopping.
func (c *TaskController) detach(key string) (*Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.running[key]
	if ok {
		delete(c.running, key)
		c.stopping[key] = t
	}
	return t, ok
}

// CancelAll aborts every running turn.
func (c *TaskController) CancelAll() {
	c.mu.Lock()
	tasks := make([]*Task, 0, len(c.running))
	for k, t := range c.running {
		tasks = append(tasks, t)
		delete(c.running, k)
		c.stopping[k] = t
	}
	c.mu.Unlock()
	for _, t := range tasks {
		t.abort("", false)
	}
}

// Active reports whether a turn is registered under key.
func (c *TaskController) Active(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.running[key]
	return ok
}

// WaitIdle blocks until no turn is running or stopping under key.
func (c *TaskController) WaitIdle(ctx context.Context, key string) error {
	for {
		c.mu.Lock()
		t, ok := c.running[key]
		if !ok {
			t, ok = c.stopping[key]
		}
		c.mu.Unlock()
		if !ok {
			return nil
		}
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Len returns the number of registered turns.
func (c *TaskController) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.running)
}

// Wait blocks until every started turn has finished or ctx ends.
func (c *TaskController) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
