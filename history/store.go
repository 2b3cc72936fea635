package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/companion/internal/cache"
)

// Store 是历史记录协作方的统一接口。
// 所有实现都在访问存储之前校验 confUID 与 historyUID。
type Store interface {
	// Create starts an empty history and returns its id.
	Create(ctx context.Context, confUID string) (string, error)
	// Append adds one message to the end of a history.
	Append(ctx context.Context, confUID, historyUID string, msg Message) error
	// List returns the histories of confUID, most recent first. Histories
	// without messages are left out.
	List(ctx context.Context, confUID string) ([]Info, error)
	// Read returns the messages in insertion order, metadata excluded.
	Read(ctx context.Context, confUID, historyUID string) ([]Message, error)
	// Delete removes a history. Deleting a missing history is not an error.
	Delete(ctx context.Context, confUID, historyUID string) error
}

// Closer 由持有连接的 Store 实现
type Closer interface {
	Close(ctx context.Context) error
}

// CacheReporter 由带缓存的 Store 实现，导出缓存统计
type CacheReporter interface {
	CacheStats(ctx context.Context) (*cache.Stats, error)
}

// NewUID returns a history id of the form YYYY-MM-DD_HH-MM-SS_<uuid hex>.
func NewUID(now time.Time) string {
	return fmt.Sprintf("%s_%s", now.Format("2006-01-02_15-04-05"), strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// NewMessage builds a message stamped with the current time.
func NewMessage(role, content, name, avatar string) Message {
	return Message{Role: role, Timestamp: time.Now().UTC().Truncate(time.Second), Content: content, Name: name, Avatar: avatar}
}

func validRole(role string) bool {
	switch role {
	case RoleHuman, RoleAI, RoleSystem:
		return true
	}
	return false
}
