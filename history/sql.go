package history

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/companion/internal/database"
	"github.com/BaSui01/companion/types"
)

// =============================================================================
// 🗄️ SQL 历史存储
// =============================================================================

// ChatHistory 对应 chat_histories 表
type ChatHistory struct {
	ID         uint      `gorm:"primaryKey"`
	ConfUID    string    `gorm:"size:255;not null;uniqueIndex:idx_chat_histories_conf_history,priority:1;index:idx_chat_histories_conf_updated,priority:1"`
	HistoryUID string    `gorm:"size:255;not null;uniqueIndex:idx_chat_histories_conf_history,priority:2"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null;index:idx_chat_histories_conf_updated,priority:2"`
}

// TableName 指定表名
func (ChatHistory) TableName() string { return "chat_histories" }

// ChatMessage 对应 chat_messages 表，按自增 ID 保持插入顺序
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey"`
	HistoryID uint      `gorm:"not null;index:idx_chat_messages_history"`
	Role      string    `gorm:"size:16;not null"`
	Content   string    `gorm:"type:text"`
	Name      string    `gorm:"size:255"`
	Avatar    string    `gorm:"size:512"`
	Timestamp time.Time `gorm:"not null"`
}

// TableName 指定表名
func (ChatMessage) TableName() string { return "chat_messages" }

func (m ChatMessage) toMessage() Message {
	return Message{Role: m.Role, Timestamp: m.Timestamp.UTC(), Content: m.Content, Name: m.Name, Avatar: m.Avatar}
}

// SQLStore 基于 gorm 的历史存储，支持 postgres、mysql 与 sqlite。
type SQLStore struct {
	pool       *database.PoolManager
	logger     *zap.Logger
	maxRetries int
}

// NewSQLStore wraps an opened pool. The schema is expected to exist; use
// AutoMigrate in tests or the migration command in deployments.
func NewSQLStore(pool *database.PoolManager, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{
		pool:       pool,
		logger:     logger.With(zap.String("component", "history_sql_store")),
		maxRetries: 3,
	}
}

// AutoMigrate 通过 gorm 创建表结构
func (s *SQLStore) AutoMigrate(ctx context.Context) error {
	if err := s.pool.DB().WithContext(ctx).AutoMigrate(&ChatHistory{}, &ChatMessage{}); err != nil {
		return types.Errorf(types.ErrHistoryIO, "history schema migration failed").WithCause(err)
	}
	return nil
}

// Create implements Store.
func (s *SQLStore) Create(ctx context.Context, confUID string) (string, error) {
	if _, err := SanitizePathComponent(confUID); err != nil {
		return "", err
	}
	uid := NewUID(time.Now())
	now := time.Now().UTC()
	row := ChatHistory{ConfUID: confUID, HistoryUID: uid, CreatedAt: now, UpdatedAt: now}
	if err := s.pool.DB().WithContext(ctx).Create(&row).Error; err != nil {
		return "", ioError("create", confUID, uid, err)
	}
	s.logger.Info("history created", zap.String("conf_uid", confUID), zap.String("history_uid", uid))
	return uid, nil
}

// Append implements Store. A missing history row is created first.
func (s *SQLStore) Append(ctx context.Context, confUID, historyUID string, msg Message) error {
	if err := sanitizePair(confUID, historyUID); err != nil {
		return err
	}
	if !validRole(msg.Role) {
		return types.Errorf(types.ErrInvalidRequest, "invalid history role %q", msg.Role)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC().Truncate(time.Second)
	}

	err := s.pool.WithTransactionRetry(ctx, s.maxRetries, func(tx *gorm.DB) error {
		h := ChatHistory{ConfUID: confUID, HistoryUID: historyUID}
		now := time.Now().UTC()
		if err := tx.Where(&h).Attrs(ChatHistory{CreatedAt: now, UpdatedAt: now}).FirstOrCreate(&h).Error; err != nil {
			return err
		}
		row := ChatMessage{
			HistoryID: h.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			Name:      msg.Name,
			Avatar:    msg.Avatar,
			Timestamp: msg.Timestamp.UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Model(&h).Update("updated_at", now).Error
	})
	if err != nil {
		return ioError("append", confUID, historyUID, err)
	}
	return nil
}

// Read implements Store.
func (s *SQLStore) Read(ctx context.Context, confUID, historyUID string) ([]Message, error) {
	if err := sanitizePair(confUID, historyUID); err != nil {
		return nil, err
	}
	db := s.pool.DB().WithContext(ctx)

	var h ChatHistory
	err := db.Where("conf_uid = ? AND history_uid = ?", confUID, historyUID).First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.Errorf(types.ErrHistoryNotFound, "history %s/%s not found", confUID, historyUID)
	}
	if err != nil {
		return nil, ioError("read", confUID, historyUID, err)
	}

	var rows []ChatMessage
	if err := db.Where("history_id = ?", h.ID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, ioError("read", confUID, historyUID, err)
	}
	msgs := make([]Message, len(rows))
	for i, r := range rows {
		msgs[i] = r.toMessage()
	}
	return msgs, nil
}

// latestRow 是 List 查询的结果行
type latestRow struct {
	HistoryUID string
	ChatMessage
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context, confUID string) ([]Info, error) {
	if _, err := SanitizePathComponent(confUID); err != nil {
		return nil, err
	}

	var rows []latestRow
	err := s.pool.DB().WithContext(ctx).Raw(`
SELECT h.history_uid, m.id, m.history_id, m.role, m.content, m.name, m.avatar, m.timestamp
FROM chat_messages m
JOIN (SELECT history_id, MAX(id) AS max_id FROM chat_messages GROUP BY history_id) latest
  ON m.id = latest.max_id
JOIN chat_histories h ON h.id = m.history_id
WHERE h.conf_uid = ?`, confUID).Scan(&rows).Error
	if err != nil {
		return nil, ioError("list", confUID, "", err)
	}

	infos := make([]Info, 0, len(rows))
	for _, r := range rows {
		latest := r.ChatMessage.toMessage()
		infos = append(infos, Info{UID: r.HistoryUID, LatestMessage: &latest, Timestamp: latest.Timestamp})
	}
	sortInfos(infos)
	return infos, nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, confUID, historyUID string) error {
	if err := sanitizePair(confUID, historyUID); err != nil {
		return err
	}
	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		var h ChatHistory
		err := tx.Where("conf_uid = ? AND history_uid = ?", confUID, historyUID).First(&h).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Where("history_id = ?", h.ID).Delete(&ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Delete(&h).Error
	})
	if err != nil {
		return ioError("delete", confUID, historyUID, err)
	}
	s.logger.Info("history deleted", zap.String("conf_uid", confUID), zap.String("history_uid", historyUID))
	return nil
}

// Close 关闭底层连接池
func (s *SQLStore) Close(ctx context.Context) error {
	return s.pool.Close()
}

var (
	_ Store  = (*SQLStore)(nil)
	_ Closer = (*SQLStore)(nil)
)
