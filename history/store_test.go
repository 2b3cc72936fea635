package history

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/companion/config"
	"github.com/BaSui01/companion/internal/database"
	"github.com/BaSui01/companion/types"
)

var uidPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}_[0-9a-f]{32}$`)

// storeContract 对所有 Store 实现执行相同的行为检查
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("create then append and read", func(t *testing.T) {
		s := newStore(t)
		uid, err := s.Create(ctx, "conf")
		require.NoError(t, err)
		assert.Regexp(t, uidPattern, uid)

		msgs, err := s.Read(ctx, "conf", uid)
		require.NoError(t, err)
		assert.Empty(t, msgs)

		require.NoError(t, s.Append(ctx, "conf", uid, Message{Role: RoleHuman, Content: "hi", Name: "Human", Timestamp: base}))
		require.NoError(t, s.Append(ctx, "conf", uid, Message{Role: RoleAI, Content: "hello", Name: "Mao", Avatar: "mao.png", Timestamp: base.Add(time.Second)}))

		msgs, err = s.Read(ctx, "conf", uid)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, RoleHuman, msgs[0].Role)
		assert.Equal(t, "hi", msgs[0].Content)
		assert.Equal(t, "Human", msgs[0].Name)
		assert.Equal(t, RoleAI, msgs[1].Role)
		assert.Equal(t, "hello", msgs[1].Content)
		assert.Equal(t, "mao.png", msgs[1].Avatar)
		assert.True(t, msgs[1].Timestamp.Equal(base.Add(time.Second)))
	})

	t.Run("list excludes empty and orders most recent first", func(t *testing.T) {
		s := newStore(t)
		older, err := s.Create(ctx, "conf")
		require.NoError(t, err)
		newer, err := s.Create(ctx, "conf")
		require.NoError(t, err)
		_, err = s.Create(ctx, "conf")
		require.NoError(t, err)

		require.NoError(t, s.Append(ctx, "conf", older, Message{Role: RoleHuman, Content: "old", Timestamp: base}))
		require.NoError(t, s.Append(ctx, "conf", newer, Message{Role: RoleHuman, Content: "q", Timestamp: base.Add(time.Minute)}))
		require.NoError(t, s.Append(ctx, "conf", newer, Message{Role: RoleAI, Content: "new", Timestamp: base.Add(2 * time.Minute)}))

		infos, err := s.List(ctx, "conf")
		require.NoError(t, err)
		require.Len(t, infos, 2)
		assert.Equal(t, newer, infos[0].UID)
		require.NotNil(t, infos[0].LatestMessage)
		assert.Equal(t, "new", infos[0].LatestMessage.Content)
		assert.Equal(t, older, infos[1].UID)

		other, err := s.List(ctx, "other-conf")
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("append creates a missing history", func(t *testing.T) {
		s := newStore(t)
		uid := NewUID(base)
		require.NoError(t, s.Append(ctx, "conf", uid, Message{Role: RoleHuman, Content: "first"}))
		msgs, err := s.Read(ctx, "conf", uid)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.False(t, msgs[0].Timestamp.IsZero())
	})

	t.Run("read missing and delete", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Read(ctx, "conf", "nope")
		assert.True(t, types.IsCode(err, types.ErrHistoryNotFound), "got %v", err)

		uid, err := s.Create(ctx, "conf")
		require.NoError(t, err)
		require.NoError(t, s.Append(ctx, "conf", uid, Message{Role: RoleHuman, Content: "x"}))
		require.NoError(t, s.Delete(ctx, "conf", uid))

		_, err = s.Read(ctx, "conf", uid)
		assert.True(t, types.IsCode(err, types.ErrHistoryNotFound))
		// 删除不存在的历史不报错
		assert.NoError(t, s.Delete(ctx, "conf", uid))
	})

	t.Run("invalid identifiers are rejected", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, "../etc")
		assert.True(t, types.IsCode(err, types.ErrInvalidIdentifier))
		_, err = s.Read(ctx, "conf", "..")
		assert.True(t, types.IsCode(err, types.ErrInvalidIdentifier))
		err = s.Append(ctx, "conf", "a/b", Message{Role: RoleHuman})
		assert.True(t, types.IsCode(err, types.ErrInvalidIdentifier))
		_, err = s.List(ctx, "")
		assert.True(t, types.IsCode(err, types.ErrInvalidIdentifier))
		err = s.Delete(ctx, "conf\x00", "x")
		assert.True(t, types.IsCode(err, types.ErrInvalidIdentifier))
	})

	t.Run("invalid role is rejected", func(t *testing.T) {
		s := newStore(t)
		uid, err := s.Create(ctx, "conf")
		require.NoError(t, err)
		err = s.Append(ctx, "conf", uid, Message{Role: RoleMetadata})
		assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
	})
}

func TestFileStore_Contract(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		return NewFileStore(t.TempDir(), zap.NewNop())
	})
}

func TestSQLStore_Contract(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		return newSQLiteStore(t)
	})
}

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	pool, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		Name:   filepath.Join(t.TempDir(), "history.db"),
	}, zap.NewNop())
	require.NoError(t, err)

	s := NewSQLStore(pool, zap.NewNop())
	require.NoError(t, s.AutoMigrate(context.Background()))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestNewUID(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	uid := NewUID(now)
	assert.Regexp(t, uidPattern, uid)
	assert.Equal(t, "2026-01-02_03-04-05_", uid[:20])
	assert.NotEqual(t, uid, NewUID(now))
}

func TestFileStore_Layout(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(root, nil)
	ctx := context.Background()

	uid, err := s.Create(ctx, "conf")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "conf", uid, NewMessage(RoleHuman, "hi", "Human", "")))

	entries, err := readEntries(filepath.Join(root, "conf", uid+".json"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, RoleMetadata, entries[0].Role)
	assert.Equal(t, "hi", entries[1].Content)
}
