package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/companion/types"
)

// FileStore 将每段历史保存为 <root>/<conf_uid>/<history_uid>.json，
// 文件内容是 JSON 数组，首元素为 metadata。
type FileStore struct {
	root   string
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates a store rooted at root. The directory is created
// lazily on first write.
func NewFileStore(root string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		root:   root,
		logger: logger.With(zap.String("component", "history_file_store")),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *FileStore) lock(path string) func() {
	s.mu.Lock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *FileStore) path(confUID, historyUID string) (string, error) {
	if err := sanitizePair(confUID, historyUID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, confUID, historyUID+".json"), nil
}

// Create implements Store.
func (s *FileStore) Create(ctx context.Context, confUID string) (string, error) {
	if _, err := SanitizePathComponent(confUID); err != nil {
		return "", err
	}
	uid := NewUID(time.Now())
	path, _ := s.path(confUID, uid)

	unlock := s.lock(path)
	defer unlock()

	meta := []Message{{Role: RoleMetadata, Timestamp: time.Now().UTC().Truncate(time.Second)}}
	if err := writeEntries(path, meta); err != nil {
		return "", ioError("create", confUID, uid, err)
	}
	s.logger.Info("history created", zap.String("conf_uid", confUID), zap.String("history_uid", uid))
	return uid, nil
}

// Append implements Store. A missing file is created with its metadata entry.
func (s *FileStore) Append(ctx context.Context, confUID, historyUID string, msg Message) error {
	path, err := s.path(confUID, historyUID)
	if err != nil {
		return err
	}
	if !validRole(msg.Role) {
		return types.Errorf(types.ErrInvalidRequest, "invalid history role %q", msg.Role)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC().Truncate(time.Second)
	}

	unlock := s.lock(path)
	defer unlock()

	entries, err := readEntries(path)
	if errors.Is(err, fs.ErrNotExist) {
		entries = []Message{{Role: RoleMetadata, Timestamp: msg.Timestamp}}
	} else if err != nil {
		return ioError("append", confUID, historyUID, err)
	}
	entries = append(entries, msg)
	if err := writeEntries(path, entries); err != nil {
		return ioError("append", confUID, historyUID, err)
	}
	return nil
}

// Read implements Store.
func (s *FileStore) Read(ctx context.Context, confUID, historyUID string) ([]Message, error) {
	path, err := s.path(confUID, historyUID)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(path)
	entries, err := readEntries(path)
	unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, types.Errorf(types.ErrHistoryNotFound, "history %s/%s not found", confUID, historyUID)
	}
	if err != nil {
		return nil, ioError("read", confUID, historyUID, err)
	}
	return withoutMetadata(entries), nil
}

// List implements Store.
func (s *FileStore) List(ctx context.Context, confUID string) ([]Info, error) {
	if _, err := SanitizePathComponent(confUID); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, confUID)
	files, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, ioError("list", confUID, "", err)
	}

	infos := make([]Info, 0, len(files))
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		uid := strings.TrimSuffix(f.Name(), ".json")
		msgs, err := s.Read(ctx, confUID, uid)
		if err != nil {
			s.logger.Warn("skip unreadable history", zap.String("history_uid", uid), zap.Error(err))
			continue
		}
		if info, ok := infoFor(uid, msgs); ok {
			infos = append(infos, info)
		}
	}
	sortInfos(infos)
	return infos, nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, confUID, historyUID string) error {
	path, err := s.path(confUID, historyUID)
	if err != nil {
		return err
	}
	unlock := s.lock(path)
	defer unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ioError("delete", confUID, historyUID, err)
	}
	s.logger.Info("history deleted", zap.String("conf_uid", confUID), zap.String("history_uid", historyUID))
	return nil
}

func readEntries(path string) ([]Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []Message
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return entries, nil
}

// writeEntries writes through a temp file so readers never see a torn file.
func writeEntries(path string, entries []Message) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".history-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func withoutMetadata(entries []Message) []Message {
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		if e.Role != RoleMetadata {
			out = append(out, e)
		}
	}
	return out
}

// infoFor summarises a history; empty histories report false.
func infoFor(uid string, msgs []Message) (Info, bool) {
	if len(msgs) == 0 {
		return Info{}, false
	}
	latest := msgs[len(msgs)-1]
	return Info{UID: uid, LatestMessage: &latest, Timestamp: latest.Timestamp}, true
}

// sortInfos orders most recent first, breaking ties by uid descending.
func sortInfos(infos []Info) {
	sort.SliceStable(infos, func(i, j int) bool {
		if !infos[i].Timestamp.Equal(infos[j].Timestamp) {
			return infos[i].Timestamp.After(infos[j].Timestamp)
		}
		return infos[i].UID > infos[j].UID
	})
}

func ioError(op, confUID, historyUID string, err error) *types.Error {
	return types.Errorf(types.ErrHistoryIO, "history %s %s/%s failed", op, confUID, historyUID).WithCause(err)
}

var _ Store = (*FileStore)(nil)
