package group

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/companion/types"
)

// Group 是共享一段对话的会话集合。成员按加入顺序排列且唯一。
type Group struct {
	ID string

	mu      sync.RWMutex
	owner   string
	members []string
}

func (g *Group) snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Snapshot{ID: g.ID, Owner: g.owner, Members: append([]string(nil), g.members...)}
}

// Snapshot 是群组在某一时刻的只读副本
type Snapshot struct {
	ID      string   `json:"id"`
	Owner   string   `json:"owner"`
	Members []string `json:"members"`
}

// Change 描述一次成员变更的结果
type Change struct {
	GroupID string
	// Affected 是需要收到 group-update 的会话，包含被移除者
	Affected []string
	// Dissolved 表示群组已解散
	Dissolved bool
}

// Manager 维护会话到群组、群组到成员的映射。
// 一个会话同一时间至多属于一个群组。
type Manager struct {
	mu          sync.RWMutex
	groups      map[string]*Group
	clientGroup map[string]string
	logger      *zap.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		groups:      make(map[string]*Group),
		clientGroup: make(map[string]string),
		logger:      logger.With(zap.String("component", "group_manager")),
	}
}

// AddClientToGroup adds invitee to the inviter's group, creating the group
// with the inviter as owner when the inviter is solo.
func (m *Manager) AddClientToGroup(inviter, invitee string) (Change, error) {
	if inviter == "" || invitee == "" {
		return Change{}, types.NewError(types.ErrGroupOperation, "inviter and invitee are required")
	}
	if inviter == invitee {
		return Change{}, types.NewError(types.ErrGroupOperation, "Cannot invite yourself")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clientGroup[invitee]; ok {
		return Change{}, types.Errorf(types.ErrGroupOperation, "Client %s is already in a group", invitee)
	}

	g, ok := m.groups[m.clientGroup[inviter]]
	if !ok {
		g = &Group{ID: uuid.NewString(), owner: inviter, members: []string{inviter}}
		m.groups[g.ID] = g
		m.clientGroup[inviter] = g.ID
		m.logger.Info("group created", zap.String("group_id", g.ID), zap.String("owner", inviter))
	}

	g.mu.Lock()
	g.members = append(g.members, invitee)
	affected := append([]string(nil), g.members...)
	g.mu.Unlock()
	m.clientGroup[invitee] = g.ID

	m.logger.Info("client joined group",
		zap.String("group_id", g.ID),
		zap.String("inviter", inviter),
		zap.String("invitee", invitee))
	return Change{GroupID: g.ID, Affected: affected}, nil
}

// RemoveClientFromGroup removes target from remover's group. Only the owner
// may remove others; anyone may remove themselves. A group left with fewer
// than two members is dissolved.
func (m *Manager) RemoveClientFromGroup(remover, target string) (Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gid, ok := m.clientGroup[remover]
	if !ok {
		return Change{}, types.Errorf(types.ErrGroupOperation, "Client %s is not in a group", remover)
	}
	if m.clientGroup[target] != gid {
		return Change{}, types.Errorf(types.ErrGroupOperation, "Client %s is not in the same group", target)
	}
	g := m.groups[gid]

	g.mu.Lock()
	defer g.mu.Unlock()

	if remover != target && remover != g.owner {
		return Change{}, types.NewError(types.ErrGroupOperation, "Only the group owner can remove other members")
	}

	affected := append([]string(nil), g.members...)
	g.members = removeString(g.members, target)
	delete(m.clientGroup, target)

	if target == g.owner && len(g.members) > 0 {
		g.owner = g.members[0]
		m.logger.Info("group ownership transferred", zap.String("group_id", gid), zap.String("owner", g.owner))
	}

	change := Change{GroupID: gid, Affected: affected}
	if len(g.members) <= 1 {
		for _, id := range g.members {
			delete(m.clientGroup, id)
		}
		g.members = nil
		delete(m.groups, gid)
		change.Dissolved = true
		m.logger.Info("group dissolved", zap.String("group_id", gid))
	}
	return change, nil
}

// RemoveClient drops id from its group, if any. Used on disconnect.
func (m *Manager) RemoveClient(id string) (Change, bool) {
	change, err := m.RemoveClientFromGroup(id, id)
	if err != nil {
		return Change{}, false
	}
	return change, true
}

// GetClientGroup returns a snapshot of id's group.
func (m *Manager) GetClientGroup(id string) (Snapshot, bool) {
	m.mu.RLock()
	g, ok := m.groups[m.clientGroup[id]]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return g.snapshot(), true
}

// GetGroupMembers returns the members of id's group in join order, or nil
// when id is solo.
func (m *Manager) GetGroupMembers(id string) []string {
	snap, ok := m.GetClientGroup(id)
	if !ok {
		return nil
	}
	return snap.Members
}

// IsOwner reports whether id owns its group.
func (m *Manager) IsOwner(id string) bool {
	snap, ok := m.GetClientGroup(id)
	return ok && snap.Owner == id
}

// Len returns the number of live groups.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.groups)
}

// MemberCount returns the number of grouped sessions.
func (m *Manager) MemberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clientGroup)
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
