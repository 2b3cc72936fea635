package group

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/companion/types"
)

func TestManager_InviteCreatesGroup(t *testing.T) {
	m := NewManager(nil)

	change, err := m.AddClientToGroup("A", "B")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, change.Affected)

	snap, ok := m.GetClientGroup("B")
	require.True(t, ok)
	assert.Equal(t, "A", snap.Owner)
	assert.Equal(t, []string{"A", "B"}, snap.Members)
	assert.True(t, m.IsOwner("A"))
	assert.False(t, m.IsOwner("B"))

	_, err = m.AddClientToGroup("B", "C")
	require.NoError(t, err, "any member may invite")
	assert.Equal(t, []string{"A", "B", "C"}, m.GetGroupMembers("A"))
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 3, m.MemberCount())
}

func TestManager_InviteErrors(t *testing.T) {
	m := NewManager(nil)
	_, err := m.AddClientToGroup("A", "A")
	assert.True(t, types.IsCode(err, types.ErrGroupOperation))

	_, err = m.AddClientToGroup("A", "B")
	require.NoError(t, err)
	_, err = m.AddClientToGroup("C", "B")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in a group")

	_, err = m.AddClientToGroup("", "B")
	assert.Error(t, err)
}

func TestManager_Remove(t *testing.T) {
	m := NewManager(nil)
	_, _ = m.AddClientToGroup("A", "B")
	_, _ = m.AddClientToGroup("A", "C")

	_, err := m.RemoveClientFromGroup("B", "C")
	require.Error(t, err, "non-owner cannot remove others")

	change, err := m.RemoveClientFromGroup("A", "C")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, change.Affected)
	assert.False(t, change.Dissolved)
	assert.Empty(t, m.GetGroupMembers("C"))

	change, err = m.RemoveClientFromGroup("B", "B")
	require.NoError(t, err)
	assert.True(t, change.Dissolved)
	assert.Empty(t, m.GetGroupMembers("A"))
	assert.Zero(t, m.Len())
	assert.Zero(t, m.MemberCount())

	_, err = m.RemoveClientFromGroup("A", "A")
	assert.Error(t, err)
}

func TestManager_OwnerLeavesTransfersOwnership(t *testing.T) {
	m := NewManager(nil)
	_, _ = m.AddClientToGroup("A", "B")
	_, _ = m.AddClientToGroup("A", "C")

	change, ok := m.RemoveClient("A")
	require.True(t, ok)
	assert.False(t, change.Dissolved)
	assert.True(t, m.IsOwner("B"))
	assert.Equal(t, []string{"B", "C"}, m.GetGroupMembers("C"))

	_, ok = m.RemoveClient("Z")
	assert.False(t, ok)
}

func TestManager_SoloSessionHasNoMembers(t *testing.T) {
	m := NewManager(nil)
	assert.Empty(t, m.GetGroupMembers("solo"))
	_, ok := m.GetClientGroup("solo")
	assert.False(t, ok)
}

func TestManager_ConcurrentReadsDuringChanges(t *testing.T) {
	m := NewManager(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = m.AddClientToGroup("owner", fmt.Sprintf("m%d", i))
		}(i)
		go func() {
			defer wg.Done()
			_ = m.GetGroupMembers("owner")
		}()
	}
	wg.Wait()
	assert.Len(t, m.GetGroupMembers("owner"), 21)
}

// 任意操作序列后：每个会话至多在一个群中，成员唯一，群组至少两人
func TestManager_InvariantsHold(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewManager(nil)
		ids := []string{"a", "b", "c", "d", "e"}
		pick := rapid.SampledFrom(ids)

		steps := rapid.IntRange(0, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			x, y := pick.Draw(t, "x"), pick.Draw(t, "y")
			if rapid.Bool().Draw(t, "add") {
				_, _ = m.AddClientToGroup(x, y)
			} else {
				_, _ = m.RemoveClientFromGroup(x, y)
			}
		}

		seen := map[string]string{}
		for _, id := range ids {
			snap, ok := m.GetClientGroup(id)
			if !ok {
				continue
			}
			if len(snap.Members) < 2 {
				t.Fatalf("group %s has %d members", snap.ID, len(snap.Members))
			}
			uniq := map[string]bool{}
			for _, mem := range snap.Members {
				if uniq[mem] {
					t.Fatalf("duplicate member %s", mem)
				}
				uniq[mem] = true
				if prev, ok := seen[mem]; ok && prev != snap.ID {
					t.Fatalf("%s in two groups", mem)
				}
				seen[mem] = snap.ID
			}
			if !uniq[id] || !uniq[snap.Owner] {
				t.Fatalf("membership lookup inconsistent for %s", id)
			}
		}
	})
}
