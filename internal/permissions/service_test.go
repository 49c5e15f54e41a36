package permissions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nova-admin/nova-admin/internal/platform/httpx"
)

type memoryPermissionRepo struct {
	perms  map[int64]Permission
	nextID int64
	// roleEdges maps permission id to the role ids holding it, mirroring the
	// role_permissions table.
	roleEdges map[int64][]int64
}

func newMemoryPermissionRepo(seed ...Permission) *memoryPermissionRepo {
	repo := &memoryPermissionRepo{
		perms:     make(map[int64]Permission),
		nextID:    1,
		roleEdges: make(map[int64][]int64),
	}
	for _, p := range seed {
		repo.perms[p.ID] = p
		if p.ID >= repo.nextID {
			repo.nextID = p.ID + 1
		}
	}
	return repo
}

func (m *memoryPermissionRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	out := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryPermissionRepo) ListByRoleID(ctx context.Context, roleID int64) ([]Permission, error) {
	return nil, nil
}

func (m *memoryPermissionRepo) GetPermission(ctx context.Context, id int64) (Permission, error) {
	p, ok := m.perms[id]
	if !ok {
		return Permission{}, fmt.Errorf("permissions: %d: %w", id, httpx.ErrNotFound)
	}
	return p, nil
}

func (m *memoryPermissionRepo) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	for _, existing := range m.perms {
		if existing.Code == p.Code {
			return Permission{}, fmt.Errorf("permissions: code %q: %w", p.Code, httpx.ErrDuplicate)
		}
	}
	p.ID = m.nextID
	m.nextID++
	m.perms[p.ID] = p
	return p, nil
}

func (m *memoryPermissionRepo) UpdatePermission(ctx context.Context, p Permission) (Permission, error) {
	if _, ok := m.perms[p.ID]; !ok {
		return Permission{}, fmt.Errorf("permissions: %d: %w", p.ID, httpx.ErrNotFound)
	}
	m.perms[p.ID] = p
	return p, nil
}

func (m *memoryPermissionRepo) DeletePermission(ctx context.Context, id int64) error {
	if _, ok := m.perms[id]; !ok {
		return fmt.Errorf("permissions: %d: %w", id, httpx.ErrNotFound)
	}
	delete(m.perms, id)
	delete(m.roleEdges, id)
	for childID, child := range m.perms {
		if child.ParentID != nil && *child.ParentID == id {
			if err := m.DeletePermission(ctx, childID); err != nil && !errors.Is(err, httpx.ErrNotFound) {
				return err
			}
		}
	}
	return nil
}

func TestPermissionCreateValidatesParent(t *testing.T) {
	repo := newMemoryPermissionRepo(Permission{ID: 1, Name: "System", Code: "SysMgt"})
	svc := NewService(repo)

	created, err := svc.Create(context.Background(), Permission{Name: "Users", Code: "UserMgt", ParentID: pid(1)})
	require.NoError(t, err)
	assert.Equal(t, TypeMenu, created.Type)

	_, err = svc.Create(context.Background(), Permission{Name: "Orphan", Code: "Orphan", ParentID: pid(99)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrNotFound))
}

func TestPermissionCreateRequiresNameAndCode(t *testing.T) {
	svc := NewService(newMemoryPermissionRepo())
	_, err := svc.Create(context.Background(), Permission{Name: "  ", Code: ""})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrValidation))
}

func TestPermissionUpdateRejectsSelfParent(t *testing.T) {
	repo := newMemoryPermissionRepo(Permission{ID: 1, Name: "System", Code: "SysMgt"})
	svc := NewService(repo)

	_, err := svc.Update(context.Background(), Permission{ID: 1, Name: "System", Code: "SysMgt", ParentID: pid(1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrInvariant))
}

func TestPermissionUpdateRejectsDescendantParent(t *testing.T) {
	repo := newMemoryPermissionRepo(
		Permission{ID: 1, Name: "System", Code: "SysMgt"},
		Permission{ID: 2, Name: "Users", Code: "UserMgt", ParentID: pid(1)},
		Permission{ID: 3, Name: "Add User", Code: "AddUser", ParentID: pid(2)},
	)
	svc := NewService(repo)

	_, err := svc.Update(context.Background(), Permission{ID: 1, Name: "System", Code: "SysMgt", ParentID: pid(3)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrInvariant))

	// Unchanged on failure.
	stored, err := repo.GetPermission(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, stored.ParentID)
}

func TestPermissionDeleteRemovesSubtree(t *testing.T) {
	repo := newMemoryPermissionRepo(
		Permission{ID: 1, Name: "System", Code: "SysMgt"},
		Permission{ID: 2, Name: "Users", Code: "UserMgt", ParentID: pid(1)},
		Permission{ID: 3, Name: "Orders", Code: "OrderMgt"},
	)
	svc := NewService(repo)

	require.NoError(t, svc.Delete(context.Background(), 1))

	remaining, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "OrderMgt", remaining[0].Code)
}

func TestPermissionDeleteRemovesRoleEdges(t *testing.T) {
	repo := newMemoryPermissionRepo(
		Permission{ID: 1, Name: "System", Code: "SysMgt"},
		Permission{ID: 2, Name: "Users", Code: "UserMgt", ParentID: pid(1)},
		Permission{ID: 3, Name: "Orders", Code: "OrderMgt"},
	)
	repo.roleEdges[1] = []int64{7}
	repo.roleEdges[2] = []int64{7, 8}
	repo.roleEdges[3] = []int64{8}
	svc := NewService(repo)

	require.NoError(t, svc.Delete(context.Background(), 1))

	// No dangling edges for the removed subtree; the survivor keeps its own.
	assert.NotContains(t, repo.roleEdges, int64(1))
	assert.NotContains(t, repo.roleEdges, int64(2))
	assert.Equal(t, []int64{8}, repo.roleEdges[3])
}
