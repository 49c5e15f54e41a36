package roles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nova-admin/nova-admin/internal/permissions"
	"github.com/nova-admin/nova-admin/internal/platform/httpx"
	"github.com/nova-admin/nova-admin/internal/shared"
)

type memoryRoleRepo struct {
	roles      map[int64]Role
	nextID     int64
	permEdges  map[int64]map[int64]struct{}
	userEdges  map[int64]map[int64]struct{}
	knownPerms map[int64]struct{}
	knownUsers map[int64]struct{}

	// addPermErr makes AddPermissions fail, exercising rollback.
	addPermErr error
}

func newMemoryRoleRepo() *memoryRoleRepo {
	return &memoryRoleRepo{
		roles:      make(map[int64]Role),
		nextID:     1,
		permEdges:  make(map[int64]map[int64]struct{}),
		userEdges:  make(map[int64]map[int64]struct{}),
		knownPerms: make(map[int64]struct{}),
		knownUsers: make(map[int64]struct{}),
	}
}

func (m *memoryRoleRepo) seedRole(role Role) Role {
	if role.ID == 0 {
		role.ID = m.nextID
	}
	if role.ID >= m.nextID {
		m.nextID = role.ID + 1
	}
	m.roles[role.ID] = role
	m.permEdges[role.ID] = make(map[int64]struct{})
	m.userEdges[role.ID] = make(map[int64]struct{})
	return role
}

func (m *memoryRoleRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("roles: %d: %w", id, httpx.ErrNotFound)
	}
	return role, nil
}

func (m *memoryRoleRepo) GetRoleByCode(ctx context.Context, code string) (Role, error) {
	for _, role := range m.roles {
		if role.Code == code {
			return role, nil
		}
	}
	return Role{}, fmt.Errorf("roles: code %q: %w", code, httpx.ErrNotFound)
}

func (m *memoryRoleRepo) RoleExistsByNameOrCode(ctx context.Context, name, code string, excludeID int64) (bool, error) {
	for _, role := range m.roles {
		if role.ID == excludeID {
			continue
		}
		if role.Name == name || role.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRoleRepo) ListRoles(ctx context.Context, filters ListFilters) ([]Role, int, error) {
	var out []Role
	for _, role := range m.roles {
		if filters.Name != "" && !strings.Contains(strings.ToLower(role.Name), strings.ToLower(filters.Name)) {
			continue
		}
		if filters.Enable != nil && role.Enable != *filters.Enable {
			continue
		}
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memoryRoleRepo) ListRolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return sortedKeys(m.permEdges[roleID]), nil
}

func (m *memoryRoleRepo) ListRoleUserIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return sortedKeys(m.userEdges[roleID]), nil
}

func (m *memoryRoleRepo) WithRole(ctx context.Context, roleID int64, fn func(context.Context, TxPort) error) error {
	role, ok := m.roles[roleID]
	if !ok {
		return fmt.Errorf("roles: %d: %w", roleID, httpx.ErrNotFound)
	}
	undo := m.snapshot()
	if err := fn(ctx, &memoryRoleTx{repo: m, role: role}); err != nil {
		m.restore(undo)
		return err
	}
	return nil
}

func (m *memoryRoleRepo) WithNewRole(ctx context.Context, role Role, fn func(context.Context, TxPort) error) (Role, error) {
	if taken, _ := m.RoleExistsByNameOrCode(ctx, role.Name, role.Code, 0); taken {
		return Role{}, fmt.Errorf("roles: name or code taken: %w", httpx.ErrDuplicate)
	}
	undo := m.snapshot()
	created := m.seedRole(role)
	if err := fn(ctx, &memoryRoleTx{repo: m, role: created}); err != nil {
		m.restore(undo)
		return Role{}, err
	}
	return created, nil
}

type memoryRoleState struct {
	roles     map[int64]Role
	nextID    int64
	permEdges map[int64]map[int64]struct{}
	userEdges map[int64]map[int64]struct{}
}

func (m *memoryRoleRepo) snapshot() memoryRoleState {
	return memoryRoleState{
		roles:     copyRoles(m.roles),
		nextID:    m.nextID,
		permEdges: copyEdges(m.permEdges),
		userEdges: copyEdges(m.userEdges),
	}
}

func (m *memoryRoleRepo) restore(s memoryRoleState) {
	m.roles = s.roles
	m.nextID = s.nextID
	m.permEdges = s.permEdges
	m.userEdges = s.userEdges
}

func copyRoles(in map[int64]Role) map[int64]Role {
	out := make(map[int64]Role, len(in))
	for id, role := range in {
		out[id] = role
	}
	return out
}

func copyEdges(in map[int64]map[int64]struct{}) map[int64]map[int64]struct{} {
	out := make(map[int64]map[int64]struct{}, len(in))
	for id, set := range in {
		inner := make(map[int64]struct{}, len(set))
		for k := range set {
			inner[k] = struct{}{}
		}
		out[id] = inner
	}
	return out
}

type memoryRoleTx struct {
	repo *memoryRoleRepo
	role Role
}

func (t *memoryRoleTx) Role() Role { return t.role }

func (t *memoryRoleTx) PermissionIDs(ctx context.Context) ([]int64, error) {
	return sortedKeys(t.repo.permEdges[t.role.ID]), nil
}

func (t *memoryRoleTx) UserIDs(ctx context.Context) ([]int64, error) {
	return sortedKeys(t.repo.userEdges[t.role.ID]), nil
}

func (t *memoryRoleTx) CountUsers(ctx context.Context) (int, error) {
	return len(t.repo.userEdges[t.role.ID]), nil
}

func (t *memoryRoleTx) ResolvePermissionIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return resolveAgainst(ids, t.repo.knownPerms), nil
}

func (t *memoryRoleTx) ResolveUserIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return resolveAgainst(ids, t.repo.knownUsers), nil
}

func (t *memoryRoleTx) UpdateRole(ctx context.Context, role Role) (Role, error) {
	current := t.repo.roles[t.role.ID]
	current.Name = role.Name
	current.Description = role.Description
	current.Enable = role.Enable
	t.repo.roles[t.role.ID] = current
	t.role = current
	return current, nil
}

func (t *memoryRoleTx) AddPermissions(ctx context.Context, ids []int64) error {
	if t.repo.addPermErr != nil {
		return t.repo.addPermErr
	}
	for _, id := range ids {
		t.repo.permEdges[t.role.ID][id] = struct{}{}
	}
	return nil
}

func (t *memoryRoleTx) RemovePermissions(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		delete(t.repo.permEdges[t.role.ID], id)
	}
	return nil
}

func (t *memoryRoleTx) AddUsers(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		t.repo.userEdges[t.role.ID][id] = struct{}{}
	}
	return nil
}

func (t *memoryRoleTx) RemoveUsers(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		delete(t.repo.userEdges[t.role.ID], id)
	}
	return nil
}

func (t *memoryRoleTx) DeleteRole(ctx context.Context) error {
	delete(t.repo.permEdges, t.role.ID)
	delete(t.repo.userEdges, t.role.ID)
	delete(t.repo.roles, t.role.ID)
	return nil
}

func sortedKeys(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func resolveAgainst(ids []int64, known map[int64]struct{}) []int64 {
	var out []int64
	for _, id := range ids {
		if _, ok := known[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

type staticPermissionSource struct {
	all    []permissions.Permission
	byRole map[int64][]permissions.Permission
}

func (s staticPermissionSource) ListPermissions(ctx context.Context) ([]permissions.Permission, error) {
	return s.all, nil
}

func (s staticPermissionSource) ListByRoleID(ctx context.Context, roleID int64) ([]permissions.Permission, error) {
	return s.byRole[roleID], nil
}

func newRoleFixture(t *testing.T) (*Service, *memoryRoleRepo) {
	t.Helper()
	repo := newMemoryRoleRepo()
	repo.seedRole(Role{ID: 1, Name: "Super Administrator", Code: shared.SuperAdmin, Enable: true})
	for id := int64(1); id <= 5; id++ {
		repo.knownPerms[id] = struct{}{}
	}
	for id := int64(10); id <= 13; id++ {
		repo.knownUsers[id] = struct{}{}
	}
	return NewService(repo, staticPermissionSource{}), repo
}

func TestRoleCreateRejectsReservedCode(t *testing.T) {
	svc, _ := newRoleFixture(t)
	_, err := svc.Create(context.Background(), CreateInput{Name: "Another", Code: "super_admin"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrInvariant))
}

func TestRoleCreateDuplicate(t *testing.T) {
	svc, _ := newRoleFixture(t)
	_, err := svc.Create(context.Background(), CreateInput{Name: "Auditor", Code: "AUDITOR", Enable: true})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInput{Name: "Auditor", Code: "AUDITOR2"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrDuplicate))

	_, err = svc.Create(context.Background(), CreateInput{Name: "Other", Code: "auditor"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrDuplicate))
}

func TestRoleCreateGrantsInitialPermissions(t *testing.T) {
	svc, repo := newRoleFixture(t)
	role, err := svc.Create(context.Background(), CreateInput{
		Name: "Auditor", Code: "AUDITOR", Enable: true,
		PermissionIDs: []int64{1, 3, 99},
	})
	require.NoError(t, err)

	ids, err := repo.ListRolePermissionIDs(context.Background(), role.ID)
	require.NoError(t, err)
	// Unknown id 99 silently dropped.
	assert.Equal(t, []int64{1, 3}, ids)
}

func TestRoleUpdateSuperAdminImmutable(t *testing.T) {
	svc, _ := newRoleFixture(t)
	_, err := svc.Update(context.Background(), 1, UpdateInput{Name: "Renamed", Enable: false})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrInvariant))
}

func TestRoleUpdateNilPermissionIDsKeepsAssociations(t *testing.T) {
	svc, repo := newRoleFixture(t)
	role, err := svc.Create(context.Background(), CreateInput{
		Name: "Auditor", Code: "AUDITOR", Enable: true, PermissionIDs: []int64{1, 2},
	})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), role.ID, UpdateInput{Name: "Auditor", Enable: false})
	require.NoError(t, err)
	ids, _ := repo.ListRolePermissionIDs(context.Background(), role.ID)
	assert.Equal(t, []int64{1, 2}, ids)

	_, err = svc.Update(context.Background(), role.ID, UpdateInput{Name: "Auditor", Enable: true, PermissionIDs: []int64{}})
	require.NoError(t, err)
	ids, _ = repo.ListRolePermissionIDs(context.Background(), role.ID)
	assert.Empty(t, ids)
}

func TestRoleUpdateRollsBackScalarsWhenAssociationWriteFails(t *testing.T) {
	svc, repo := newRoleFixture(t)
	role, err := svc.Create(context.Background(), CreateInput{
		Name: "Auditor", Code: "AUDITOR", Enable: true, PermissionIDs: []int64{1, 2},
	})
	require.NoError(t, err)

	repo.addPermErr = errors.New("edge write failed")
	_, err = svc.Update(context.Background(), role.ID, UpdateInput{
		Name: "Renamed", Enable: false, PermissionIDs: []int64{3, 4},
	})
	require.Error(t, err)

	// The whole update rolls back: no renamed role, no half-applied edges.
	got, err := repo.GetRole(context.Background(), role.ID)
	require.NoError(t, err)
	assert.Equal(t, "Auditor", got.Name)
	assert.True(t, got.Enable)
	ids, _ := repo.ListRolePermissionIDs(context.Background(), role.ID)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestRoleCreateRollsBackWhenInitialGrantFails(t *testing.T) {
	svc, repo := newRoleFixture(t)
	repo.addPermErr = errors.New("edge write failed")

	_, err := svc.Create(context.Background(), CreateInput{
		Name: "Auditor", Code: "AUDITOR", Enable: true, PermissionIDs: []int64{1},
	})
	require.Error(t, err)

	_, err = repo.GetRoleByCode(context.Background(), "AUDITOR")
	assert.True(t, errors.Is(err, httpx.ErrNotFound))
}

func TestRoleDeleteBlockedWhileUsersAttached(t *testing.T) {
	svc, repo := newRoleFixture(t)
	role, err := svc.Create(context.Background(), CreateInput{Name: "Auditor", Code: "AUDITOR", Enable: true})
	require.NoError(t, err)
	require.NoError(t, svc.GrantUsers(context.Background(), role.ID, []int64{10, 11}))

	err = svc.Delete(context.Background(), role.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrInvariant))

	// Role and its edges survive the failed delete.
	_, err = repo.GetRole(context.Background(), role.ID)
	require.NoError(t, err)
	users, _ := repo.ListRoleUserIDs(context.Background(), role.ID)
	assert.Equal(t, []int64{10, 11}, users)

	require.NoError(t, svc.RevokeUsers(context.Background(), role.ID, []int64{10, 11}))
	require.NoError(t, svc.Delete(context.Background(), role.ID))
	_, err = repo.GetRole(context.Background(), role.ID)
	assert.True(t, errors.Is(err, httpx.ErrNotFound))
}

func TestRoleDeleteSuperAdmin(t *testing.T) {
	svc, _ := newRoleFixture(t)
	err := svc.Delete(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrInvariant))
}

func TestGrantRevokePermissionsIdempotent(t *testing.T) {
	svc, repo := newRoleFixture(t)
	role, err := svc.Create(context.Background(), CreateInput{Name: "Auditor", Code: "AUDITOR", Enable: true})
	require.NoError(t, err)

	require.NoError(t, svc.GrantPermissions(context.Background(), role.ID, []int64{1, 2, 3}))
	require.NoError(t, svc.GrantPermissions(context.Background(), role.ID, []int64{2, 3, 4}))
	ids, _ := repo.ListRolePermissionIDs(context.Background(), role.ID)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)

	// Revoking what was just granted restores the prior set.
	require.NoError(t, svc.RevokePermissions(context.Background(), role.ID, []int64{4}))
	require.NoError(t, svc.RevokePermissions(context.Background(), role.ID, []int64{4}))
	ids, _ = repo.ListRolePermissionIDs(context.Background(), role.ID)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestGrantPermissionsDropsUnknownIDs(t *testing.T) {
	svc, repo := newRoleFixture(t)
	role, err := svc.Create(context.Background(), CreateInput{Name: "Auditor", Code: "AUDITOR", Enable: true})
	require.NoError(t, err)

	require.NoError(t, svc.GrantPermissions(context.Background(), role.ID, []int64{1, 77, 78}))
	ids, _ := repo.ListRolePermissionIDs(context.Background(), role.ID)
	assert.Equal(t, []int64{1}, ids)
}

func TestSuperAdminPermissionEdgesRejected(t *testing.T) {
	svc, _ := newRoleFixture(t)

	err := svc.GrantPermissions(context.Background(), 1, []int64{1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrInvariant))

	err = svc.RevokePermissions(context.Background(), 1, []int64{1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrInvariant))
}

func TestSuperAdminUserEdgesAllowed(t *testing.T) {
	svc, repo := newRoleFixture(t)

	require.NoError(t, svc.GrantUsers(context.Background(), 1, []int64{10, 12}))
	users, _ := repo.ListRoleUserIDs(context.Background(), 1)
	assert.Equal(t, []int64{10, 12}, users)

	require.NoError(t, svc.RevokeUsers(context.Background(), 1, []int64{12}))
	users, _ = repo.ListRoleUserIDs(context.Background(), 1)
	assert.Equal(t, []int64{10}, users)
}

func TestReplacePermissionsOverwritesSet(t *testing.T) {
	svc, repo := newRoleFixture(t)
	role, err := svc.Create(context.Background(), CreateInput{Name: "Auditor", Code: "AUDITOR", Enable: true})
	require.NoError(t, err)
	require.NoError(t, svc.GrantPermissions(context.Background(), role.ID, []int64{1, 2}))

	require.NoError(t, svc.ReplacePermissions(context.Background(), role.ID, []int64{2, 5}))
	ids, _ := repo.ListRolePermissionIDs(context.Background(), role.ID)
	assert.Equal(t, []int64{2, 5}, ids)
}

func TestPermissionsTreeSuperAdminSeesAll(t *testing.T) {
	repo := newMemoryRoleRepo()
	repo.seedRole(Role{ID: 1, Name: "Super Administrator", Code: shared.SuperAdmin, Enable: true})
	auditor := repo.seedRole(Role{ID: 2, Name: "Auditor", Code: "AUDITOR", Enable: true})

	parent := int64(1)
	all := []permissions.Permission{
		{ID: 1, Name: "System", Code: "SysMgt"},
		{ID: 2, Name: "Users", Code: "UserMgt", ParentID: &parent},
		{ID: 3, Name: "Orders", Code: "OrderMgt"},
	}
	source := staticPermissionSource{
		all:    all,
		byRole: map[int64][]permissions.Permission{auditor.ID: {all[2]}},
	}
	svc := NewService(repo, source)

	tree, err := svc.PermissionsTree(context.Background(), shared.SuperAdmin)
	require.NoError(t, err)
	require.Len(t, tree, 2)
	assert.Equal(t, "SysMgt", tree[0].Code)
	require.Len(t, tree[0].Children, 1)

	tree, err = svc.PermissionsTree(context.Background(), "AUDITOR")
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, "OrderMgt", tree[0].Code)

	_, err = svc.PermissionsTree(context.Background(), "NOBODY")
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrNotFound))
}
