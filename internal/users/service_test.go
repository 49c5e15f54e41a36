package users

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nova-admin/nova-admin/internal/platform/httpx"
	"github.com/nova-admin/nova-admin/internal/shared"
)

type memoryUserRepo struct {
	users    map[int64]User
	profiles map[int64]Profile
	roles    map[int64][]RoleRef
	nextID   int64

	// roleWriteErr makes role-edge writes fail, exercising rollback.
	roleWriteErr error
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{
		users:    make(map[int64]User),
		profiles: make(map[int64]Profile),
		roles:    make(map[int64][]RoleRef),
		nextID:   1,
	}
}

func (m *memoryUserRepo) ListUsers(ctx context.Context, filters ListFilters) ([]User, int, error) {
	var out []User
	for _, u := range m.users {
		if filters.Username != "" && !strings.Contains(u.Username, filters.Username) {
			continue
		}
		if filters.Enable != nil && u.Enable != *filters.Enable {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memoryUserRepo) GetUser(ctx context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, fmt.Errorf("users: %d: %w", id, httpx.ErrNotFound)
	}
	return u, nil
}

func (m *memoryUserRepo) GetUserByUsername(ctx context.Context, username string) (User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("users: %q: %w", username, httpx.ErrNotFound)
}

func (m *memoryUserRepo) CreateUser(ctx context.Context, user User, roleIDs []int64) (User, error) {
	if _, err := m.GetUserByUsername(ctx, user.Username); err == nil {
		return User{}, fmt.Errorf("users: username %q taken: %w", user.Username, httpx.ErrDuplicate)
	}
	if len(roleIDs) > 0 && m.roleWriteErr != nil {
		return User{}, m.roleWriteErr
	}
	user.ID = m.nextID
	m.nextID++
	m.users[user.ID] = user
	m.profiles[user.ID] = Profile{UserID: user.ID}
	m.roles[user.ID] = roleRefs(roleIDs)
	return user, nil
}

func (m *memoryUserRepo) UpdateUser(ctx context.Context, id int64, enable bool, roleIDs []int64) error {
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("users: %d: %w", id, httpx.ErrNotFound)
	}
	if roleIDs != nil && m.roleWriteErr != nil {
		return m.roleWriteErr
	}
	u.Enable = enable
	m.users[id] = u
	if roleIDs != nil {
		m.roles[id] = roleRefs(roleIDs)
	}
	return nil
}

func roleRefs(roleIDs []int64) []RoleRef {
	var refs []RoleRef
	for _, id := range roleIDs {
		refs = append(refs, RoleRef{ID: id, Code: fmt.Sprintf("ROLE_%d", id), Enable: true})
	}
	return refs
}

func (m *memoryUserRepo) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("users: %d: %w", id, httpx.ErrNotFound)
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

func (m *memoryUserRepo) DeleteUser(ctx context.Context, id int64) error {
	if _, ok := m.users[id]; !ok {
		return fmt.Errorf("users: %d: %w", id, httpx.ErrNotFound)
	}
	delete(m.users, id)
	delete(m.profiles, id)
	delete(m.roles, id)
	return nil
}

func (m *memoryUserRepo) UserRoles(ctx context.Context, userID int64) ([]RoleRef, error) {
	return m.roles[userID], nil
}

func (m *memoryUserRepo) UserRoleCodes(ctx context.Context, userID int64) ([]string, error) {
	var codes []string
	for _, ref := range m.roles[userID] {
		codes = append(codes, ref.Code)
	}
	return codes, nil
}

func (m *memoryUserRepo) GetProfile(ctx context.Context, userID int64) (Profile, error) {
	p, ok := m.profiles[userID]
	if !ok {
		return Profile{}, fmt.Errorf("users: profile %d: %w", userID, httpx.ErrNotFound)
	}
	return p, nil
}

func (m *memoryUserRepo) UpdateProfile(ctx context.Context, profile Profile) (Profile, error) {
	if _, ok := m.profiles[profile.UserID]; !ok {
		return Profile{}, fmt.Errorf("users: profile %d: %w", profile.UserID, httpx.ErrNotFound)
	}
	m.profiles[profile.UserID] = profile
	return profile, nil
}

var _ RepositoryPort = (*memoryUserRepo)(nil)

func TestUserCreateHashesPassword(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo, bcrypt.MinCost)

	user, err := svc.Create(context.Background(), CreateInput{
		Username: "alice", Password: "hunter22", Enable: true, RoleIDs: []int64{3},
	})
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", user.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("hunter22")))

	codes, err := svc.RoleCodes(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_3"}, codes)
}

func TestUserCreateDuplicateUsername(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo, bcrypt.MinCost)

	_, err := svc.Create(context.Background(), CreateInput{Username: "alice", Password: "hunter22"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInput{Username: "alice", Password: "other"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrDuplicate))
}

func TestUserUpdateNilRoleIDsKeepsRoles(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo, bcrypt.MinCost)

	user, err := svc.Create(context.Background(), CreateInput{
		Username: "alice", Password: "hunter22", Enable: true, RoleIDs: []int64{3},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Update(context.Background(), user.ID, UpdateInput{Enable: false}))
	codes, _ := svc.RoleCodes(context.Background(), user.ID)
	assert.Equal(t, []string{"ROLE_3"}, codes)

	require.NoError(t, svc.Update(context.Background(), user.ID, UpdateInput{Enable: true, RoleIDs: []int64{}}))
	codes, _ = svc.RoleCodes(context.Background(), user.ID)
	assert.Empty(t, codes)
}

func TestUserWritesRollBackWhenRoleEdgeWriteFails(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo, bcrypt.MinCost)

	user, err := svc.Create(context.Background(), CreateInput{
		Username: "alice", Password: "hunter22", Enable: true, RoleIDs: []int64{3},
	})
	require.NoError(t, err)

	repo.roleWriteErr = errors.New("edge write failed")

	// A failed creation leaves no account behind.
	_, err = svc.Create(context.Background(), CreateInput{
		Username: "bob", Password: "hunter22", Enable: true, RoleIDs: []int64{3},
	})
	require.Error(t, err)
	_, err = repo.GetUserByUsername(context.Background(), "bob")
	assert.True(t, errors.Is(err, httpx.ErrNotFound))

	// A failed role overwrite leaves the enable flag untouched too.
	err = svc.Update(context.Background(), user.ID, UpdateInput{Enable: false, RoleIDs: []int64{4}})
	require.Error(t, err)
	stored, _ := repo.GetUser(context.Background(), user.ID)
	assert.True(t, stored.Enable)
	codes, _ := svc.RoleCodes(context.Background(), user.ID)
	assert.Equal(t, []string{"ROLE_3"}, codes)
}

func TestUserDeleteSuperAdminBlocked(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo, bcrypt.MinCost)

	user, err := svc.Create(context.Background(), CreateInput{Username: "root", Password: "hunter22", Enable: true})
	require.NoError(t, err)
	repo.roles[user.ID] = []RoleRef{{ID: 1, Code: shared.SuperAdmin, Enable: true}}

	err = svc.Delete(context.Background(), user.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrInvariant))
	_, err = repo.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
}

func TestUserChangePassword(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo, bcrypt.MinCost)

	user, err := svc.Create(context.Background(), CreateInput{Username: "alice", Password: "hunter22", Enable: true})
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), user.ID, "wrong", "newpass22")
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrValidation))

	require.NoError(t, svc.ChangePassword(context.Background(), user.ID, "hunter22", "newpass22"))
	stored, _ := repo.GetUser(context.Background(), user.ID)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("newpass22")))
}

func TestUserResetPasswordSkipsOldCheck(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo, bcrypt.MinCost)

	user, err := svc.Create(context.Background(), CreateInput{Username: "alice", Password: "hunter22", Enable: true})
	require.NoError(t, err)

	require.NoError(t, svc.ResetPassword(context.Background(), user.ID, "admin-set"))
	stored, _ := repo.GetUser(context.Background(), user.ID)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("admin-set")))
}

func TestUserListResolvesDetails(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewService(repo, bcrypt.MinCost)

	for _, name := range []string{"alice", "bob"} {
		_, err := svc.Create(context.Background(), CreateInput{Username: name, Password: "hunter22", Enable: true})
		require.NoError(t, err)
	}

	details, page, err := svc.List(context.Background(), ListFilters{Page: 1, PerPage: 10})
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, "alice", details[0].Username)
	assert.Equal(t, 2, page.Total)
}
