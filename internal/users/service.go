package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/nova-admin/nova-admin/internal/platform/httpx"
	"github.com/nova-admin/nova-admin/internal/shared"
)

// Service handles user business logic.
type Service struct {
	repo       RepositoryPort
	bcryptCost int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, bcryptCost int) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, bcryptCost: bcryptCost}
}

// CreateInput carries the fields for a new user.
type CreateInput struct {
	Username string
	Password string
	Enable   bool
	RoleIDs  []int64
}

// UpdateInput toggles account state and optionally overwrites the role set.
// A nil RoleIDs leaves associations alone.
type UpdateInput struct {
	Enable  bool
	RoleIDs []int64
}

// Create inserts a new user, hashes the initial password and assigns roles.
func (s *Service) Create(ctx context.Context, input CreateInput) (User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return User{}, fmt.Errorf("users: username and password required: %w", httpx.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return User{}, err
	}
	return s.repo.CreateUser(ctx, User{
		Username:     username,
		PasswordHash: string(hash),
		Enable:       input.Enable,
	}, input.RoleIDs)
}

// Update toggles the enable flag and overwrites the role set when supplied.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) error {
	return s.repo.UpdateUser(ctx, id, input.Enable, input.RoleIDs)
}

// Delete removes a user. An account holding the super-administrator role is
// protected from deletion.
func (s *Service) Delete(ctx context.Context, id int64) error {
	codes, err := s.repo.UserRoleCodes(ctx, id)
	if err != nil {
		return err
	}
	for _, code := range codes {
		if code == shared.SuperAdmin {
			return fmt.Errorf("users: cannot delete a %s account: %w", shared.SuperAdmin, httpx.ErrInvariant)
		}
	}
	return s.repo.DeleteUser(ctx, id)
}

// List returns a page of user details with profiles and roles resolved.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Detail, shared.Pagination, error) {
	rows, total, err := s.repo.ListUsers(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	out := make([]Detail, 0, len(rows))
	for _, user := range rows {
		detail, err := s.detail(ctx, user)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		out = append(out, detail)
	}
	return out, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// Detail resolves a single user with profile and roles.
func (s *Service) Detail(ctx context.Context, id int64) (Detail, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return s.detail(ctx, user)
}

// RoleCodes returns the user's current effective role-code set.
func (s *Service) RoleCodes(ctx context.Context, id int64) ([]string, error) {
	return s.repo.UserRoleCodes(ctx, id)
}

// ResetPassword sets a new password without checking the old one. Route
// policy restricts it to administrators.
func (s *Service) ResetPassword(ctx context.Context, id int64, password string) error {
	if password == "" {
		return fmt.Errorf("users: password required: %w", httpx.ErrValidation)
	}
	if _, err := s.repo.GetUser(ctx, id); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return err
	}
	return s.repo.SetPasswordHash(ctx, id, string(hash))
}

// ChangePassword verifies the old password before storing the new one.
func (s *Service) ChangePassword(ctx context.Context, id int64, oldPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("users: new password required: %w", httpx.ErrValidation)
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return fmt.Errorf("users: old password mismatch: %w", httpx.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return err
	}
	return s.repo.SetPasswordHash(ctx, id, string(hash))
}

// UpdateProfile replaces the user's profile fields.
func (s *Service) UpdateProfile(ctx context.Context, profile Profile) (Profile, error) {
	return s.repo.UpdateProfile(ctx, profile)
}

func (s *Service) detail(ctx context.Context, user User) (Detail, error) {
	profile, err := s.repo.GetProfile(ctx, user.ID)
	if err != nil {
		return Detail{}, err
	}
	userRoles, err := s.repo.UserRoles(ctx, user.ID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{User: user, Profile: profile, Roles: userRoles}, nil
}
