package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/nova-admin/nova-admin/internal/permissions"
	"github.com/nova-admin/nova-admin/internal/platform/httpx"
	"github.com/nova-admin/nova-admin/internal/shared"
)

// PermissionSource supplies permission records for tree building.
type PermissionSource interface {
	ListPermissions(ctx context.Context) ([]permissions.Permission, error)
	ListByRoleID(ctx context.Context, roleID int64) ([]permissions.Permission, error)
}

// Service owns role identity and the super-administrator invariants.
type Service struct {
	repo  RepositoryPort
	perms PermissionSource
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, perms PermissionSource) *Service {
	return &Service{repo: repo, perms: perms}
}

// CreateInput carries the fields for a new role.
type CreateInput struct {
	Name          string
	Code          string
	Description   string
	Enable        bool
	PermissionIDs []int64
}

// UpdateInput carries replacement fields for a role. A nil PermissionIDs
// leaves the association set alone; a non-nil slice overwrites it.
type UpdateInput struct {
	Name          string
	Description   string
	Enable        bool
	PermissionIDs []int64
}

// Create inserts a new role. Duplicate name or code is a conflict; the
// reserved super-administrator code can never be claimed.
func (s *Service) Create(ctx context.Context, input CreateInput) (Role, error) {
	name := strings.TrimSpace(input.Name)
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if name == "" || code == "" {
		return Role{}, fmt.Errorf("roles: name and code required: %w", httpx.ErrValidation)
	}
	if code == shared.SuperAdmin {
		return Role{}, fmt.Errorf("roles: code %s is reserved: %w", code, httpx.ErrInvariant)
	}
	taken, err := s.repo.RoleExistsByNameOrCode(ctx, name, code, 0)
	if err != nil {
		return Role{}, err
	}
	if taken {
		return Role{}, fmt.Errorf("roles: name or code already exists: %w", httpx.ErrDuplicate)
	}

	return s.repo.WithNewRole(ctx, Role{
		Name:        name,
		Code:        code,
		Description: strings.TrimSpace(input.Description),
		Enable:      input.Enable,
	}, func(ctx context.Context, tx TxPort) error {
		if len(input.PermissionIDs) == 0 {
			return nil
		}
		resolved, err := tx.ResolvePermissionIDs(ctx, input.PermissionIDs)
		if err != nil {
			return err
		}
		return tx.AddPermissions(ctx, resolved)
	})
}

// Update replaces a role's scalar fields and, when a permission-id set is
// supplied, overwrites its permission associations. The super-administrator
// role is immutable.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Role, error) {
	var updated Role
	err := s.repo.WithRole(ctx, id, func(ctx context.Context, tx TxPort) error {
		role := tx.Role()
		if role.Code == shared.SuperAdmin {
			return fmt.Errorf("roles: %s cannot be modified: %w", shared.SuperAdmin, httpx.ErrInvariant)
		}

		name := strings.TrimSpace(input.Name)
		if name == "" {
			name = role.Name
		}
		if name != role.Name {
			taken, err := s.repo.RoleExistsByNameOrCode(ctx, name, role.Code, role.ID)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("roles: name already exists: %w", httpx.ErrDuplicate)
			}
		}

		var err error
		updated, err = tx.UpdateRole(ctx, Role{
			Name:        name,
			Description: strings.TrimSpace(input.Description),
			Enable:      input.Enable,
		})
		if err != nil {
			return err
		}
		if input.PermissionIDs == nil {
			return nil
		}

		resolved, err := tx.ResolvePermissionIDs(ctx, input.PermissionIDs)
		if err != nil {
			return err
		}
		current, err := tx.PermissionIDs(ctx)
		if err != nil {
			return err
		}
		if err := tx.AddPermissions(ctx, missingFrom(resolved, current)); err != nil {
			return err
		}
		return tx.RemovePermissions(ctx, missingFrom(current, resolved))
	})
	if err != nil {
		return Role{}, err
	}
	return updated, nil
}

// Delete removes a role together with its association edges. The
// super-administrator role cannot be deleted, and a role still granted to
// users must be unassigned first.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.WithRole(ctx, id, func(ctx context.Context, tx TxPort) error {
		if tx.Role().Code == shared.SuperAdmin {
			return fmt.Errorf("roles: %s cannot be deleted: %w", shared.SuperAdmin, httpx.ErrInvariant)
		}
		attached, err := tx.CountUsers(ctx)
		if err != nil {
			return err
		}
		if attached > 0 {
			return fmt.Errorf("roles: %d users still assigned: %w", attached, httpx.ErrInvariant)
		}
		return tx.DeleteRole(ctx)
	})
}

// Get fetches a role by ID.
func (s *Service) Get(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// GetByCode fetches a role by code.
func (s *Service) GetByCode(ctx context.Context, code string) (Role, error) {
	return s.repo.GetRoleByCode(ctx, code)
}

// List returns a page of roles, each carrying its explicit permission ids.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]RoleWithPermissionIDs, shared.Pagination, error) {
	rows, total, err := s.repo.ListRoles(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	out := make([]RoleWithPermissionIDs, 0, len(rows))
	for _, role := range rows {
		ids, err := s.repo.ListRolePermissionIDs(ctx, role.ID)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		out = append(out, RoleWithPermissionIDs{Role: role, PermissionIDs: ids})
	}
	return out, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// Permissions returns the permission records a role is explicitly
// associated with.
func (s *Service) Permissions(ctx context.Context, roleID int64) ([]permissions.Permission, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.perms.ListByRoleID(ctx, roleID)
}

// PermissionsTree builds the permission forest visible to a role. The
// super-administrator implicitly holds every permission, so its tree is
// built from the entire set; any other role sees only its own associations.
func (s *Service) PermissionsTree(ctx context.Context, code string) ([]*permissions.Node, error) {
	role, err := s.repo.GetRoleByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	var perms []permissions.Permission
	if role.Code == shared.SuperAdmin {
		perms, err = s.perms.ListPermissions(ctx)
	} else {
		perms, err = s.perms.ListByRoleID(ctx, role.ID)
	}
	if err != nil {
		return nil, err
	}
	return permissions.BuildTree(perms)
}
