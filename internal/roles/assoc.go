package roles

import (
	"context"
	"fmt"

	"github.com/nova-admin/nova-admin/internal/platform/httpx"
	"github.com/nova-admin/nova-admin/internal/shared"
)

// Association operations. Every grant is a set union and every revoke a set
// difference against the role's current edge set, computed and persisted
// under the role row lock, so repeating an operation changes nothing.
// Requested ids that do not exist in the canonical tables are dropped
// rather than treated as errors.

// GrantPermissions adds permission edges to a role. The super-administrator
// role holds every permission implicitly; its edge set is never written.
func (s *Service) GrantPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return s.repo.WithRole(ctx, roleID, func(ctx context.Context, tx TxPort) error {
		if err := rejectSuperAdminEdges(tx); err != nil {
			return err
		}
		resolved, err := tx.ResolvePermissionIDs(ctx, permissionIDs)
		if err != nil {
			return err
		}
		current, err := tx.PermissionIDs(ctx)
		if err != nil {
			return err
		}
		return tx.AddPermissions(ctx, missingFrom(resolved, current))
	})
}

// RevokePermissions removes permission edges from a role, ignoring ids not
// currently present.
func (s *Service) RevokePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return s.repo.WithRole(ctx, roleID, func(ctx context.Context, tx TxPort) error {
		if err := rejectSuperAdminEdges(tx); err != nil {
			return err
		}
		current, err := tx.PermissionIDs(ctx)
		if err != nil {
			return err
		}
		return tx.RemovePermissions(ctx, intersect(permissionIDs, current))
	})
}

// ReplacePermissions overwrites a role's full permission association set.
func (s *Service) ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return s.repo.WithRole(ctx, roleID, func(ctx context.Context, tx TxPort) error {
		if err := rejectSuperAdminEdges(tx); err != nil {
			return err
		}
		resolved, err := tx.ResolvePermissionIDs(ctx, permissionIDs)
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
}

// GrantUsers adds user edges to a role. Unlike permissions, the
// super-administrator role may gain and lose users.
func (s *Service) GrantUsers(ctx context.Context, roleID int64, userIDs []int64) error {
	return s.repo.WithRole(ctx, roleID, func(ctx context.Context, tx TxPort) error {
		resolved, err := tx.ResolveUserIDs(ctx, userIDs)
		if err != nil {
			return err
		}
		current, err := tx.UserIDs(ctx)
		if err != nil {
			return err
		}
		return tx.AddUsers(ctx, missingFrom(resolved, current))
	})
}

// RevokeUsers removes user edges from a role.
func (s *Service) RevokeUsers(ctx context.Context, roleID int64, userIDs []int64) error {
	return s.repo.WithRole(ctx, roleID, func(ctx context.Context, tx TxPort) error {
		current, err := tx.UserIDs(ctx)
		if err != nil {
			return err
		}
		return tx.RemoveUsers(ctx, intersect(userIDs, current))
	})
}

// UserIDs returns the ids of users currently holding the role.
func (s *Service) UserIDs(ctx context.Context, roleID int64) ([]int64, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListRoleUserIDs(ctx, roleID)
}

func rejectSuperAdminEdges(tx TxPort) error {
	if tx.Role().Code == shared.SuperAdmin {
		return fmt.Errorf("roles: %s permission set is implicit: %w", shared.SuperAdmin, httpx.ErrInvariant)
	}
	return nil
}

// missingFrom returns the elements of want absent from have, in want order.
func missingFrom(want, have []int64) []int64 {
	existing := make(map[int64]struct{}, len(have))
	for _, id := range have {
		existing[id] = struct{}{}
	}
	var out []int64
	for _, id := range want {
		if _, ok := existing[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// intersect returns the elements of want present in have, in want order.
func intersect(want, have []int64) []int64 {
	existing := make(map[int64]struct{}, len(have))
	for _, id := range have {
		existing[id] = struct{}{}
	}
	var out []int64
	for _, id := range want {
		if _, ok := existing[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
