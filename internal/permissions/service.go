package permissions

import (
	"context"
	"fmt"
	"strings"

	"github.com/nova-admin/nova-admin/internal/platform/httpx"
)

// Service handles permission business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns the flat permission set.
func (s *Service) List(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// Tree returns the full permission forest.
func (s *Service) Tree(ctx context.Context) ([]*Node, error) {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	return BuildTree(perms)
}

// Get fetches a single permission.
func (s *Service) Get(ctx context.Context, id int64) (Permission, error) {
	return s.repo.GetPermission(ctx, id)
}

// Create inserts a new permission after validating its parent link.
func (s *Service) Create(ctx context.Context, p Permission) (Permission, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Code = strings.TrimSpace(p.Code)
	if p.Name == "" || p.Code == "" {
		return Permission{}, fmt.Errorf("permissions: name and code required: %w", httpx.ErrValidation)
	}
	if p.Type == "" {
		p.Type = TypeMenu
	}
	if p.ParentID != nil {
		if _, err := s.repo.GetPermission(ctx, *p.ParentID); err != nil {
			return Permission{}, fmt.Errorf("permissions: parent: %w", err)
		}
	}
	return s.repo.CreatePermission(ctx, p)
}

// Update replaces a permission's fields. Moving a permission under one of
// its own descendants is rejected before anything is written.
func (s *Service) Update(ctx context.Context, p Permission) (Permission, error) {
	current, err := s.repo.GetPermission(ctx, p.ID)
	if err != nil {
		return Permission{}, err
	}
	if p.ParentID != nil {
		if *p.ParentID == p.ID {
			return Permission{}, fmt.Errorf("permissions: %d cannot be its own parent: %w", p.ID, httpx.ErrInvariant)
		}
		if _, err := s.repo.GetPermission(ctx, *p.ParentID); err != nil {
			return Permission{}, fmt.Errorf("permissions: parent: %w", err)
		}
		if err := s.checkNoCycle(ctx, current.ID, *p.ParentID); err != nil {
			return Permission{}, err
		}
	}
	return s.repo.UpdatePermission(ctx, p)
}

// Delete removes a permission and its descendants.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.DeletePermission(ctx, id)
}

// checkNoCycle simulates the reparenting against the full set and rebuilds
// the tree, which fails if the move would create a parent cycle.
func (s *Service) checkNoCycle(ctx context.Context, id, newParentID int64) error {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return err
	}
	for i := range perms {
		if perms[i].ID == id {
			pid := newParentID
			perms[i].ParentID = &pid
		}
	}
	if _, err := BuildTree(perms); err != nil {
		return err
	}
	return nil
}
