package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nova-admin/nova-admin/internal/platform/httpx"
	"github.com/nova-admin/nova-admin/internal/shared"
)

// Service handles order business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateInput carries the fields for a new order.
type CreateInput struct {
	Name        string
	Description string
	UserID      *int64
}

// UpdateInput carries replacement fields for an order.
type UpdateInput struct {
	Name        string
	Description string
	Step        int32
	State       *int32
	Price       *float64
	UserID      *int64
}

// Create inserts a new order with a generated number. An unknown owner id
// is rejected rather than silently dropped; ownership is a single edge,
// not an association set.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || strings.TrimSpace(input.Description) == "" {
		return Order{}, fmt.Errorf("orders: name and description required: %w", httpx.ErrValidation)
	}
	if input.UserID != nil {
		exists, err := s.repo.UserExists(ctx, *input.UserID)
		if err != nil {
			return Order{}, err
		}
		if !exists {
			return Order{}, fmt.Errorf("orders: user %d: %w", *input.UserID, httpx.ErrNotFound)
		}
	}
	return s.repo.CreateOrder(ctx, Order{
		Number:      "ord-" + uuid.New().String(),
		Name:        name,
		Description: input.Description,
		Step:        1,
		UserID:      input.UserID,
	})
}

// List returns a page of orders matching the filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Order, shared.Pagination, error) {
	rows, total, err := s.repo.ListOrders(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return rows, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// Get fetches an order by number.
func (s *Service) Get(ctx context.Context, number string) (Order, error) {
	return s.repo.GetOrderByNumber(ctx, number)
}

// Update merges the supplied fields into an existing order.
func (s *Service) Update(ctx context.Context, number string, input UpdateInput) (Order, error) {
	order, err := s.repo.GetOrderByNumber(ctx, number)
	if err != nil {
		return Order{}, err
	}
	if name := strings.TrimSpace(input.Name); name != "" {
		order.Name = name
	}
	if desc := strings.TrimSpace(input.Description); desc != "" {
		order.Description = desc
	}
	if input.Step > 0 {
		order.Step = input.Step
	}
	if input.State != nil {
		order.State = input.State
	}
	if input.Price != nil {
		order.Price = input.Price
	}
	if input.UserID != nil {
		exists, err := s.repo.UserExists(ctx, *input.UserID)
		if err != nil {
			return Order{}, err
		}
		if !exists {
			return Order{}, fmt.Errorf("orders: user %d: %w", *input.UserID, httpx.ErrNotFound)
		}
		order.UserID = input.UserID
	}
	return s.repo.UpdateOrder(ctx, order)
}

// Delete removes an order by number.
func (s *Service) Delete(ctx context.Context, number string) error {
	return s.repo.DeleteOrderByNumber(ctx, number)
}
