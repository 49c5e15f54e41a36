package roles

import "time"

// Role represents a named, coded bundle of permissions grantable to users.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	Enable      bool      `json:"enable"`
	CreatedAt   time.Time `json:"createTime"`
	UpdatedAt   time.Time `json:"updateTime"`
}

// RoleWithPermissionIDs is a listing row carrying the role's explicit
// permission association set.
type RoleWithPermissionIDs struct {
	Role
	PermissionIDs []int64 `json:"permissionIds"`
}

// ListFilters narrows and pages role listings.
type ListFilters struct {
	Name    string
	Enable  *bool
	Page    int
	PerPage int
}
