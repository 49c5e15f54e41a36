package permissions

// Permission represents an atomic authorizable capability. Permissions form
// a forest through the optional parent link.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	Type        string `json:"type"`
	ParentID    *int64 `json:"parentId"`
	Path        string `json:"path"`
	Icon        string `json:"icon"`
	Order       int32  `json:"order"`
	Enable      bool   `json:"enable"`
	Description string `json:"description"`
}

// Permission types as stored in the type column.
const (
	TypeMenu   = "MENU"
	TypeButton = "BUTTON"
)
