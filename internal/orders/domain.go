package orders

import "time"

// Order represents a customer order managed through the admin console.
type Order struct {
	ID          int64     `json:"id"`
	Number      string    `json:"number"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Step        int32     `json:"step"`
	State       *int32    `json:"state"`
	Price       *float64  `json:"price"`
	UserID      *int64    `json:"userId"`
	CreatedAt   time.Time `json:"createTime"`
	UpdatedAt   time.Time `json:"updateTime"`
}

// ListFilters narrows and pages order listings.
type ListFilters struct {
	Number  string
	Step    *int32
	State   *int32
	UserID  int64
	Page    int
	PerPage int
}
