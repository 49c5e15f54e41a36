package users

import "time"

// User represents an account that can sign in and hold roles.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Enable       bool      `json:"enable"`
	CreatedAt    time.Time `json:"createTime"`
	UpdatedAt    time.Time `json:"updateTime"`
}

// Profile carries the user's presentation fields.
type Profile struct {
	UserID   int64  `json:"userId"`
	NickName string `json:"nickName"`
	Gender   int16  `json:"gender"`
	Avatar   string `json:"avatar"`
	Address  string `json:"address"`
	Email    string `json:"email"`
}

// RoleRef is the role shape attached to user listings and details.
type RoleRef struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Code   string `json:"code"`
	Enable bool   `json:"enable"`
}

// Detail is a user with profile and roles resolved.
type Detail struct {
	User
	Profile Profile   `json:"profile"`
	Roles   []RoleRef `json:"roles"`
}

// ListFilters narrows and pages user listings.
type ListFilters struct {
	Username string
	Enable   *bool
	Page     int
	PerPage  int
}
