package shared

import (
	"strings"
	"time"
)

// SuperAdmin is the reserved role code for the immutable super-administrator
// role. The role implicitly holds every permission and always satisfies any
// required-role set.
const SuperAdmin = "SUPER_ADMIN"

// Principal describes the authenticated actor for the current request.
type Principal struct {
	UserID    int64
	Username  string
	RoleCodes []string
	IssuedAt  time.Time
	TokenID   string
	ExpiresAt time.Time
}

// IsSuperAdmin reports whether the principal holds the super-administrator role.
func (p Principal) IsSuperAdmin() bool {
	return p.HasRole(SuperAdmin)
}

// HasRole reports whether the principal holds the given role code.
func (p Principal) HasRole(code string) bool {
	for _, c := range p.RoleCodes {
		if c == code {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the principal's role codes intersect required.
// An empty required set means no role restriction applies.
func (p Principal) HasAnyRole(required []string) bool {
	if len(required) == 0 {
		return true
	}
	held := make(map[string]struct{}, len(p.RoleCodes))
	for _, c := range p.RoleCodes {
		held[c] = struct{}{}
	}
	for _, c := range required {
		if _, ok := held[c]; ok {
			return true
		}
	}
	return false
}

// NormalizeRoleCodes trims, uppercases and deduplicates role codes while
// preserving first-seen order.
func NormalizeRoleCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
