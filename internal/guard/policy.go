// Package guard implements the per-request access decision pipeline:
// authentication, role authorization and the preview-mode mutation veto.
package guard

import "net/http"

// Policy declares what a protected operation requires. An empty role list
// means any authenticated principal may call it; Mutating marks operations
// subject to the preview-mode veto.
type Policy struct {
	Roles    []string
	Mutating bool
}

// Table maps operation identifiers to their policies. It is constructed
// statically at router build time; an operation absent from the table is
// authenticated-only and non-mutating.
type Table map[string]Policy

// Get returns the policy for an operation.
func (t Table) Get(op string) Policy {
	return t[op]
}

// Enforcer builds the middleware chain for a named operation. Handlers
// receive one from the router so route declarations stay next to the
// handlers while the policy table stays in one place.
type Enforcer func(op string) func(http.Handler) http.Handler
