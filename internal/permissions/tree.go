package permissions

import (
	"fmt"

	"github.com/nova-admin/nova-admin/internal/platform/httpx"
)

// Node is a permission with its resolved children.
type Node struct {
	Permission
	Children []*Node `json:"children"`
}

// BuildTree shapes a flat permission set into a forest. A node whose parent
// is absent from the input set becomes a root; children keep the relative
// order of the input records. A parent cycle fails with an invariant error
// instead of looping.
//
// Building is pure and idempotent: the same input always yields a
// structurally identical forest.
func BuildTree(perms []Permission) ([]*Node, error) {
	byID := make(map[int64]*Node, len(perms))
	for i := range perms {
		byID[perms[i].ID] = &Node{Permission: perms[i]}
	}

	if err := checkAcyclic(byID); err != nil {
		return nil, err
	}

	roots := make([]*Node, 0, len(perms))
	for i := range perms {
		node := byID[perms[i].ID]
		if pid := perms[i].ParentID; pid != nil {
			if parent, ok := byID[*pid]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots, nil
}

const (
	stateVisiting int8 = iota + 1
	stateDone
)

// checkAcyclic walks every parent chain once, memoizing visited nodes so the
// whole check stays linear in the number of permissions.
func checkAcyclic(byID map[int64]*Node) error {
	state := make(map[int64]int8, len(byID))

	var walk func(id int64) error
	walk = func(id int64) error {
		switch state[id] {
		case stateDone:
			return nil
		case stateVisiting:
			return fmt.Errorf("permissions: %d is its own ancestor: %w", id, httpx.ErrInvariant)
		}
		state[id] = stateVisiting
		node := byID[id]
		if pid := node.ParentID; pid != nil {
			if _, ok := byID[*pid]; ok {
				if err := walk(*pid); err != nil {
					return err
				}
			}
		}
		state[id] = stateDone
		return nil
	}

	for id := range byID {
		if err := walk(id); err != nil {
			return err
		}
	}
	return nil
}
