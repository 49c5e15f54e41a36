package permissions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nova-admin/nova-admin/internal/platform/httpx"
)

func pid(v int64) *int64 { return &v }

func menuSet() []Permission {
	return []Permission{
		{ID: 1, Name: "System", Code: "SysMgt", Type: TypeMenu},
		{ID: 2, Name: "Users", Code: "UserMgt", Type: TypeMenu, ParentID: pid(1)},
		{ID: 3, Name: "Roles", Code: "RoleMgt", Type: TypeMenu, ParentID: pid(1)},
		{ID: 4, Name: "Add User", Code: "AddUser", Type: TypeButton, ParentID: pid(2)},
		{ID: 5, Name: "Orders", Code: "OrderMgt", Type: TypeMenu},
	}
}

func TestBuildTreeShapesForest(t *testing.T) {
	roots, err := BuildTree(menuSet())
	require.NoError(t, err)
	require.Len(t, roots, 2)

	system := roots[0]
	assert.Equal(t, "SysMgt", system.Code)
	require.Len(t, system.Children, 2)
	assert.Equal(t, "UserMgt", system.Children[0].Code)
	assert.Equal(t, "RoleMgt", system.Children[1].Code)
	require.Len(t, system.Children[0].Children, 1)
	assert.Equal(t, "AddUser", system.Children[0].Children[0].Code)

	assert.Equal(t, "OrderMgt", roots[1].Code)
	assert.Empty(t, roots[1].Children)
}

func TestBuildTreeKeepsInputOrder(t *testing.T) {
	perms := []Permission{
		{ID: 10, Code: "root"},
		{ID: 12, Code: "second", ParentID: pid(10)},
		{ID: 11, Code: "first", ParentID: pid(10)},
	}
	roots, err := BuildTree(perms)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	require.Len(t, roots[0].Children, 2)
	assert.Equal(t, "second", roots[0].Children[0].Code)
	assert.Equal(t, "first", roots[0].Children[1].Code)
}

func TestBuildTreeIsDeterministic(t *testing.T) {
	first, err := BuildTree(menuSet())
	require.NoError(t, err)
	second, err := BuildTree(menuSet())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildTreeAbsentParentBecomesRoot(t *testing.T) {
	// Filtering a role's grant can drop a parent while keeping its child.
	perms := []Permission{
		{ID: 2, Code: "UserMgt", ParentID: pid(1)},
		{ID: 4, Code: "AddUser", ParentID: pid(2)},
	}
	roots, err := BuildTree(perms)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "UserMgt", roots[0].Code)
	require.Len(t, roots[0].Children, 1)
	assert.Equal(t, "AddUser", roots[0].Children[0].Code)
}

func TestBuildTreeEmptyInput(t *testing.T) {
	roots, err := BuildTree(nil)
	require.NoError(t, err)
	assert.Empty(t, roots)
}

func TestBuildTreeRejectsCycle(t *testing.T) {
	perms := []Permission{
		{ID: 1, Code: "a", ParentID: pid(3)},
		{ID: 2, Code: "b", ParentID: pid(1)},
		{ID: 3, Code: "c", ParentID: pid(2)},
	}
	_, err := BuildTree(perms)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrInvariant))
}

func TestBuildTreeRejectsSelfParent(t *testing.T) {
	perms := []Permission{{ID: 7, Code: "loop", ParentID: pid(7)}}
	_, err := BuildTree(perms)
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpx.ErrInvariant))
}
