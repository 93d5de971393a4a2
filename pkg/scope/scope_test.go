package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemScope(t *testing.T) {
	sc := System()

	assert.True(t, sc.IsSystem())
	assert.NoError(t, sc.Validate())
	assert.True(t, sc.CanAccess("sub-1"))
	assert.True(t, sc.CanAccess("sub-2"))
}

func TestTenantScope(t *testing.T) {
	sc := Tenant("sub-1")

	assert.False(t, sc.IsSystem())
	assert.NoError(t, sc.Validate())
	assert.True(t, sc.CanAccess("sub-1"))
	assert.False(t, sc.CanAccess("sub-2"))
}

func TestUserScope(t *testing.T) {
	sc := User("user-1", "sub-1", RoleMember)

	assert.Equal(t, "user-1", sc.UserID)
	assert.False(t, sc.IsSystem())
	assert.True(t, sc.CanAccess("sub-1"))
	assert.False(t, sc.CanAccess(""))
}

func TestValidate_RequiresSubaccount(t *testing.T) {
	sc := Context{UserID: "user-1", Role: RoleManager}

	assert.ErrorIs(t, sc.Validate(), ErrSubaccountRequired)
}

func TestCanAccess_EmptySubaccountNeverMatches(t *testing.T) {
	sc := Context{UserID: "user-1", Role: RoleManager}

	assert.False(t, sc.CanAccess(""))
	assert.False(t, sc.CanAccess("sub-1"))
}
