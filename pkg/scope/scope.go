// Package scope carries the acting user and tenant context through every
// operation, replacing ambient session state with an explicit value.
package scope

import "errors"

var ErrSubaccountRequired = errors.New("subaccount ID is required")

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
	RoleClient  Role = "client"
	// RoleSystem is used by internal services (dispatcher, worker) that act
	// across subaccounts on behalf of the platform itself.
	RoleSystem Role = "system"
)

// Context identifies who is acting and which subaccount the operation is
// scoped to. Every repository call takes one; repositories reject reads and
// writes outside the caller's subaccount unless the role is system.
type Context struct {
	UserID       string `json:"user_id"`
	SubaccountID string `json:"subaccount_id"`
	Role         Role   `json:"role"`
}

// System returns a scope that may touch any subaccount. Used by the trigger
// dispatcher and execution worker, which operate on behalf of all tenants.
func System() Context {
	return Context{UserID: "system", Role: RoleSystem}
}

// Tenant returns a scope acting as the platform inside a single subaccount.
// The execution engine uses it when running a tenant's workflow, so actions
// can never reach across subaccounts even with a corrupted snapshot.
func Tenant(subaccountID string) Context {
	return Context{UserID: "system", SubaccountID: subaccountID, Role: RoleManager}
}

// User returns a scope bound to a single subaccount.
func User(userID, subaccountID string, role Role) Context {
	return Context{UserID: userID, SubaccountID: subaccountID, Role: role}
}

// IsSystem reports whether this scope acts on behalf of the platform itself.
func (c Context) IsSystem() bool {
	return c.Role == RoleSystem
}

// CanAccess reports whether this scope may touch rows belonging to the given
// subaccount. Mirrors the has_subaccount_access check in the data store.
func (c Context) CanAccess(subaccountID string) bool {
	if c.Role == RoleSystem {
		return true
	}

	return c.SubaccountID != "" && c.SubaccountID == subaccountID
}

func (c Context) Validate() error {
	if c.Role != RoleSystem && c.SubaccountID == "" {
		return ErrSubaccountRequired
	}

	return nil
}
