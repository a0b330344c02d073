package domain

import "time"

// Permission is read-only reference data describing one action on one resource.
type Permission struct {
	ID          string
	Name        string
	Resource    string
	Action      string
	Description *string
}

// Role groups permissions. UserCount is derived from membership and never authoritative.
type Role struct {
	ID          string
	Name        string
	Description *string
	Permissions []Permission
	IsSystem    bool
	UserCount   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a deep copy of the role.
func (r Role) Clone() Role {
	out := r
	if r.Permissions != nil {
		out.Permissions = append([]Permission(nil), r.Permissions...)
	}
	if r.Description != nil {
		desc := *r.Description
		out.Description = &desc
	}
	return out
}

// CreateRoleInput is the payload accepted by CreateRole. Permissions holds permission ids.
type CreateRoleInput struct {
	Name        string
	Description *string
	Permissions []string
}

// RolePatch carries a partial role update; nil fields are left unchanged.
type RolePatch struct {
	Name           *string
	Description    *string
	Permissions    []string
	SetPermissions bool
}

// RoleMembership is the committed member set of one role.
type RoleMembership struct {
	RoleID  string
	UserIDs []string
}
