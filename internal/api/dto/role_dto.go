package dto

import (
	"time"

	"github.com/spec-kit/iam-service/internal/domain"
)

// PermissionResponse is the wire shape of a permission.
type PermissionResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Resource    string  `json:"resource"`
	Action      string  `json:"action"`
	Description *string `json:"description,omitempty"`
}

// RoleResponse is the wire shape of a role.
type RoleResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description *string              `json:"description,omitempty"`
	Permissions []PermissionResponse `json:"permissions"`
	IsSystem    bool                 `json:"isSystem"`
	UserCount   int                  `json:"userCount"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// CreateRoleRequest payload for POST /roles. Permissions holds permission ids.
type CreateRoleRequest struct {
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	Permissions []string `json:"permissions"`
}

// UpdateRoleRequest payload for PUT /roles/:id.
type UpdateRoleRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Permissions *[]string `json:"permissions"`
}

// AssignUsersRequest payload for POST /roles/:id/users.
type AssignUsersRequest struct {
	UserIDs []string `json:"userIds"`
}

// NewPermissionResponses maps permissions.
func NewPermissionResponses(perms []domain.Permission) []PermissionResponse {
	out := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, PermissionResponse{
			ID:          p.ID,
			Name:        p.Name,
			Resource:    p.Resource,
			Action:      p.Action,
			Description: p.Description,
		})
	}
	return out
}

// NewRoleResponse maps a domain role.
func NewRoleResponse(r domain.Role) RoleResponse {
	return RoleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Permissions: NewPermissionResponses(r.Permissions),
		IsSystem:    r.IsSystem,
		UserCount:   r.UserCount,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// NewRoleResponses maps a slice of roles.
func NewRoleResponses(roles []domain.Role) []RoleResponse {
	out := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		out = append(out, NewRoleResponse(r))
	}
	return out
}

// ToInput converts the request to a domain input.
func (r CreateRoleRequest) ToInput() domain.CreateRoleInput {
	return domain.CreateRoleInput{Name: r.Name, Description: r.Description, Permissions: r.Permissions}
}

// ToPatch converts the request to a domain patch.
func (r UpdateRoleRequest) ToPatch() domain.RolePatch {
	patch := domain.RolePatch{Name: r.Name, Description: r.Description}
	if r.Permissions != nil {
		patch.Permissions = *r.Permissions
		patch.SetPermissions = true
	}
	return patch
}
