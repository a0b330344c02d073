package dto

import (
	"time"

	"github.com/spec-kit/iam-service/internal/domain"
)

// UserResponse is the wire shape of a user.
type UserResponse struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Phone     *string    `json:"phone,omitempty"`
	Status    string     `json:"status"`
	Roles     []string   `json:"roles"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

// CreateUserRequest payload for POST /users.
type CreateUserRequest struct {
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Phone     *string  `json:"phone"`
	Password  string   `json:"password"`
	Roles     []string `json:"roles"`
}

// UpdateUserRequest payload for PUT /users/:id. Absent fields stay unchanged;
// a present roles array, even an empty one, replaces the role set.
type UpdateUserRequest struct {
	Username  *string   `json:"username"`
	Email     *string   `json:"email"`
	FirstName *string   `json:"firstName"`
	LastName  *string   `json:"lastName"`
	Phone     *string   `json:"phone"`
	Status    *string   `json:"status"`
	Roles     *[]string `json:"roles"`
}

// AssignRolesRequest payload for POST /users/:id/roles.
type AssignRolesRequest struct {
	RoleIDs []string `json:"roleIds"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(u domain.User) UserResponse {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		Status:    string(u.Status),
		Roles:     roles,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		LastLogin: u.LastLogin,
	}
}

// NewUserResponses maps a slice of users.
func NewUserResponses(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, NewUserResponse(u))
	}
	return out
}

// ToInput converts the request to a domain input.
func (r CreateUserRequest) ToInput() domain.CreateUserInput {
	return domain.CreateUserInput{
		Username:  r.Username,
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Phone:     r.Phone,
		Password:  r.Password,
		Roles:     r.Roles,
	}
}

// ToPatch converts the request to a domain patch.
func (r UpdateUserRequest) ToPatch() domain.UserPatch {
	patch := domain.UserPatch{
		Username:  r.Username,
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Phone:     r.Phone,
	}
	if r.Status != nil {
		status := domain.UserStatus(*r.Status)
		patch.Status = &status
	}
	if r.Roles != nil {
		patch.Roles = *r.Roles
		patch.SetRoles = true
	}
	return patch
}
