package domain

import "time"

// UserStatus represents lifecycle states for an administrated account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

// Valid reports whether s is a known status.
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended:
		return true
	}
	return false
}

// User is an account managed through the IAM console. Roles holds role names by value.
type User struct {
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string
	Phone     *string
	Status    UserStatus
	Roles     []string
	CreatedAt time.Time
	UpdatedAt time.Time
	LastLogin *time.Time
}

// Clone returns a deep copy so callers never share slices with the store.
func (u User) Clone() User {
	out := u
	if u.Roles != nil {
		out.Roles = append([]string(nil), u.Roles...)
	}
	if u.Phone != nil {
		phone := *u.Phone
		out.Phone = &phone
	}
	if u.LastLogin != nil {
		last := *u.LastLogin
		out.LastLogin = &last
	}
	return out
}

// CreateUserInput is the payload accepted by CreateUser.
type CreateUserInput struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Phone     *string
	Password  string
	Roles     []string
}

// UserPatch carries a partial update; nil fields are left unchanged.
type UserPatch struct {
	Username  *string
	Email     *string
	FirstName *string
	LastName  *string
	Phone     *string
	Status    *UserStatus
	Roles     []string
	SetRoles  bool
}

// Apply returns a copy of u with the patch fields applied. Roles are not touched.
func (p UserPatch) Apply(u User) User {
	out := u.Clone()
	if p.Username != nil {
		out.Username = *p.Username
	}
	if p.Email != nil {
		out.Email = *p.Email
	}
	if p.FirstName != nil {
		out.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		out.LastName = *p.LastName
	}
	if p.Phone != nil {
		phone := *p.Phone
		out.Phone = &phone
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	return out
}
