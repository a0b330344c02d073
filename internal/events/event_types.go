package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserCreated         EventType = "user.created"
	EventUserUpdated         EventType = "user.updated"
	EventUserDeleted         EventType = "user.deleted"
	EventUserRolesReplaced   EventType = "user.roles_replaced"
	EventRoleCreated         EventType = "role.created"
	EventRoleUpdated         EventType = "role.updated"
	EventRoleDeleted         EventType = "role.deleted"
	EventRoleMembersReplaced EventType = "role.members_replaced"
)

// Event is emitted after a command commits to the entity store.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	CommandID string      `json:"command_id"`
	EntityID  string      `json:"entity_id"`
	Actor     string      `json:"actor,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// UserPayload carries the identifying fields of a user event.
type UserPayload struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// RolePayload carries the identifying fields of a role event.
type RolePayload struct {
	Name      string `json:"name"`
	UserCount int    `json:"user_count"`
	Cascade   bool   `json:"cascade,omitempty"`
}

// MembershipPayload describes a replaced relationship set.
type MembershipPayload struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}
