package domain

import "strings"

// Room name prefixes for rooms every authenticated socket joins on connect.
const (
	RoleRoomPrefix = "ROLE_"
	UserRoomPrefix = "USER_"
)

// Principal is the authenticated identity attached to a job owner or a socket.
// It carries only what routing needs and is passed around by value.
type Principal struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// IsZero reports whether no identity is attached.
func (p Principal) IsZero() bool {
	return p.ID == ""
}

// RoleRoom returns the role-scoped room name, e.g. "ROLE_admin".
func (p Principal) RoleRoom() string {
	return RoleRoom(p.Role)
}

// UserRoom returns the personal room name of the principal.
func (p Principal) UserRoom() string {
	return UserRoom(p.ID)
}

// RoleRoom builds a role room name.
func RoleRoom(role string) string {
	return RoleRoomPrefix + strings.TrimSpace(role)
}

// UserRoom builds a personal room name.
func UserRoom(userID string) string {
	return UserRoomPrefix + userID
}

// Account is the current state of a principal as known by its owning store.
// A principal whose account is inactive must not be granted new connections.
type Account struct {
	Principal
	Active bool
}
