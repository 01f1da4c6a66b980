package role

import "strings"

// Role is the permission level of a chat. It is never stored locally.
type Role int

const (
	Unassigned Role = iota
	User
	Admin
	Moderator
)

var names = map[Role]string{
	Unassigned: "Unassigned",
	User:       "User",
	Admin:      "Admin",
	Moderator:  "Moderator",
}

func (r Role) String() string {
	if n, ok := names[r]; ok {
		return n
	}
	return names[Unassigned]
}

// Parse normalises a directory or user supplied role name. Matching is
// case-insensitive; anything unrecognised is Unassigned.
func Parse(s string) Role {
	s = strings.TrimSpace(s)
	for r, n := range names {
		if strings.EqualFold(s, n) {
			return r
		}
	}
	return Unassigned
}

// Selectable lists the roles a chat may choose, in prompt order.
func Selectable() []Role { return []Role{User, Admin, Moderator} }

// Privileged reports whether choosing r requires a passcode.
func (r Role) Privileged() bool { return r == Admin || r == Moderator }
