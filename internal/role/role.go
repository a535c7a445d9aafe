package role

import (
	"fmt"
	"strings"
)

// Role is a closed set. The zero value is not a role.
type Role uint8

const (
	User Role = iota + 1
	Creator
	Admin
)

func Parse(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return User, nil
	case "creator":
		return Creator, nil
	case "admin":
		return Admin, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	switch r {
	case User:
		return "user"
	case Creator:
		return "creator"
	case Admin:
		return "admin"
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

func (r Role) Valid() bool { return r >= User && r <= Admin }

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Guard admits a request iff the resolved role is in Accepted.
type Guard struct {
	Name     string
	Accepted []Role
}

var (
	CreatorGuard = Guard{Name: "creator", Accepted: []Role{Creator, Admin}}
	AdminGuard   = Guard{Name: "admin", Accepted: []Role{Admin}}
)

func (g Guard) Admits(r Role) bool {
	for _, a := range g.Accepted {
		if a == r {
			return true
		}
	}
	return false
}

type NavItem struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

var (
	userNav = []NavItem{
		{"My Profile", "/dashboard/profile"},
		{"Participated Contests", "/dashboard/participated"},
		{"Winning Contests", "/dashboard/winning"},
	}
	creatorNav = []NavItem{
		{"Add Contest", "/dashboard/add-contest"},
		{"My Created Contests", "/dashboard/my-contests"},
		{"Submissions", "/dashboard/submissions"},
	}
	adminNav = []NavItem{
		{"Manage Users", "/dashboard/manage-users"},
		{"Manage Contests", "/dashboard/manage-contests"},
	}
)

// Navigation builds the dashboard menu for r.
func Navigation(r Role) []NavItem {
	out := append([]NavItem{}, userNav...)
	switch r {
	case User:
	case Creator:
		out = append(out, creatorNav...)
	case Admin:
		out = append(out, creatorNav...)
		out = append(out, adminNav...)
	default:
		return nil
	}
	return out
}
