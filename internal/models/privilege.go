package models

import (
	"fmt"
	"strings"
)

// Privilege is the caller's authority inside the training workflow. Values are ordered.
type Privilege int

const (
	PrivilegeNone Privilege = iota
	PrivilegeStandard
	PrivilegeAdministrator
	PrivilegeHighest
)

var privilegeNames = map[Privilege]string{
	PrivilegeNone:          "none",
	PrivilegeStandard:      "standard",
	PrivilegeAdministrator: "administrator",
	PrivilegeHighest:       "highest",
}

// String returns the lowercase privilege name.
func (p Privilege) String() string {
	if name, ok := privilegeNames[p]; ok {
		return name
	}
	return fmt.Sprintf("privilege(%d)", int(p))
}

// AtLeast reports whether p grants min or more.
func (p Privilege) AtLeast(min Privilege) bool {
	return p >= min
}

// MarshalText renders the privilege name, used in JSON and audit metadata.
func (p Privilege) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParsePrivilege converts a privilege name back to its value.
func ParsePrivilege(raw string) (Privilege, error) {
	needle := strings.ToLower(strings.TrimSpace(raw))
	for p, name := range privilegeNames {
		if name == needle {
			return p, nil
		}
	}
	return PrivilegeNone, fmt.Errorf("unknown privilege %q", raw)
}
