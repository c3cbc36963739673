// Package access computes effective tenant roles and capability sets.
package access

import (
	"strings"

	"github.com/venuelink/venuelink/internal/platform/errors"
)

// Role is a per-tenant membership role.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleModerator Role = "MODERATOR"
	RoleStaff     Role = "STAFF"
)

// ParseRole validates a stored role string.
func ParseRole(value string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleModerator:
		return RoleModerator, nil
	case RoleStaff:
		return RoleStaff, nil
	default:
		return "", errors.WithMetadata(errors.CodeInvalidRole, "unknown tenant role", map[string]string{
			"role": value,
		})
	}
}

// Capabilities is the effective permission set for a membership.
type Capabilities struct {
	CanModerate     bool
	CanManageOrders bool
	CanViewStats    bool
}

// AllCapabilities is the full set, held by admins and superadmins.
var AllCapabilities = Capabilities{CanModerate: true, CanManageOrders: true, CanViewStats: true}

func roleCapabilities(role Role) Capabilities {
	switch role {
	case RoleAdmin:
		return AllCapabilities
	case RoleModerator:
		return Capabilities{CanModerate: true}
	default:
		return Capabilities{}
	}
}

// ResolveCapabilities unions the role's defaults with per-membership
// overrides. Overrides only ever add capability; they can never revoke a
// role-implied one.
func ResolveCapabilities(role Role, overrides Capabilities) Capabilities {
	base := roleCapabilities(role)
	return Capabilities{
		CanModerate:     base.CanModerate || overrides.CanModerate,
		CanManageOrders: base.CanManageOrders || overrides.CanManageOrders,
		CanViewStats:    base.CanViewStats || overrides.CanViewStats,
	}
}
