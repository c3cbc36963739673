package access

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/venuelink/venuelink/internal/platform/errors"
	"github.com/venuelink/venuelink/internal/services/identity/storage"
	"github.com/venuelink/venuelink/internal/services/identity/user"
)

// Grant is the resolved authorization for one user within one tenant.
type Grant struct {
	UserID       string
	TenantID     string
	Role         Role
	Capabilities Capabilities
	// Superadmin marks grants minted from the global role rather than a
	// membership row.
	Superadmin bool
}

// ConnectionContext carries the network identifiers observed on the request,
// used to enforce a tenant's on-premises lock.
type ConnectionContext struct {
	BSSID    string
	PublicIP string
}

// Resolver computes effective grants from users, memberships and tenants.
type Resolver struct {
	users   storage.UserStore
	members storage.TenantMemberStore
	tenants storage.TenantStore
}

// NewResolver wires a resolver over the identity stores.
func NewResolver(users storage.UserStore, members storage.TenantMemberStore, tenants storage.TenantStore) *Resolver {
	return &Resolver{users: users, members: members, tenants: tenants}
}

// Resolve returns the user's effective role and capabilities for a tenant.
//
// The global role is checked before membership: a superadmin holds every
// capability in every tenant without a membership row. Everyone else needs a
// membership, and their capabilities are the union of the role's defaults
// and the row's per-member overrides.
func (r *Resolver) Resolve(ctx context.Context, userID, tenantID string) (Grant, error) {
	if err := ctx.Err(); err != nil {
		return Grant{}, err
	}
	if userID == "" {
		return Grant{}, fmt.Errorf("user id is required")
	}
	if tenantID == "" {
		return Grant{}, fmt.Errorf("tenant id is required")
	}

	u, err := r.users.GetUser(ctx, userID)
	if err != nil {
		return Grant{}, fmt.Errorf("load user: %w", err)
	}
	if u.Role == user.RoleSuperadmin {
		return Grant{
			UserID:       userID,
			TenantID:     tenantID,
			Role:         RoleAdmin,
			Capabilities: AllCapabilities,
			Superadmin:   true,
		}, nil
	}

	member, err := r.members.GetTenantMember(ctx, userID, tenantID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return Grant{}, errors.WithMetadata(errors.CodeNotAMember, "user is not a member of this tenant", map[string]string{
				"user_id":   userID,
				"tenant_id": tenantID,
			})
		}
		return Grant{}, fmt.Errorf("load membership: %w", err)
	}

	role, err := ParseRole(member.Role)
	if err != nil {
		return Grant{}, err
	}

	return Grant{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		Capabilities: ResolveCapabilities(role, Capabilities{
			CanModerate:     member.CanModerate,
			CanManageOrders: member.CanManageOrders,
			CanViewStats:    member.CanViewStats,
		}),
	}, nil
}

// ResolveOnPremises resolves a grant and additionally enforces the tenant's
// hardware lock. A tenant that registered a BSSID or a static public IP only
// admits members whose connection shows at least one matching identifier.
// Tenants with neither identifier registered carry no lock. Superadmins
// bypass the lock along with membership.
func (r *Resolver) ResolveOnPremises(ctx context.Context, userID, tenantID string, conn ConnectionContext) (Grant, error) {
	grant, err := r.Resolve(ctx, userID, tenantID)
	if err != nil {
		return Grant{}, err
	}
	if grant.Superadmin {
		return grant, nil
	}

	tenant, err := r.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return Grant{}, fmt.Errorf("load tenant: %w", err)
	}
	if tenant.BSSID == "" && tenant.StaticIP == "" {
		return grant, nil
	}
	if tenant.BSSID != "" && conn.BSSID == tenant.BSSID {
		return grant, nil
	}
	if tenant.StaticIP != "" && conn.PublicIP == tenant.StaticIP {
		return grant, nil
	}
	return Grant{}, errors.WithMetadata(errors.CodeLocationMismatch, "connection does not match the tenant's registered location", map[string]string{
		"tenant_id": tenantID,
	})
}
