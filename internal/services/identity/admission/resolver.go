// Package admission maps observed network identifiers to the tenant that
// owns the connection, before any user authentication has happened.
package admission

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/venuelink/venuelink/internal/platform/errors"
	"github.com/venuelink/venuelink/internal/services/identity/storage"
)

// Observed carries the network identifiers reported for one connection.
// Any subset may be present.
type Observed struct {
	NasID    string
	VpnIP    string
	PublicIP string
	BSSID    string
}

func (o Observed) normalized() Observed {
	return Observed{
		NasID:    strings.TrimSpace(o.NasID),
		VpnIP:    strings.TrimSpace(o.VpnIP),
		PublicIP: strings.TrimSpace(o.PublicIP),
		BSSID:    strings.TrimSpace(o.BSSID),
	}
}

func (o Observed) empty() bool {
	return o.NasID == "" && o.VpnIP == "" && o.PublicIP == "" && o.BSSID == ""
}

// Match identifier labels, in decreasing order of trust.
const (
	MatchedByNasID       = "nas_id"
	MatchedByBSSID       = "bssid"
	MatchedByVpnIP       = "vpn_ip"
	MatchedByPublicIP    = "public_ip"
	MatchedByTenantBSSID = "tenant_bssid"
)

// Result is a successful admission resolution.
type Result struct {
	Tenant storage.Tenant
	// MatchedBy names the identifier that decided the admission.
	MatchedBy string
	// DeviceID is the matched NasDevice row, empty on the tenant fallback.
	DeviceID string
}

// Resolver resolves connections to tenants via the registered device roster.
type Resolver struct {
	devices storage.NasDeviceStore
	tenants storage.TenantStore
}

// NewResolver wires an admission resolver over the device and tenant stores.
func NewResolver(devices storage.NasDeviceStore, tenants storage.TenantStore) *Resolver {
	return &Resolver{devices: devices, tenants: tenants}
}

type deviceMatch struct {
	matchedBy string
	device    storage.NasDevice
}

// ResolveTenant maps observed identifiers to the owning tenant.
//
// Device lookups run in decreasing trust order: nasId, then bssid, then
// vpnIp, then publicIp. Every provided identifier is checked, and if two of
// them land on devices of distinct tenants the resolution fails closed as
// ambiguous instead of trusting the higher tier. A tenant's own registered
// bssid is only consulted when no device matched anything. No identifiers at
// all resolves to not found.
func (r *Resolver) ResolveTenant(ctx context.Context, observed Observed) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	observed = observed.normalized()
	if observed.empty() {
		return Result{}, errors.Wrap(errors.CodeNotFound, "no network identifiers observed", storage.ErrNotFound)
	}

	matches, err := r.deviceMatches(ctx, observed)
	if err != nil {
		return Result{}, err
	}
	if len(matches) > 0 {
		if conflict := distinctTenants(matches); conflict != nil {
			return Result{}, errors.WithMetadata(errors.CodeAmbiguousAdmission, "observed identifiers belong to different tenants", map[string]string{
				"tenant_ids": strings.Join(conflict, ","),
			})
		}
		best := matches[0]
		tenant, err := r.tenants.GetTenant(ctx, best.device.TenantID)
		if err != nil {
			return Result{}, fmt.Errorf("load tenant %s: %w", best.device.TenantID, err)
		}
		return Result{Tenant: tenant, MatchedBy: best.matchedBy, DeviceID: best.device.ID}, nil
	}

	if observed.BSSID != "" {
		tenant, err := r.tenants.GetTenantByBSSID(ctx, observed.BSSID)
		if err == nil {
			return Result{Tenant: tenant, MatchedBy: MatchedByTenantBSSID}, nil
		}
		if !stderrors.Is(err, storage.ErrNotFound) {
			return Result{}, fmt.Errorf("lookup tenant by bssid: %w", err)
		}
	}

	return Result{}, errors.Wrap(errors.CodeNotFound, "no tenant matches the observed identifiers", storage.ErrNotFound)
}

// deviceMatches probes every provided identifier, in priority order.
func (r *Resolver) deviceMatches(ctx context.Context, observed Observed) ([]deviceMatch, error) {
	probes := []struct {
		matchedBy string
		value     string
		lookup    func(context.Context, string) (storage.NasDevice, error)
	}{
		{MatchedByNasID, observed.NasID, r.devices.GetNasDeviceByNasID},
		{MatchedByBSSID, observed.BSSID, r.devices.GetNasDeviceByBSSID},
		{MatchedByVpnIP, observed.VpnIP, r.devices.GetNasDeviceByVpnIP},
		{MatchedByPublicIP, observed.PublicIP, r.devices.GetNasDeviceByPublicIP},
	}

	var matches []deviceMatch
	for _, probe := range probes {
		if probe.value == "" {
			continue
		}
		device, err := probe.lookup(ctx, probe.value)
		if err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("lookup device by %s: %w", probe.matchedBy, err)
		}
		matches = append(matches, deviceMatch{matchedBy: probe.matchedBy, device: device})
	}
	return matches, nil
}

// distinctTenants returns the conflicting tenant ids, or nil when all
// matches agree.
func distinctTenants(matches []deviceMatch) []string {
	seen := make(map[string]struct{}, len(matches))
	var ids []string
	for _, m := range matches {
		if _, ok := seen[m.device.TenantID]; ok {
			continue
		}
		seen[m.device.TenantID] = struct{}{}
		ids = append(ids, m.device.TenantID)
	}
	if len(ids) > 1 {
		return ids
	}
	return nil
}
