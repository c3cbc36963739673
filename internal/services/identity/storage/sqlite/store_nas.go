package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/venuelink/venuelink/internal/services/identity/storage"
)

const nasDeviceColumns = `id, nas_id, vpn_ip, public_ip, bssid, name, tenant_id, created_at, updated_at`

// PutNasDevice persists a network device record, upserting on ID. Each of the
// four network identifiers is unique when present, so a collision with another
// device surfaces as ErrDuplicate.
func (s *Store) PutNasDevice(ctx context.Context, device storage.NasDevice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(device.ID) == "" {
		return fmt.Errorf("nas device id is required")
	}
	if strings.TrimSpace(device.TenantID) == "" {
		return fmt.Errorf("tenant id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO nas_devices (
	id, nas_id, vpn_ip, public_ip, bssid, name, tenant_id, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	nas_id = excluded.nas_id,
	vpn_ip = excluded.vpn_ip,
	public_ip = excluded.public_ip,
	bssid = excluded.bssid,
	name = excluded.name,
	tenant_id = excluded.tenant_id,
	updated_at = excluded.updated_at
`,
		device.ID,
		toNullString(device.NasID),
		toNullString(device.VpnIP),
		toNullString(device.PublicIP),
		toNullString(device.BSSID),
		device.Name,
		device.TenantID,
		toMillis(device.CreatedAt),
		toMillis(device.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("put nas device: %w", err)
	}
	return nil
}

// GetNasDevice fetches a device record by ID.
func (s *Store) GetNasDevice(ctx context.Context, deviceID string) (storage.NasDevice, error) {
	return s.getNasDeviceWhere(ctx, "id = ?", strings.TrimSpace(deviceID), "nas device id is required")
}

// GetNasDeviceByNasID fetches a device by its RADIUS NAS identifier.
func (s *Store) GetNasDeviceByNasID(ctx context.Context, nasID string) (storage.NasDevice, error) {
	return s.getNasDeviceWhere(ctx, "nas_id = ?", strings.TrimSpace(nasID), "nas identifier is required")
}

// GetNasDeviceByBSSID fetches a device by access point MAC.
func (s *Store) GetNasDeviceByBSSID(ctx context.Context, bssid string) (storage.NasDevice, error) {
	return s.getNasDeviceWhere(ctx, "bssid = ?", strings.TrimSpace(bssid), "bssid is required")
}

// GetNasDeviceByVpnIP fetches a device by its tunnel address.
func (s *Store) GetNasDeviceByVpnIP(ctx context.Context, vpnIP string) (storage.NasDevice, error) {
	return s.getNasDeviceWhere(ctx, "vpn_ip = ?", strings.TrimSpace(vpnIP), "vpn ip is required")
}

// GetNasDeviceByPublicIP fetches a device by its egress address.
func (s *Store) GetNasDeviceByPublicIP(ctx context.Context, publicIP string) (storage.NasDevice, error) {
	return s.getNasDeviceWhere(ctx, "public_ip = ?", strings.TrimSpace(publicIP), "public ip is required")
}

// DeleteNasDevice removes a device record by ID.
func (s *Store) DeleteNasDevice(ctx context.Context, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return fmt.Errorf("nas device id is required")
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM nas_devices WHERE id = ?`, deviceID)
	if err != nil {
		return fmt.Errorf("delete nas device: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete nas device rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) getNasDeviceWhere(ctx context.Context, where, value, requiredMsg string) (storage.NasDevice, error) {
	if err := ctx.Err(); err != nil {
		return storage.NasDevice{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.NasDevice{}, fmt.Errorf("storage is not configured")
	}
	if value == "" {
		return storage.NasDevice{}, fmt.Errorf("%s", requiredMsg)
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+nasDeviceColumns+`
FROM nas_devices
WHERE `+where+`
`, value)
	device, err := scanNasDevice(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.NasDevice{}, storage.ErrNotFound
		}
		return storage.NasDevice{}, fmt.Errorf("get nas device: %w", err)
	}
	return device, nil
}

func scanNasDevice(scan func(dest ...any) error) (storage.NasDevice, error) {
	var (
		device    storage.NasDevice
		nasID     sql.NullString
		vpnIP     sql.NullString
		publicIP  sql.NullString
		bssid     sql.NullString
		createdAt int64
		updatedAt int64
	)
	if err := scan(
		&device.ID,
		&nasID,
		&vpnIP,
		&publicIP,
		&bssid,
		&device.Name,
		&device.TenantID,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.NasDevice{}, err
	}
	device.NasID = fromNullString(nasID)
	device.VpnIP = fromNullString(vpnIP)
	device.PublicIP = fromNullString(publicIP)
	device.BSSID = fromNullString(bssid)
	device.CreatedAt = fromMillis(createdAt)
	device.UpdatedAt = fromMillis(updatedAt)
	return device, nil
}
