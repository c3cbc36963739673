package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/venuelink/venuelink/internal/services/identity/storage"
)

const tenantColumns = `id, name, slug, metadata, address, latitude, longitude, bssid, static_ip, menu_enabled, feedback_enabled, staff_enabled, created_at, updated_at`

// PutTenant persists a tenant record, upserting on ID.
func (s *Store) PutTenant(ctx context.Context, tenant storage.Tenant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(tenant.ID) == "" {
		return fmt.Errorf("tenant id is required")
	}
	if strings.TrimSpace(tenant.Slug) == "" {
		return fmt.Errorf("tenant slug is required")
	}

	var latitude, longitude sql.NullFloat64
	if tenant.Latitude != nil {
		latitude = sql.NullFloat64{Float64: *tenant.Latitude, Valid: true}
	}
	if tenant.Longitude != nil {
		longitude = sql.NullFloat64{Float64: *tenant.Longitude, Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO tenants (
	id, name, slug, metadata, address, latitude, longitude, bssid, static_ip, menu_enabled, feedback_enabled, staff_enabled, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	slug = excluded.slug,
	metadata = excluded.metadata,
	address = excluded.address,
	latitude = excluded.latitude,
	longitude = excluded.longitude,
	bssid = excluded.bssid,
	static_ip = excluded.static_ip,
	menu_enabled = excluded.menu_enabled,
	feedback_enabled = excluded.feedback_enabled,
	staff_enabled = excluded.staff_enabled,
	updated_at = excluded.updated_at
`,
		tenant.ID,
		tenant.Name,
		tenant.Slug,
		tenant.Metadata,
		tenant.Address,
		latitude,
		longitude,
		toNullString(tenant.BSSID),
		toNullString(tenant.StaticIP),
		tenant.MenuEnabled,
		tenant.FeedbackEnabled,
		tenant.StaffEnabled,
		toMillis(tenant.CreatedAt),
		toMillis(tenant.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("put tenant: %w", err)
	}
	return nil
}

// GetTenant fetches a tenant record by ID.
func (s *Store) GetTenant(ctx context.Context, tenantID string) (storage.Tenant, error) {
	return s.getTenantWhere(ctx, "id = ?", strings.TrimSpace(tenantID), "tenant id is required")
}

// GetTenantBySlug fetches a tenant via the unique slug index.
func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (storage.Tenant, error) {
	return s.getTenantWhere(ctx, "slug = ?", strings.TrimSpace(slug), "tenant slug is required")
}

// GetTenantByBSSID fetches a tenant by its recorded primary access point.
func (s *Store) GetTenantByBSSID(ctx context.Context, bssid string) (storage.Tenant, error) {
	return s.getTenantWhere(ctx, "bssid = ?", strings.TrimSpace(bssid), "tenant bssid is required")
}

func (s *Store) getTenantWhere(ctx context.Context, where, value, requiredMsg string) (storage.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return storage.Tenant{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Tenant{}, fmt.Errorf("storage is not configured")
	}
	if value == "" {
		return storage.Tenant{}, fmt.Errorf("%s", requiredMsg)
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+tenantColumns+`
FROM tenants
WHERE `+where+`
`, value)
	tenant, err := scanTenant(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Tenant{}, storage.ErrNotFound
		}
		return storage.Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	return tenant, nil
}

func scanTenant(scan func(dest ...any) error) (storage.Tenant, error) {
	var (
		tenant    storage.Tenant
		latitude  sql.NullFloat64
		longitude sql.NullFloat64
		bssid     sql.NullString
		staticIP  sql.NullString
		createdAt int64
		updatedAt int64
	)
	if err := scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Slug,
		&tenant.Metadata,
		&tenant.Address,
		&latitude,
		&longitude,
		&bssid,
		&staticIP,
		&tenant.MenuEnabled,
		&tenant.FeedbackEnabled,
		&tenant.StaffEnabled,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.Tenant{}, err
	}
	if latitude.Valid {
		tenant.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		tenant.Longitude = &longitude.Float64
	}
	tenant.BSSID = fromNullString(bssid)
	tenant.StaticIP = fromNullString(staticIP)
	tenant.CreatedAt = fromMillis(createdAt)
	tenant.UpdatedAt = fromMillis(updatedAt)
	return tenant, nil
}

// PutTenantMember persists a membership row, upserting on the unique
// (user_id, tenant_id) pair.
func (s *Store) PutTenantMember(ctx context.Context, member storage.TenantMember) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(member.ID) == "" {
		return fmt.Errorf("tenant member id is required")
	}
	if strings.TrimSpace(member.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(member.TenantID) == "" {
		return fmt.Errorf("tenant id is required")
	}
	if strings.TrimSpace(member.Role) == "" {
		return fmt.Errorf("tenant role is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO tenant_members (
	id, user_id, tenant_id, role, can_moderate, can_manage_orders, can_view_stats, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id, tenant_id) DO UPDATE SET
	role = excluded.role,
	can_moderate = excluded.can_moderate,
	can_manage_orders = excluded.can_manage_orders,
	can_view_stats = excluded.can_view_stats,
	updated_at = excluded.updated_at
`,
		member.ID,
		member.UserID,
		member.TenantID,
		member.Role,
		member.CanModerate,
		member.CanManageOrders,
		member.CanViewStats,
		toMillis(member.CreatedAt),
		toMillis(member.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put tenant member: %w", err)
	}
	return nil
}

// GetTenantMember fetches the unique membership row for a user and tenant.
func (s *Store) GetTenantMember(ctx context.Context, userID, tenantID string) (storage.TenantMember, error) {
	if err := ctx.Err(); err != nil {
		return storage.TenantMember{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TenantMember{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	if userID == "" || tenantID == "" {
		return storage.TenantMember{}, fmt.Errorf("user id and tenant id are required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, user_id, tenant_id, role, can_moderate, can_manage_orders, can_view_stats, created_at, updated_at
FROM tenant_members
WHERE user_id = ? AND tenant_id = ?
`, userID, tenantID)
	member, err := scanTenantMember(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TenantMember{}, storage.ErrNotFound
		}
		return storage.TenantMember{}, fmt.Errorf("get tenant member: %w", err)
	}
	return member, nil
}

// ListTenantMembersByTenant returns all membership rows for one tenant.
func (s *Store) ListTenantMembersByTenant(ctx context.Context, tenantID string) ([]storage.TenantMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, user_id, tenant_id, role, can_moderate, can_manage_orders, can_view_stats, created_at, updated_at
FROM tenant_members
WHERE tenant_id = ?
ORDER BY created_at, id
`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tenant members: %w", err)
	}
	defer rows.Close()

	members := make([]storage.TenantMember, 0)
	for rows.Next() {
		member, err := scanTenantMember(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan tenant member row: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenant member rows: %w", err)
	}
	return members, nil
}

// DeleteTenantMember removes a membership row.
func (s *Store) DeleteTenantMember(ctx context.Context, userID, tenantID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	if userID == "" || tenantID == "" {
		return fmt.Errorf("user id and tenant id are required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM tenant_members WHERE user_id = ? AND tenant_id = ?`, userID, tenantID); err != nil {
		return fmt.Errorf("delete tenant member: %w", err)
	}
	return nil
}

func scanTenantMember(scan func(dest ...any) error) (storage.TenantMember, error) {
	var (
		member    storage.TenantMember
		createdAt int64
		updatedAt int64
	)
	if err := scan(
		&member.ID,
		&member.UserID,
		&member.TenantID,
		&member.Role,
		&member.CanModerate,
		&member.CanManageOrders,
		&member.CanViewStats,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.TenantMember{}, err
	}
	member.CreatedAt = fromMillis(createdAt)
	member.UpdatedAt = fromMillis(updatedAt)
	return member, nil
}
