package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/venuelink/venuelink/internal/services/identity/storage"
)

// PutBiometricToken stores a device-paired token, upserting on ID.
func (s *Store) PutBiometricToken(ctx context.Context, token storage.BiometricToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(token.ID) == "" {
		return fmt.Errorf("biometric token id is required")
	}
	if strings.TrimSpace(token.Token) == "" {
		return fmt.Errorf("biometric token value is required")
	}
	if strings.TrimSpace(token.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(token.DeviceID) == "" {
		return fmt.Errorf("device id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO biometric_tokens (id, token, user_id, device_id, expires_at, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	token = excluded.token,
	expires_at = excluded.expires_at
`,
		token.ID,
		token.Token,
		token.UserID,
		token.DeviceID,
		toNullMillis(token.ExpiresAt),
		toMillis(token.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("put biometric token: %w", err)
	}
	return nil
}

// GetBiometricToken fetches a token via the unique token index.
func (s *Store) GetBiometricToken(ctx context.Context, token string) (storage.BiometricToken, error) {
	if err := ctx.Err(); err != nil {
		return storage.BiometricToken{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.BiometricToken{}, fmt.Errorf("storage is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return storage.BiometricToken{}, fmt.Errorf("biometric token value is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, token, user_id, device_id, expires_at, created_at
FROM biometric_tokens
WHERE token = ?
`, token)

	var (
		record    storage.BiometricToken
		expiresAt sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(&record.ID, &record.Token, &record.UserID, &record.DeviceID, &expiresAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.BiometricToken{}, storage.ErrNotFound
		}
		return storage.BiometricToken{}, fmt.Errorf("get biometric token: %w", err)
	}
	record.ExpiresAt = fromNullMillis(expiresAt)
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

// DeleteBiometricTokensByDevice bulk-invalidates all tokens for one device.
// A single DELETE keeps the unpairing all-or-nothing.
func (s *Store) DeleteBiometricTokensByDevice(ctx context.Context, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM biometric_tokens WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("delete biometric tokens: %w", err)
	}
	return nil
}

// DeleteExpiredBiometricTokens reclaims tokens past their expiry.
// Tokens with NULL expiry are legacy records and are left alone.
func (s *Store) DeleteExpiredBiometricTokens(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM biometric_tokens WHERE expires_at IS NOT NULL AND expires_at <= ?`, toMillis(now)); err != nil {
		return fmt.Errorf("delete expired biometric tokens: %w", err)
	}
	return nil
}
