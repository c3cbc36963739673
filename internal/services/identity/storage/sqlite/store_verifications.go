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

// PutVerification stores a one-shot challenge record, upserting on identifier.
func (s *Store) PutVerification(ctx context.Context, verification storage.Verification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(verification.Identifier) == "" {
		return fmt.Errorf("verification identifier is required")
	}
	if strings.TrimSpace(verification.Value) == "" {
		return fmt.Errorf("verification value is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO verifications (identifier, value, expires_at, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(identifier) DO UPDATE SET
	value = excluded.value,
	expires_at = excluded.expires_at
`,
		verification.Identifier,
		verification.Value,
		toMillis(verification.ExpiresAt),
		toMillis(verification.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put verification: %w", err)
	}
	return nil
}

// GetVerification fetches a challenge record by identifier.
func (s *Store) GetVerification(ctx context.Context, identifier string) (storage.Verification, error) {
	if err := ctx.Err(); err != nil {
		return storage.Verification{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Verification{}, fmt.Errorf("storage is not configured")
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return storage.Verification{}, fmt.Errorf("verification identifier is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT identifier, value, expires_at, created_at
FROM verifications
WHERE identifier = ?
`, identifier)

	var (
		verification storage.Verification
		expiresAt    int64
		createdAt    int64
	)
	if err := row.Scan(&verification.Identifier, &verification.Value, &expiresAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Verification{}, storage.ErrNotFound
		}
		return storage.Verification{}, fmt.Errorf("get verification: %w", err)
	}
	verification.ExpiresAt = fromMillis(expiresAt)
	verification.CreatedAt = fromMillis(createdAt)
	return verification, nil
}

// DeleteVerification removes a consumed challenge record.
func (s *Store) DeleteVerification(ctx context.Context, identifier string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return fmt.Errorf("verification identifier is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM verifications WHERE identifier = ?`, identifier); err != nil {
		return fmt.Errorf("delete verification: %w", err)
	}
	return nil
}

// DeleteExpiredVerifications reclaims challenges past their expiry.
func (s *Store) DeleteExpiredVerifications(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM verifications WHERE expires_at <= ?`, toMillis(now)); err != nil {
		return fmt.Errorf("delete expired verifications: %w", err)
	}
	return nil
}
