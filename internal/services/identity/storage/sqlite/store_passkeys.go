package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/venuelink/venuelink/internal/platform/errors"
	"github.com/venuelink/venuelink/internal/services/identity/storage"
)

const passkeyColumns = `id, name, public_key, user_id, credential_id, counter, device_type, backed_up, transports, aaguid, created_at, last_used_at`

// CreatePasskey inserts a credential and deletes the consumed challenge in a
// single transaction. A credential ID collision fails the whole transaction
// with a duplicate-credential error and the challenge is left intact.
func (s *Store) CreatePasskey(ctx context.Context, passkey storage.Passkey, consumedIdentifier string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(passkey.ID) == "" {
		return fmt.Errorf("passkey id is required")
	}
	if strings.TrimSpace(passkey.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(passkey.CredentialID) == "" {
		return fmt.Errorf("credential id is required")
	}
	if len(passkey.PublicKey) == 0 {
		return fmt.Errorf("public key is required")
	}

	transports, err := encodeTransports(passkey.Transports)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create passkey: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO passkeys (
	id, name, public_key, user_id, credential_id, counter, device_type, backed_up, transports, aaguid, created_at, last_used_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		passkey.ID,
		passkey.Name,
		passkey.PublicKey,
		passkey.UserID,
		passkey.CredentialID,
		int64(passkey.Counter),
		passkey.DeviceType,
		passkey.BackedUp,
		transports,
		passkey.AAGUID,
		toMillis(passkey.CreatedAt),
		toNullMillis(passkey.LastUsedAt),
	)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			return apperrors.Wrap(apperrors.CodeDuplicateCredential, "credential id already registered", err)
		}
		return fmt.Errorf("insert passkey: %w", err)
	}

	if identifier := strings.TrimSpace(consumedIdentifier); identifier != "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM verifications WHERE identifier = ?`, identifier); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("consume verification: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create passkey: %w", err)
	}
	return nil
}

// GetPasskeyByCredentialID fetches a stored WebAuthn credential.
func (s *Store) GetPasskeyByCredentialID(ctx context.Context, credentialID string) (storage.Passkey, error) {
	if err := ctx.Err(); err != nil {
		return storage.Passkey{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Passkey{}, fmt.Errorf("storage is not configured")
	}
	credentialID = strings.TrimSpace(credentialID)
	if credentialID == "" {
		return storage.Passkey{}, fmt.Errorf("credential id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+passkeyColumns+`
FROM passkeys
WHERE credential_id = ?
`, credentialID)
	passkey, err := scanPasskey(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Passkey{}, storage.ErrNotFound
		}
		return storage.Passkey{}, fmt.Errorf("get passkey: %w", err)
	}
	return passkey, nil
}

// ListPasskeysByUser returns credentials for a user.
func (s *Store) ListPasskeysByUser(ctx context.Context, userID string) ([]storage.Passkey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+passkeyColumns+`
FROM passkeys
WHERE user_id = ?
ORDER BY created_at, id
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list passkeys: %w", err)
	}
	defer rows.Close()

	passkeys := make([]storage.Passkey, 0)
	for rows.Next() {
		passkey, err := scanPasskey(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan passkey row: %w", err)
		}
		passkeys = append(passkeys, passkey)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passkey rows: %w", err)
	}
	return passkeys, nil
}

// SwapPasskeyCounter conditionally advances the signature counter.
//
// The update lands only when the stored counter still equals expected, which
// linearizes assertion verification for one credential without locking the
// whole table. The returned bool reports whether the swap happened.
func (s *Store) SwapPasskeyCounter(ctx context.Context, credentialID string, expected, next uint32, usedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	credentialID = strings.TrimSpace(credentialID)
	if credentialID == "" {
		return false, fmt.Errorf("credential id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE passkeys
SET counter = ?, last_used_at = ?
WHERE credential_id = ? AND counter = ?
`,
		int64(next),
		toMillis(usedAt),
		credentialID,
		int64(expected),
	)
	if err != nil {
		return false, fmt.Errorf("swap passkey counter: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap passkey counter rows affected: %w", err)
	}
	return affected == 1, nil
}

// DeletePasskey removes a credential by its credential ID.
func (s *Store) DeletePasskey(ctx context.Context, credentialID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	credentialID = strings.TrimSpace(credentialID)
	if credentialID == "" {
		return fmt.Errorf("credential id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM passkeys WHERE credential_id = ?`, credentialID)
	if err != nil {
		return fmt.Errorf("delete passkey: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete passkey rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func encodeTransports(transports []string) (string, error) {
	if len(transports) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal(transports)
	if err != nil {
		return "", fmt.Errorf("marshal transports: %w", err)
	}
	return string(encoded), nil
}

func decodeTransports(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "[]" {
		return nil, nil
	}
	var transports []string
	if err := json.Unmarshal([]byte(value), &transports); err != nil {
		return nil, fmt.Errorf("unmarshal transports: %w", err)
	}
	return transports, nil
}

func scanPasskey(scan func(dest ...any) error) (storage.Passkey, error) {
	var (
		passkey    storage.Passkey
		counter    int64
		transports string
		createdAt  int64
		lastUsedAt sql.NullInt64
	)
	if err := scan(
		&passkey.ID,
		&passkey.Name,
		&passkey.PublicKey,
		&passkey.UserID,
		&passkey.CredentialID,
		&counter,
		&passkey.DeviceType,
		&passkey.BackedUp,
		&transports,
		&passkey.AAGUID,
		&createdAt,
		&lastUsedAt,
	); err != nil {
		return storage.Passkey{}, err
	}
	passkey.Counter = uint32(counter)
	decoded, err := decodeTransports(transports)
	if err != nil {
		return storage.Passkey{}, err
	}
	passkey.Transports = decoded
	passkey.CreatedAt = fromMillis(createdAt)
	passkey.LastUsedAt = fromNullMillis(lastUsedAt)
	return passkey, nil
}
