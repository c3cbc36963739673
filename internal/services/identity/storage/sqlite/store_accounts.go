package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/venuelink/venuelink/internal/services/identity/storage"
)

const accountColumns = `id, user_id, account_id, provider_id, access_token, refresh_token, access_token_expires_at, refresh_token_expires_at, password_hash, scope, id_token, created_at, updated_at`

// PutAccount persists a linked credential binding, upserting on ID.
func (s *Store) PutAccount(ctx context.Context, account storage.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(account.ID) == "" {
		return fmt.Errorf("account row id is required")
	}
	if strings.TrimSpace(account.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(account.ProviderID) == "" {
		return fmt.Errorf("provider id is required")
	}
	if strings.TrimSpace(account.AccountID) == "" {
		return fmt.Errorf("account id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO accounts (
	id, user_id, account_id, provider_id, access_token, refresh_token, access_token_expires_at, refresh_token_expires_at, password_hash, scope, id_token, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	access_token = excluded.access_token,
	refresh_token = excluded.refresh_token,
	access_token_expires_at = excluded.access_token_expires_at,
	refresh_token_expires_at = excluded.refresh_token_expires_at,
	password_hash = excluded.password_hash,
	scope = excluded.scope,
	id_token = excluded.id_token,
	updated_at = excluded.updated_at
`,
		account.ID,
		account.UserID,
		account.AccountID,
		account.ProviderID,
		account.AccessToken,
		account.RefreshToken,
		toNullMillis(account.AccessTokenExpiresAt),
		toNullMillis(account.RefreshTokenExpiresAt),
		account.PasswordHash,
		account.Scope,
		account.IDToken,
		toMillis(account.CreatedAt),
		toMillis(account.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

// GetAccount fetches an account row by primary key.
func (s *Store) GetAccount(ctx context.Context, accountRowID string) (storage.Account, error) {
	if err := ctx.Err(); err != nil {
		return storage.Account{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Account{}, fmt.Errorf("storage is not configured")
	}
	accountRowID = strings.TrimSpace(accountRowID)
	if accountRowID == "" {
		return storage.Account{}, fmt.Errorf("account row id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+accountColumns+`
FROM accounts
WHERE id = ?
`, accountRowID)
	account, err := scanAccount(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Account{}, storage.ErrNotFound
		}
		return storage.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// ListAccountsByUser returns all credential bindings for one user.
func (s *Store) ListAccountsByUser(ctx context.Context, userID string) ([]storage.Account, error) {
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
SELECT `+accountColumns+`
FROM accounts
WHERE user_id = ?
ORDER BY created_at, id
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// ListAccountsByProvider returns rows matching an external identity key.
// The pair is not database-unique, so multiple rows may come back and the
// caller de-duplicates.
func (s *Store) ListAccountsByProvider(ctx context.Context, providerID, accountID string) ([]storage.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	accountID = strings.TrimSpace(accountID)
	if providerID == "" || accountID == "" {
		return nil, fmt.Errorf("provider id and account id are required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+accountColumns+`
FROM accounts
WHERE provider_id = ? AND account_id = ?
ORDER BY created_at, id
`, providerID, accountID)
	if err != nil {
		return nil, fmt.Errorf("list accounts by provider: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// DeleteAccount removes a credential binding.
func (s *Store) DeleteAccount(ctx context.Context, accountRowID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	accountRowID = strings.TrimSpace(accountRowID)
	if accountRowID == "" {
		return fmt.Errorf("account row id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, accountRowID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func collectAccounts(rows *sql.Rows) ([]storage.Account, error) {
	accounts := make([]storage.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}
	return accounts, nil
}

func scanAccount(scan func(dest ...any) error) (storage.Account, error) {
	var (
		account        storage.Account
		accessExpires  sql.NullInt64
		refreshExpires sql.NullInt64
		createdAt      int64
		updatedAt      int64
	)
	if err := scan(
		&account.ID,
		&account.UserID,
		&account.AccountID,
		&account.ProviderID,
		&account.AccessToken,
		&account.RefreshToken,
		&accessExpires,
		&refreshExpires,
		&account.PasswordHash,
		&account.Scope,
		&account.IDToken,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.Account{}, err
	}
	account.AccessTokenExpiresAt = fromNullMillis(accessExpires)
	account.RefreshTokenExpiresAt = fromNullMillis(refreshExpires)
	account.CreatedAt = fromMillis(createdAt)
	account.UpdatedAt = fromMillis(updatedAt)
	return account, nil
}
