package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/venuelink/venuelink/internal/platform/errors"
	"github.com/venuelink/venuelink/internal/services/identity/storage"
	"github.com/venuelink/venuelink/internal/services/identity/user"
)

const userColumns = `id, name, email, email_verified, phone_number, gender, is_anonymous, role, status, created_at, updated_at`

// PutUser persists a user record, upserting on ID.
func (s *Store) PutUser(ctx context.Context, u user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id is required")
	}

	var verified sql.NullInt64
	switch u.EmailVerified {
	case user.EmailVerificationUnverified:
		verified = sql.NullInt64{Int64: 0, Valid: true}
	case user.EmailVerificationVerified:
		verified = sql.NullInt64{Int64: 1, Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (
	id, name, email, email_verified, phone_number, gender, is_anonymous, role, status, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	email = excluded.email,
	email_verified = excluded.email_verified,
	phone_number = excluded.phone_number,
	gender = excluded.gender,
	is_anonymous = excluded.is_anonymous,
	role = excluded.role,
	status = excluded.status,
	updated_at = excluded.updated_at
`,
		u.ID,
		u.Name,
		toNullString(u.Email),
		verified,
		u.PhoneNumber,
		u.Gender,
		u.IsAnonymous,
		string(u.Role),
		string(u.Status),
		toMillis(u.CreatedAt),
		toMillis(u.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Wrap(apperrors.CodeEmailTaken, "email already in use", err)
		}
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetUser fetches a user record by ID.
func (s *Store) GetUser(ctx context.Context, userID string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return user.User{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return user.User{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE id = ?
`, userID)
	found, err := scanUser(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, fmt.Errorf("get user: %w", err)
	}
	return found, nil
}

// GetUserByEmail fetches a user via the unique email index.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return user.User{}, fmt.Errorf("storage is not configured")
	}
	email = user.NormalizeEmail(email)
	if email == "" {
		return user.User{}, fmt.Errorf("email is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE email = ?
`, email)
	found, err := scanUser(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return found, nil
}

func scanUser(scan func(dest ...any) error) (user.User, error) {
	var (
		u           user.User
		email       sql.NullString
		verified    sql.NullInt64
		isAnonymous bool
		role        string
		status      string
		createdAt   int64
		updatedAt   int64
	)
	if err := scan(
		&u.ID,
		&u.Name,
		&email,
		&verified,
		&u.PhoneNumber,
		&u.Gender,
		&isAnonymous,
		&role,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return user.User{}, err
	}

	u.Email = fromNullString(email)
	switch {
	case !verified.Valid:
		u.EmailVerified = user.EmailVerificationUnknown
	case verified.Int64 == 0:
		u.EmailVerified = user.EmailVerificationUnverified
	default:
		u.EmailVerified = user.EmailVerificationVerified
	}
	u.IsAnonymous = isAnonymous
	u.Role = user.ParseGlobalRole(role)
	u.Status = user.Status(status)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}
