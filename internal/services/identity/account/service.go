// Package account links external and local credentials to users.
package account

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/venuelink/venuelink/internal/platform/errors"
	"github.com/venuelink/venuelink/internal/platform/id"
	"github.com/venuelink/venuelink/internal/services/identity/storage"
	"github.com/venuelink/venuelink/internal/services/identity/user"
)

// ProviderCredential is the provider id for local email+password accounts.
// Credential rows store the bcrypt hash and use the owning user id as the
// external subject.
const ProviderCredential = "credential"

// SessionCreator mints a session for a freshly established identity.
type SessionCreator interface {
	Create(ctx context.Context, userID, ipAddress, userAgent string) (storage.Session, error)
}

// Service manages credential bindings and guest identities.
type Service struct {
	users    storage.UserStore
	accounts storage.AccountStore
	sessions SessionCreator

	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewService wires the account service over its stores.
func NewService(users storage.UserStore, accounts storage.AccountStore, sessions SessionCreator) *Service {
	return &Service{
		users:       users,
		accounts:    accounts,
		sessions:    sessions,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

// VerifyPassword authenticates an email and password pair.
//
// Every failure path returns the same invalid-credentials code so callers
// cannot probe which emails exist.
func (s *Service) VerifyPassword(ctx context.Context, email, password string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	email = user.NormalizeEmail(email)
	if email == "" || password == "" {
		return user.User{}, invalidCredentials()
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return user.User{}, invalidCredentials()
		}
		return user.User{}, fmt.Errorf("load user: %w", err)
	}
	if u.Status != user.StatusActive {
		return user.User{}, invalidCredentials()
	}

	row, err := s.credentialAccount(ctx, u.ID)
	if err != nil {
		return user.User{}, err
	}
	if row.PasswordHash == "" {
		return user.User{}, invalidCredentials()
	}
	if bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)) != nil {
		return user.User{}, invalidCredentials()
	}
	return u, nil
}

// SetPassword creates or replaces the user's local credential row.
func (s *Service) SetPassword(ctx context.Context, userID, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}
	if password == "" {
		return apperrors.New(apperrors.CodeInvalidCredentials, "password is required")
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.clock().UTC()
	row, err := s.credentialAccount(ctx, userID)
	if err != nil {
		return err
	}
	if row.ID == "" {
		rowID, err := s.idGenerator()
		if err != nil {
			return fmt.Errorf("generate account id: %w", err)
		}
		row = storage.Account{
			ID:         rowID,
			UserID:     userID,
			AccountID:  userID,
			ProviderID: ProviderCredential,
			CreatedAt:  now,
		}
	}
	row.PasswordHash = string(hash)
	row.UpdatedAt = now
	return s.accounts.PutAccount(ctx, row)
}

// credentialAccount returns the user's local credential row, defensively
// taking the first usable one when duplicates exist. The zero Account means
// no row yet.
func (s *Service) credentialAccount(ctx context.Context, userID string) (storage.Account, error) {
	rows, err := s.accounts.ListAccountsByProvider(ctx, ProviderCredential, userID)
	if err != nil {
		return storage.Account{}, fmt.Errorf("list credential accounts: %w", err)
	}
	var fallback storage.Account
	for _, row := range rows {
		if row.UserID != userID {
			continue
		}
		if row.PasswordHash != "" {
			return row, nil
		}
		if fallback.ID == "" {
			fallback = row
		}
	}
	return fallback, nil
}

// LinkInput describes an external provider login to bind to a user.
type LinkInput struct {
	UserID                string
	ProviderID            string
	AccountID             string
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  *time.Time
	RefreshTokenExpiresAt *time.Time
	Scope                 string
	IDToken               string
}

// Link binds an external provider identity to a user, refreshing tokens in
// place when the binding already exists. A provider identity already bound
// to a different user is a conflict, never a silent re-bind. Linking a real
// provider clears the anonymous flag on the user.
func (s *Service) Link(ctx context.Context, input LinkInput) (storage.Account, error) {
	if err := ctx.Err(); err != nil {
		return storage.Account{}, err
	}
	input.UserID = strings.TrimSpace(input.UserID)
	input.ProviderID = strings.TrimSpace(input.ProviderID)
	input.AccountID = strings.TrimSpace(input.AccountID)
	if input.UserID == "" {
		return storage.Account{}, fmt.Errorf("user id is required")
	}
	if input.ProviderID == "" {
		return storage.Account{}, fmt.Errorf("provider id is required")
	}
	if input.AccountID == "" {
		return storage.Account{}, fmt.Errorf("account id is required")
	}

	u, err := s.users.GetUser(ctx, input.UserID)
	if err != nil {
		return storage.Account{}, fmt.Errorf("load user: %w", err)
	}

	now := s.clock().UTC()
	row, err := s.existingBinding(ctx, input.ProviderID, input.AccountID)
	if err != nil {
		return storage.Account{}, err
	}
	if row.ID != "" && row.UserID != input.UserID {
		return storage.Account{}, apperrors.WithMetadata(apperrors.CodeConflict, "provider identity is bound to another user", map[string]string{
			"provider_id": input.ProviderID,
		})
	}
	if row.ID == "" {
		rowID, err := s.idGenerator()
		if err != nil {
			return storage.Account{}, fmt.Errorf("generate account id: %w", err)
		}
		row = storage.Account{
			ID:         rowID,
			UserID:     input.UserID,
			AccountID:  input.AccountID,
			ProviderID: input.ProviderID,
			CreatedAt:  now,
		}
	}
	row.AccessToken = input.AccessToken
	row.RefreshToken = input.RefreshToken
	row.AccessTokenExpiresAt = input.AccessTokenExpiresAt
	row.RefreshTokenExpiresAt = input.RefreshTokenExpiresAt
	row.Scope = input.Scope
	row.IDToken = input.IDToken
	row.UpdatedAt = now
	if err := s.accounts.PutAccount(ctx, row); err != nil {
		return storage.Account{}, fmt.Errorf("put account: %w", err)
	}

	if u.IsAnonymous && input.ProviderID != ProviderCredential {
		u.IsAnonymous = false
		u.UpdatedAt = now
		if err := s.users.PutUser(ctx, u); err != nil {
			return storage.Account{}, fmt.Errorf("clear anonymous flag: %w", err)
		}
	}
	return row, nil
}

// existingBinding finds a (provider, subject) row, de-duplicating
// defensively since the pair is not database-enforced.
func (s *Service) existingBinding(ctx context.Context, providerID, accountID string) (storage.Account, error) {
	rows, err := s.accounts.ListAccountsByProvider(ctx, providerID, accountID)
	if err != nil {
		return storage.Account{}, fmt.Errorf("list provider accounts: %w", err)
	}
	if len(rows) == 0 {
		return storage.Account{}, nil
	}
	return rows[0], nil
}

// CreateAnonymousGuest creates an anonymous user and an initial session in
// one step. First contact with the platform lands here before any
// credential exists.
func (s *Service) CreateAnonymousGuest(ctx context.Context, ipAddress, userAgent string) (user.User, storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, storage.Session{}, err
	}

	guest, err := user.CreateUser(user.CreateUserInput{IsAnonymous: true}, s.clock, s.idGenerator)
	if err != nil {
		return user.User{}, storage.Session{}, fmt.Errorf("create guest user: %w", err)
	}
	if err := s.users.PutUser(ctx, guest); err != nil {
		return user.User{}, storage.Session{}, fmt.Errorf("put guest user: %w", err)
	}

	sess, err := s.sessions.Create(ctx, guest.ID, ipAddress, userAgent)
	if err != nil {
		return user.User{}, storage.Session{}, fmt.Errorf("create guest session: %w", err)
	}
	return guest, sess, nil
}

func invalidCredentials() error {
	return apperrors.New(apperrors.CodeInvalidCredentials, "email or password is incorrect")
}
