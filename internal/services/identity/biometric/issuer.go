// Package biometric issues and validates short-lived device-paired tokens
// used as a lightweight re-authentication factor after a primary login.
package biometric

import (
	"context"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/venuelink/venuelink/internal/platform/errors"
	"github.com/venuelink/venuelink/internal/platform/id"
	"github.com/venuelink/venuelink/internal/services/identity/storage"
)

// tokenBytes yields 256 bits of entropy per pairing token.
const tokenBytes = 32

// Config controls biometric token policy.
//
// AllowLegacyNonExpiring only affects validation of rows that predate
// mandatory expiries; issuance always requires a positive TTL.
type Config struct {
	DefaultTTL             time.Duration `env:"VENUELINK_BIOMETRIC_TTL"                  envDefault:"720h"`
	AllowLegacyNonExpiring bool          `env:"VENUELINK_BIOMETRIC_ALLOW_LEGACY_TOKENS"  envDefault:"false"`
}

// LoadConfigFromEnv loads biometric configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	_ = env.Parse(&cfg)
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 720 * time.Hour
	}
	return cfg
}

// SessionValidator proves a live primary-factor session before issuance.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (storage.Session, error)
}

// Issuer issues, validates, and revokes device-paired tokens.
type Issuer struct {
	tokens   storage.BiometricTokenStore
	sessions SessionValidator
	cfg      Config

	clock          func() time.Time
	idGenerator    func() (string, error)
	tokenGenerator func() (string, error)
}

// NewIssuer wires a biometric token issuer.
func NewIssuer(tokens storage.BiometricTokenStore, sessions SessionValidator, cfg Config) *Issuer {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 720 * time.Hour
	}
	return &Issuer{
		tokens:         tokens,
		sessions:       sessions,
		cfg:            cfg,
		clock:          time.Now,
		idGenerator:    id.NewID,
		tokenGenerator: func() (string, error) { return id.NewToken(tokenBytes) },
	}
}

// Issue pairs a new token to a device for the session's user. A zero TTL
// falls back to the configured default; a negative TTL is rejected. Every
// issued token carries an expiry.
func (i *Issuer) Issue(ctx context.Context, sessionToken, deviceID string, ttl time.Duration) (storage.BiometricToken, error) {
	if i == nil || i.tokens == nil || i.sessions == nil {
		return storage.BiometricToken{}, errors.New(errors.CodeUnknown, "biometric issuer is not configured")
	}
	if strings.TrimSpace(sessionToken) == "" {
		return storage.BiometricToken{}, errors.New(errors.CodeBiometricSessionRequired, "a primary session is required to pair a device")
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return storage.BiometricToken{}, errors.New(errors.CodeNotFound, "device id is required")
	}
	if ttl < 0 {
		return storage.BiometricToken{}, errors.New(errors.CodeBiometricExpiryRequired, "token ttl must be positive")
	}
	if ttl == 0 {
		ttl = i.cfg.DefaultTTL
	}

	session, err := i.sessions.Validate(ctx, sessionToken)
	if err != nil {
		return storage.BiometricToken{}, err
	}

	tokenID, err := i.idGenerator()
	if err != nil {
		return storage.BiometricToken{}, errors.Wrap(errors.CodeUnknown, "generate token id", err)
	}
	value, err := i.tokenGenerator()
	if err != nil {
		return storage.BiometricToken{}, errors.Wrap(errors.CodeUnknown, "generate token", err)
	}

	now := i.clock().UTC()
	expiresAt := now.Add(ttl)
	token := storage.BiometricToken{
		ID:        tokenID,
		Token:     value,
		UserID:    session.UserID,
		DeviceID:  deviceID,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
	}
	if err := i.tokens.PutBiometricToken(ctx, token); err != nil {
		return storage.BiometricToken{}, err
	}
	return token, nil
}

// Validate resolves a token to its user and device. Expired tokens fail but
// are left for the sweep to reclaim. Rows without an expiry predate mandatory
// expiries and only validate when legacy tokens are explicitly allowed.
func (i *Issuer) Validate(ctx context.Context, token string) (storage.BiometricToken, error) {
	if i == nil || i.tokens == nil {
		return storage.BiometricToken{}, errors.New(errors.CodeUnknown, "biometric issuer is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return storage.BiometricToken{}, errors.New(errors.CodeNotFound, "biometric token is required")
	}

	record, err := i.tokens.GetBiometricToken(ctx, token)
	if err != nil {
		return storage.BiometricToken{}, err
	}
	if record.ExpiresAt == nil {
		if !i.cfg.AllowLegacyNonExpiring {
			return storage.BiometricToken{}, errors.New(errors.CodeBiometricTokenExpired, "biometric token expired")
		}
		return record, nil
	}
	if !record.ExpiresAt.After(i.clock().UTC()) {
		return storage.BiometricToken{}, errors.New(errors.CodeBiometricTokenExpired, "biometric token expired")
	}
	return record, nil
}

// RevokeDevice invalidates every token paired to a device in one operation.
func (i *Issuer) RevokeDevice(ctx context.Context, deviceID string) error {
	if i == nil || i.tokens == nil {
		return errors.New(errors.CodeUnknown, "biometric issuer is not configured")
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return errors.New(errors.CodeNotFound, "device id is required")
	}
	return i.tokens.DeleteBiometricTokensByDevice(ctx, deviceID)
}
