package storage

import (
	"context"
	"time"

	"github.com/venuelink/venuelink/internal/platform/errors"
	"github.com/venuelink/venuelink/internal/services/identity/user"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// ErrDuplicate indicates a record collided with a uniqueness constraint.
var ErrDuplicate = errors.New(errors.CodeConflict, "record already exists")

// UserStore persists identity user records.
type UserStore interface {
	PutUser(ctx context.Context, u user.User) error
	GetUser(ctx context.Context, userID string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
}

// Session proves an authenticated browsing context.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionStore persists opaque session tokens.
type SessionStore interface {
	PutSession(ctx context.Context, session Session) error
	GetSessionByToken(ctx context.Context, token string) (Session, error)
	DeleteSessionByToken(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) error
}

// Account binds an external or local credential to a user.
//
// The (ProviderID, AccountID) pair is the external identity key. It is not
// database-enforced, so readers de-duplicate defensively.
type Account struct {
	ID                    string
	UserID                string
	AccountID             string
	ProviderID            string
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  *time.Time
	RefreshTokenExpiresAt *time.Time
	PasswordHash          string
	Scope                 string
	IDToken               string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// AccountStore persists linked credential bindings.
type AccountStore interface {
	PutAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, accountRowID string) (Account, error)
	ListAccountsByUser(ctx context.Context, userID string) ([]Account, error)
	ListAccountsByProvider(ctx context.Context, providerID, accountID string) ([]Account, error)
	DeleteAccount(ctx context.Context, accountRowID string) error
}

// Verification is a one-shot proof-of-possession record, such as a WebAuthn
// challenge or an email OTP. Identifier is the lookup key and the value is
// challenge-specific payload.
type Verification struct {
	Identifier string
	Value      string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// VerificationStore persists one-shot challenge records.
type VerificationStore interface {
	PutVerification(ctx context.Context, verification Verification) error
	GetVerification(ctx context.Context, identifier string) (Verification, error)
	DeleteVerification(ctx context.Context, identifier string) error
	DeleteExpiredVerifications(ctx context.Context, now time.Time) error
}

// Passkey stores a WebAuthn public-key credential for a user.
type Passkey struct {
	ID           string
	Name         string
	PublicKey    []byte
	UserID       string
	CredentialID string
	Counter      uint32
	DeviceType   string
	BackedUp     bool
	Transports   []string
	AAGUID       string
	CreatedAt    time.Time
	LastUsedAt   *time.Time
}

// PasskeyStore persists WebAuthn credentials.
//
// CreatePasskey must atomically insert the credential and delete the consumed
// challenge record so a finished registration ceremony cannot be replayed.
// SwapPasskeyCounter performs a conditional update: the counter moves to next
// only if the stored value still equals expected, and the returned bool
// reports whether the swap happened.
type PasskeyStore interface {
	CreatePasskey(ctx context.Context, passkey Passkey, consumedIdentifier string) error
	GetPasskeyByCredentialID(ctx context.Context, credentialID string) (Passkey, error)
	ListPasskeysByUser(ctx context.Context, userID string) ([]Passkey, error)
	SwapPasskeyCounter(ctx context.Context, credentialID string, expected, next uint32, usedAt time.Time) (bool, error)
	DeletePasskey(ctx context.Context, credentialID string) error
}

// BiometricToken is a short-lived device-paired secondary factor.
// A nil ExpiresAt is a legacy state; normal issuance always sets it.
type BiometricToken struct {
	ID        string
	Token     string
	UserID    string
	DeviceID  string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// BiometricTokenStore persists device-paired tokens.
type BiometricTokenStore interface {
	PutBiometricToken(ctx context.Context, token BiometricToken) error
	GetBiometricToken(ctx context.Context, token string) (BiometricToken, error)
	DeleteBiometricTokensByDevice(ctx context.Context, deviceID string) error
	DeleteExpiredBiometricTokens(ctx context.Context, now time.Time) error
}

// Tenant is the organizational boundary scoping members and devices.
type Tenant struct {
	ID              string
	Name            string
	Slug            string
	Metadata        string
	Address         string
	Latitude        *float64
	Longitude       *float64
	BSSID           string
	StaticIP        string
	MenuEnabled     bool
	FeedbackEnabled bool
	StaffEnabled    bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TenantStore persists tenant records.
type TenantStore interface {
	PutTenant(ctx context.Context, tenant Tenant) error
	GetTenant(ctx context.Context, tenantID string) (Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (Tenant, error)
	GetTenantByBSSID(ctx context.Context, bssid string) (Tenant, error)
}

// TenantMember is the per-tenant role and capability binding for a user.
// (UserID, TenantID) is unique: one membership row per user per tenant.
type TenantMember struct {
	ID              string
	UserID          string
	TenantID        string
	Role            string
	CanModerate     bool
	CanManageOrders bool
	CanViewStats    bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TenantMemberStore persists tenant memberships.
type TenantMemberStore interface {
	PutTenantMember(ctx context.Context, member TenantMember) error
	GetTenantMember(ctx context.Context, userID, tenantID string) (TenantMember, error)
	ListTenantMembersByTenant(ctx context.Context, tenantID string) ([]TenantMember, error)
	DeleteTenantMember(ctx context.Context, userID, tenantID string) error
}

// NasDevice is a registered access point or router owned by a tenant.
// Each of NasID/VpnIP/PublicIP/BSSID is independently unique when non-empty.
type NasDevice struct {
	ID        string
	NasID     string
	VpnIP     string
	PublicIP  string
	BSSID     string
	Name      string
	TenantID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NasDeviceStore persists network device records with sparse unique lookups.
type NasDeviceStore interface {
	PutNasDevice(ctx context.Context, device NasDevice) error
	GetNasDevice(ctx context.Context, deviceID string) (NasDevice, error)
	GetNasDeviceByNasID(ctx context.Context, nasID string) (NasDevice, error)
	GetNasDeviceByBSSID(ctx context.Context, bssid string) (NasDevice, error)
	GetNasDeviceByVpnIP(ctx context.Context, vpnIP string) (NasDevice, error)
	GetNasDeviceByPublicIP(ctx context.Context, publicIP string) (NasDevice, error)
	DeleteNasDevice(ctx context.Context, deviceID string) error
}
