package admission

import (
	"crypto/ed25519"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/venuelink/venuelink/internal/platform/errors"
	"github.com/venuelink/venuelink/internal/platform/id"
)

// Environment variable names for admission grant configuration.
const (
	EnvGrantIssuer     = "VENUELINK_ADMISSION_GRANT_ISSUER"
	EnvGrantAudience   = "VENUELINK_ADMISSION_GRANT_AUDIENCE"
	EnvGrantPrivateKey = "VENUELINK_ADMISSION_GRANT_PRIVATE_KEY"
	EnvGrantPublicKey  = "VENUELINK_ADMISSION_GRANT_PUBLIC_KEY"
	EnvGrantTTL        = "VENUELINK_ADMISSION_GRANT_TTL"
)

// grantEnv holds raw env values before post-parse validation.
type grantEnv struct {
	Issuer     string        `env:"VENUELINK_ADMISSION_GRANT_ISSUER"`
	Audience   string        `env:"VENUELINK_ADMISSION_GRANT_AUDIENCE"`
	PrivateKey string        `env:"VENUELINK_ADMISSION_GRANT_PRIVATE_KEY"`
	PublicKey  string        `env:"VENUELINK_ADMISSION_GRANT_PUBLIC_KEY"`
	TTL        time.Duration `env:"VENUELINK_ADMISSION_GRANT_TTL" envDefault:"10m"`
}

// GrantConfig defines how admission grants are minted and verified.
//
// PrivateKey is only needed by the minting side; a verification-only
// deployment can carry the public key alone.
type GrantConfig struct {
	Issuer     string
	Audience   string
	TTL        time.Duration
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// GrantClaims captures a validated admission grant.
type GrantClaims struct {
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time
	JWTID     string
	TenantID  string
	DeviceID  string
	MatchedBy string
}

// grantClaims is the internal claims type used for JWT signing and parsing.
type grantClaims struct {
	jwt.RegisteredClaims
	TenantID  string `json:"tenant_id"`
	DeviceID  string `json:"device_id,omitempty"`
	MatchedBy string `json:"matched_by,omitempty"`
}

// LoadGrantConfigFromEnv reads admission grant key material and policy.
//
// The private key accepts either a 32-byte seed or a full 64-byte ed25519
// private key, base64 encoded. When only the private key is configured the
// public half is derived from it.
func LoadGrantConfigFromEnv() (GrantConfig, error) {
	var raw grantEnv
	if err := env.Parse(&raw); err != nil {
		return GrantConfig{}, fmt.Errorf("parse admission grant env: %w", err)
	}
	cfg := GrantConfig{
		Issuer:   strings.TrimSpace(raw.Issuer),
		Audience: strings.TrimSpace(raw.Audience),
		TTL:      raw.TTL,
	}
	if cfg.Issuer == "" {
		return GrantConfig{}, fmt.Errorf("VENUELINK_ADMISSION_GRANT_ISSUER is required")
	}
	if cfg.Audience == "" {
		return GrantConfig{}, fmt.Errorf("VENUELINK_ADMISSION_GRANT_AUDIENCE is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}

	if privateKey := strings.TrimSpace(raw.PrivateKey); privateKey != "" {
		keyBytes, err := decodeBase64(privateKey)
		if err != nil {
			return GrantConfig{}, fmt.Errorf("decode admission grant private key: %w", err)
		}
		switch len(keyBytes) {
		case ed25519.SeedSize:
			cfg.PrivateKey = ed25519.NewKeyFromSeed(keyBytes)
		case ed25519.PrivateKeySize:
			cfg.PrivateKey = ed25519.PrivateKey(keyBytes)
		default:
			return GrantConfig{}, fmt.Errorf("admission grant private key must be %d or %d bytes", ed25519.SeedSize, ed25519.PrivateKeySize)
		}
		cfg.PublicKey = cfg.PrivateKey.Public().(ed25519.PublicKey)
	}
	if publicKey := strings.TrimSpace(raw.PublicKey); publicKey != "" {
		keyBytes, err := decodeBase64(publicKey)
		if err != nil {
			return GrantConfig{}, fmt.Errorf("decode admission grant public key: %w", err)
		}
		if len(keyBytes) != ed25519.PublicKeySize {
			return GrantConfig{}, fmt.Errorf("admission grant public key must be %d bytes", ed25519.PublicKeySize)
		}
		cfg.PublicKey = ed25519.PublicKey(keyBytes)
	}
	if len(cfg.PublicKey) != ed25519.PublicKeySize {
		return GrantConfig{}, fmt.Errorf("admission grant key material is required")
	}
	return cfg, nil
}

// Granter mints and verifies signed admission grants for resolved tenants.
type Granter struct {
	cfg GrantConfig

	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewGranter builds a granter over the configured key material.
func NewGranter(cfg GrantConfig) *Granter {
	return &Granter{
		cfg:         cfg,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

// Issue mints a short-lived grant binding the resolved tenant to the
// observed network identity.
func (g *Granter) Issue(result Result) (string, error) {
	if g == nil || len(g.cfg.PrivateKey) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("admission granter has no signing key")
	}
	if result.Tenant.ID == "" {
		return "", fmt.Errorf("tenant id is required")
	}
	jti, err := g.idGenerator()
	if err != nil {
		return "", fmt.Errorf("generate grant id: %w", err)
	}

	now := g.clock().UTC()
	claims := grantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.cfg.Issuer,
			Audience:  jwt.ClaimStrings{g.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.cfg.TTL)),
			ID:        jti,
		},
		TenantID:  result.Tenant.ID,
		DeviceID:  result.DeviceID,
		MatchedBy: result.MatchedBy,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(g.cfg.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("sign admission grant: %w", err)
	}
	return token, nil
}

// Validate verifies a grant's signature and claims against the configured
// issuer and audience.
func (g *Granter) Validate(grant string) (GrantClaims, error) {
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return GrantClaims{}, apperrors.New(apperrors.CodeAdmissionGrantInvalid, "admission grant is required")
	}
	if g == nil || len(g.cfg.PublicKey) != ed25519.PublicKeySize {
		return GrantClaims{}, fmt.Errorf("admission granter has no verification key")
	}

	var parsed grantClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return g.cfg.PublicKey, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return GrantClaims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != g.cfg.Issuer {
		return GrantClaims{}, apperrors.New(apperrors.CodeAdmissionGrantInvalid, "admission grant issuer mismatch")
	}
	if !audienceContains(parsed.Audience, g.cfg.Audience) {
		return GrantClaims{}, apperrors.New(apperrors.CodeAdmissionGrantInvalid, "admission grant audience mismatch")
	}
	if parsed.ID == "" {
		return GrantClaims{}, apperrors.New(apperrors.CodeAdmissionGrantInvalid, "admission grant jti is required")
	}
	if strings.TrimSpace(parsed.TenantID) == "" {
		return GrantClaims{}, apperrors.New(apperrors.CodeAdmissionGrantInvalid, "admission grant tenant is required")
	}
	if parsed.ExpiresAt == nil {
		return GrantClaims{}, apperrors.New(apperrors.CodeAdmissionGrantInvalid, "admission grant exp is required")
	}

	now := g.clock().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return GrantClaims{}, apperrors.New(apperrors.CodeAdmissionGrantExpired, "admission grant is expired")
	}

	claims := GrantClaims{
		Issuer:    parsed.Issuer,
		Audience:  []string(parsed.Audience),
		ExpiresAt: exp,
		JWTID:     parsed.ID,
		TenantID:  parsed.TenantID,
		DeviceID:  parsed.DeviceID,
		MatchedBy: parsed.MatchedBy,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if stderrors.Is(err, jwt.ErrTokenSignatureInvalid) || stderrors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeAdmissionGrantInvalid, "admission grant signature is invalid")
	}
	if stderrors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeAdmissionGrantInvalid, "admission grant alg is invalid")
	}
	return apperrors.New(apperrors.CodeAdmissionGrantInvalid, "admission grant is invalid")
}

// audienceContains reports whether the audience list contains the value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, stderrors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
