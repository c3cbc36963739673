// Package user defines the identity anchor every credential binds to.
package user

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/venuelink/venuelink/internal/platform/errors"
	"github.com/venuelink/venuelink/internal/platform/id"
)

// GlobalRole is the platform-wide role on a user, distinct from per-tenant roles.
type GlobalRole string

const (
	// RoleUser is the default global role.
	RoleUser GlobalRole = "USER"
	// RoleSuperadmin bypasses tenant membership checks everywhere.
	RoleSuperadmin GlobalRole = "SUPERADMIN"
)

// Status describes the lifecycle state of a user record.
//
// Users are never hard-deleted while credentials or memberships reference
// them; removal is a status transition.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusDisabled Status = "DISABLED"
)

// EmailVerification is the tri-state verification flag on a user's email.
type EmailVerification int

const (
	// EmailVerificationUnknown means verification was never attempted.
	EmailVerificationUnknown EmailVerification = iota
	// EmailVerificationUnverified means a challenge was issued but not completed.
	EmailVerificationUnverified
	// EmailVerificationVerified means the user proved possession of the address.
	EmailVerificationVerified
)

var (
	// ErrInvalidEmail indicates an email that does not look deliverable.
	ErrInvalidEmail = apperrors.New(apperrors.CodeInvalidEmail, "email format is invalid")

	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// User represents an authenticated identity record.
type User struct {
	ID            string
	Name          string
	Email         string
	EmailVerified EmailVerification
	PhoneNumber   string
	Gender        string
	IsAnonymous   bool
	Role          GlobalRole
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateUserInput describes the metadata needed to create a user.
type CreateUserInput struct {
	Name        string
	Email       string
	PhoneNumber string
	Gender      string
	IsAnonymous bool
}

// ValidateEmail enforces the canonical email shape before uniqueness checks.
func ValidateEmail(s string) error {
	if !emailPattern.MatchString(s) {
		return ErrInvalidEmail
	}
	return nil
}

// NormalizeEmail lowercases and trims an email for unique comparisons.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CreateUser creates a durable user identity from validated input.
//
// The service layer treats this as the canonical point where untrusted
// profile data becomes a stable identity used by every credential path.
func CreateUser(input CreateUserInput, now func() time.Time, idGenerator func() (string, error)) (User, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateUserInput(input)
	if err != nil {
		return User{}, err
	}

	userID, err := idGenerator()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	createdAt := now().UTC()
	verified := EmailVerificationUnknown
	if normalized.Email != "" {
		verified = EmailVerificationUnverified
	}
	return User{
		ID:            userID,
		Name:          normalized.Name,
		Email:         normalized.Email,
		EmailVerified: verified,
		PhoneNumber:   normalized.PhoneNumber,
		Gender:        normalized.Gender,
		IsAnonymous:   normalized.IsAnonymous,
		Role:          RoleUser,
		Status:        StatusActive,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}, nil
}

// NormalizeCreateUserInput trims and normalizes input before validation.
//
// Anonymous guests carry no email at all; everything else with an email gets
// it lowercased so the global uniqueness invariant compares canonical forms.
func NormalizeCreateUserInput(input CreateUserInput) (CreateUserInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.PhoneNumber = strings.TrimSpace(input.PhoneNumber)
	input.Gender = strings.TrimSpace(input.Gender)
	input.Email = NormalizeEmail(input.Email)
	if input.IsAnonymous {
		input.Email = ""
		return input, nil
	}
	if input.Email != "" {
		if err := ValidateEmail(input.Email); err != nil {
			return CreateUserInput{}, err
		}
	}
	return input, nil
}

// ParseGlobalRole maps a stored role string onto a known global role.
// Unknown values degrade to RoleUser so a corrupted row can never escalate.
func ParseGlobalRole(s string) GlobalRole {
	if GlobalRole(strings.ToUpper(strings.TrimSpace(s))) == RoleSuperadmin {
		return RoleSuperadmin
	}
	return RoleUser
}
