package passkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/venuelink/venuelink/internal/platform/errors"
	"github.com/venuelink/venuelink/internal/platform/id"
	"github.com/venuelink/venuelink/internal/services/identity/storage"
	"github.com/venuelink/venuelink/internal/services/identity/user"
)

// maxCounterRetries bounds the read-verify-write cycle for counter updates.
const maxCounterRetries = 3

type provider interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
	ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error)
}

type parser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultParser struct{}

func (defaultParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// challengeEnvelope is the payload stored in a challenge's verification
// record until the ceremony finishes or the challenge expires.
type challengeEnvelope struct {
	Kind    ChallengeKind        `json:"kind"`
	UserID  string               `json:"userId,omitempty"`
	Session webauthn.SessionData `json:"session"`
}

// Verifier runs WebAuthn ceremonies against stored credentials.
type Verifier struct {
	users         storage.UserStore
	passkeys      storage.PasskeyStore
	verifications storage.VerificationStore
	provider      provider
	parser        parser
	cfg           Config

	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewVerifier builds a verifier with a live WebAuthn relying party.
func NewVerifier(users storage.UserStore, passkeys storage.PasskeyStore, verifications storage.VerificationStore, cfg Config) (*Verifier, error) {
	web, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}
	return &Verifier{
		users:         users,
		passkeys:      passkeys,
		verifications: verifications,
		provider:      web,
		parser:        defaultParser{},
		cfg:           cfg,
		clock:         time.Now,
		idGenerator:   id.NewID,
	}, nil
}

func challengeIdentifier(kind ChallengeKind, sessionID string) string {
	return "passkey:" + string(kind) + ":" + sessionID
}

// BeginRegistration issues a registration challenge for an existing user.
// The returned session ID keys the stored challenge for the finish call.
func (v *Verifier) BeginRegistration(ctx context.Context, userID string) (*protocol.CredentialCreation, string, error) {
	if v == nil || v.users == nil || v.passkeys == nil || v.verifications == nil {
		return nil, "", errors.New(errors.CodeUnknown, "passkey verifier is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, "", errors.New(errors.CodeNotFound, "user id is required")
	}
	baseUser, err := v.users.GetUser(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	webUser, err := v.loadWebauthnUser(ctx, baseUser)
	if err != nil {
		return nil, "", err
	}

	options := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	}
	if len(webUser.credentials) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(webUser.credentials).CredentialDescriptors()))
	}

	creation, session, err := v.provider.BeginRegistration(webUser, options...)
	if err != nil {
		return nil, "", errors.Wrap(errors.CodeUnknown, "begin passkey registration", err)
	}

	sessionID, err := v.storeChallenge(ctx, ChallengeKindRegistration, baseUser.ID, session)
	if err != nil {
		return nil, "", err
	}
	return creation, sessionID, nil
}

// FinishRegistration validates an attestation response and persists the new
// credential, consuming the challenge in the same transaction.
func (v *Verifier) FinishRegistration(ctx context.Context, sessionID, name string, response []byte) (storage.Passkey, error) {
	if v == nil || v.users == nil || v.passkeys == nil || v.verifications == nil {
		return storage.Passkey{}, errors.New(errors.CodeUnknown, "passkey verifier is not configured")
	}
	if len(response) == 0 {
		return storage.Passkey{}, errors.New(errors.CodeInvalidCredentials, "credential response is required")
	}

	envelope, identifier, err := v.loadChallenge(ctx, ChallengeKindRegistration, sessionID)
	if err != nil {
		return storage.Passkey{}, err
	}
	if envelope.UserID == "" {
		return storage.Passkey{}, errors.New(errors.CodePasskeyChallengeMismatch, "registration challenge is not bound to a user")
	}

	baseUser, err := v.users.GetUser(ctx, envelope.UserID)
	if err != nil {
		return storage.Passkey{}, err
	}
	webUser, err := v.loadWebauthnUser(ctx, baseUser)
	if err != nil {
		return storage.Passkey{}, err
	}

	parsed, err := v.parser.ParseCredentialCreationResponseBytes(response)
	if err != nil {
		return storage.Passkey{}, errors.Wrap(errors.CodeInvalidCredentials, "parse credential response", err)
	}
	credential, err := v.provider.CreateCredential(webUser, envelope.Session, parsed)
	if err != nil {
		return storage.Passkey{}, errors.Wrap(errors.CodeInvalidCredentials, "validate registration response", err)
	}

	passkeyID, err := v.idGenerator()
	if err != nil {
		return storage.Passkey{}, errors.Wrap(errors.CodeUnknown, "generate passkey id", err)
	}
	record := credentialToStored(*credential)
	record.ID = passkeyID
	record.UserID = baseUser.ID
	record.Name = strings.TrimSpace(name)
	if record.Name == "" {
		record.Name = "Passkey"
	}
	record.CreatedAt = v.clock().UTC()

	if err := v.passkeys.CreatePasskey(ctx, record, identifier); err != nil {
		return storage.Passkey{}, err
	}
	return record, nil
}

// BeginAssertion issues an assertion challenge. An empty user ID starts a
// usernameless (discoverable) ceremony.
func (v *Verifier) BeginAssertion(ctx context.Context, userID string) (*protocol.CredentialAssertion, string, error) {
	if v == nil || v.users == nil || v.passkeys == nil || v.verifications == nil {
		return nil, "", errors.New(errors.CodeUnknown, "passkey verifier is not configured")
	}

	userID = strings.TrimSpace(userID)
	var (
		assertion *protocol.CredentialAssertion
		session   *webauthn.SessionData
		err       error
	)
	if userID == "" {
		assertion, session, err = v.provider.BeginDiscoverableLogin()
	} else {
		baseUser, userErr := v.users.GetUser(ctx, userID)
		if userErr != nil {
			return nil, "", userErr
		}
		webUser, loadErr := v.loadWebauthnUser(ctx, baseUser)
		if loadErr != nil {
			return nil, "", loadErr
		}
		assertion, session, err = v.provider.BeginLogin(webUser)
	}
	if err != nil {
		return nil, "", errors.Wrap(errors.CodeUnknown, "begin passkey assertion", err)
	}

	sessionID, err := v.storeChallenge(ctx, ChallengeKindAssertion, userID, session)
	if err != nil {
		return nil, "", err
	}
	return assertion, sessionID, nil
}

// FinishAssertion validates an assertion response, enforces the signature
// counter invariant, and returns the authenticated user and credential.
//
// A counter at or below the stored value is the clone signal: the operation
// fails without touching the stored counter. Both sides at zero pass, since
// counter-less authenticators always report zero.
func (v *Verifier) FinishAssertion(ctx context.Context, sessionID string, response []byte) (user.User, storage.Passkey, error) {
	if v == nil || v.users == nil || v.passkeys == nil || v.verifications == nil {
		return user.User{}, storage.Passkey{}, errors.New(errors.CodeUnknown, "passkey verifier is not configured")
	}
	if len(response) == 0 {
		return user.User{}, storage.Passkey{}, errors.New(errors.CodeInvalidCredentials, "credential response is required")
	}

	envelope, identifier, err := v.loadChallenge(ctx, ChallengeKindAssertion, sessionID)
	if err != nil {
		return user.User{}, storage.Passkey{}, err
	}

	parsed, err := v.parser.ParseCredentialRequestResponseBytes(response)
	if err != nil {
		return user.User{}, storage.Passkey{}, errors.Wrap(errors.CodeInvalidCredentials, "parse credential response", err)
	}

	var (
		credential *webauthn.Credential
		userID     string
	)
	if envelope.UserID != "" {
		baseUser, userErr := v.users.GetUser(ctx, envelope.UserID)
		if userErr != nil {
			return user.User{}, storage.Passkey{}, userErr
		}
		webUser, loadErr := v.loadWebauthnUser(ctx, baseUser)
		if loadErr != nil {
			return user.User{}, storage.Passkey{}, loadErr
		}
		credential, err = v.provider.ValidateLogin(webUser, envelope.Session, parsed)
		userID = envelope.UserID
	} else {
		var validatedUser webauthn.User
		validatedUser, credential, err = v.provider.ValidatePasskeyLogin(v.userHandler(ctx), envelope.Session, parsed)
		if err == nil {
			webUser, ok := validatedUser.(*webauthnUser)
			if !ok {
				return user.User{}, storage.Passkey{}, errors.New(errors.CodeUnknown, "passkey user type mismatch")
			}
			userID = webUser.user.ID
		}
	}
	if err != nil {
		return user.User{}, storage.Passkey{}, errors.Wrap(errors.CodeInvalidCredentials, "validate passkey assertion", err)
	}

	stored, err := v.passkeys.GetPasskeyByCredentialID(ctx, EncodeCredentialID(credential.ID))
	if err != nil {
		return user.User{}, storage.Passkey{}, err
	}
	if stored.UserID != userID {
		return user.User{}, storage.Passkey{}, errors.New(errors.CodeInvalidCredentials, "credential does not belong to the asserted user")
	}

	updated, err := v.commitCounter(ctx, stored, credential)
	if err != nil {
		return user.User{}, storage.Passkey{}, err
	}

	authenticated, err := v.users.GetUser(ctx, userID)
	if err != nil {
		return user.User{}, storage.Passkey{}, err
	}

	_ = v.verifications.DeleteVerification(ctx, identifier)
	return authenticated, updated, nil
}

// Revoke deletes a credential by its encoded credential ID.
func (v *Verifier) Revoke(ctx context.Context, credentialID string) error {
	if v == nil || v.passkeys == nil {
		return errors.New(errors.CodeUnknown, "passkey verifier is not configured")
	}
	return v.passkeys.DeletePasskey(ctx, credentialID)
}

// List returns the stored credentials for a user.
func (v *Verifier) List(ctx context.Context, userID string) ([]storage.Passkey, error) {
	if v == nil || v.passkeys == nil {
		return nil, errors.New(errors.CodeUnknown, "passkey verifier is not configured")
	}
	return v.passkeys.ListPasskeysByUser(ctx, userID)
}

// commitCounter applies the counter invariant and persists the advance with
// compare-and-swap semantics, bounded retries, then a conflict.
func (v *Verifier) commitCounter(ctx context.Context, stored storage.Passkey, credential *webauthn.Credential) (storage.Passkey, error) {
	if credential.Authenticator.CloneWarning {
		return storage.Passkey{}, errors.WithMetadata(errors.CodePossibleClone, "authenticator signature counter regressed", map[string]string{
			"credential_id": stored.CredentialID,
		})
	}

	next := credential.Authenticator.SignCount
	now := v.clock().UTC()
	for attempt := 0; attempt < maxCounterRetries; attempt++ {
		if !(next == 0 && stored.Counter == 0) && next <= stored.Counter {
			return storage.Passkey{}, errors.WithMetadata(errors.CodePossibleClone, "authenticator signature counter regressed", map[string]string{
				"credential_id": stored.CredentialID,
			})
		}
		swapped, err := v.passkeys.SwapPasskeyCounter(ctx, stored.CredentialID, stored.Counter, next, now)
		if err != nil {
			return storage.Passkey{}, err
		}
		if swapped {
			stored.Counter = next
			stored.LastUsedAt = &now
			return stored, nil
		}
		stored, err = v.passkeys.GetPasskeyByCredentialID(ctx, stored.CredentialID)
		if err != nil {
			return storage.Passkey{}, err
		}
	}
	return storage.Passkey{}, errors.New(errors.CodeConflict, "credential counter update lost the race")
}

func (v *Verifier) storeChallenge(ctx context.Context, kind ChallengeKind, userID string, session *webauthn.SessionData) (string, error) {
	if session == nil {
		return "", errors.New(errors.CodeUnknown, "webauthn session data is required")
	}
	sessionID, err := v.idGenerator()
	if err != nil {
		return "", errors.Wrap(errors.CodeUnknown, "generate challenge id", err)
	}
	payload, err := json.Marshal(challengeEnvelope{Kind: kind, UserID: userID, Session: *session})
	if err != nil {
		return "", errors.Wrap(errors.CodeUnknown, "encode challenge", err)
	}
	now := v.clock().UTC()
	if err := v.verifications.PutVerification(ctx, storage.Verification{
		Identifier: challengeIdentifier(kind, sessionID),
		Value:      string(payload),
		ExpiresAt:  now.Add(v.cfg.ChallengeTTL),
		CreatedAt:  now,
	}); err != nil {
		return "", err
	}
	return sessionID, nil
}

func (v *Verifier) loadChallenge(ctx context.Context, kind ChallengeKind, sessionID string) (challengeEnvelope, string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return challengeEnvelope{}, "", errors.New(errors.CodePasskeyChallengeMismatch, "challenge session id is required")
	}
	identifier := challengeIdentifier(kind, sessionID)
	record, err := v.verifications.GetVerification(ctx, identifier)
	if err != nil {
		return challengeEnvelope{}, "", err
	}
	if !record.ExpiresAt.After(v.clock().UTC()) {
		_ = v.verifications.DeleteVerification(ctx, identifier)
		return challengeEnvelope{}, "", errors.New(errors.CodePasskeyChallengeExpired, "challenge expired")
	}

	var envelope challengeEnvelope
	if err := json.Unmarshal([]byte(record.Value), &envelope); err != nil {
		return challengeEnvelope{}, "", errors.Wrap(errors.CodeUnknown, "decode challenge", err)
	}
	if envelope.Kind != kind {
		return challengeEnvelope{}, "", errors.New(errors.CodePasskeyChallengeMismatch, "challenge kind mismatch")
	}
	return envelope, identifier, nil
}

func (v *Verifier) loadWebauthnUser(ctx context.Context, base user.User) (*webauthnUser, error) {
	records, err := v.passkeys.ListPasskeysByUser(ctx, base.ID)
	if err != nil {
		return nil, err
	}
	credentials, err := storedToCredentials(records)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnknown, "decode stored credentials", err)
	}
	return &webauthnUser{user: base, credentials: credentials}, nil
}

func (v *Verifier) userHandler(ctx context.Context) webauthn.DiscoverableUserHandler {
	return func(_, userHandle []byte) (webauthn.User, error) {
		userID := strings.TrimSpace(string(userHandle))
		if userID == "" {
			return nil, fmt.Errorf("user handle is required")
		}
		baseUser, err := v.users.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		return v.loadWebauthnUser(ctx, baseUser)
	}
}
