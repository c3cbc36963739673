package passkey

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/venuelink/venuelink/internal/services/identity/storage"
	"github.com/venuelink/venuelink/internal/services/identity/user"
)

// Device type labels follow the WebAuthn credential backup taxonomy.
const (
	DeviceTypeSingle = "singleDevice"
	DeviceTypeMulti  = "multiDevice"
)

// webauthnUser adapts a platform user and its stored credentials to the
// library's user contract.
type webauthnUser struct {
	user        user.User
	credentials []webauthn.Credential
}

func (u *webauthnUser) WebAuthnID() []byte {
	return []byte(u.user.ID)
}

func (u *webauthnUser) WebAuthnName() string {
	if u.user.Email != "" {
		return u.user.Email
	}
	return u.user.ID
}

func (u *webauthnUser) WebAuthnDisplayName() string {
	if u.user.Name != "" {
		return u.user.Name
	}
	return u.user.ID
}

func (u *webauthnUser) WebAuthnIcon() string {
	return ""
}

func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

// EncodeCredentialID renders a raw WebAuthn credential ID as the string key
// stored and looked up in the credential table.
func EncodeCredentialID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCredentialID(encoded string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode credential id: %w", err)
	}
	return raw, nil
}

func storedToCredential(record storage.Passkey) (webauthn.Credential, error) {
	rawID, err := decodeCredentialID(record.CredentialID)
	if err != nil {
		return webauthn.Credential{}, err
	}
	var aaguid []byte
	if record.AAGUID != "" {
		aaguid, err = hex.DecodeString(record.AAGUID)
		if err != nil {
			return webauthn.Credential{}, fmt.Errorf("decode aaguid: %w", err)
		}
	}
	transports := make([]protocol.AuthenticatorTransport, 0, len(record.Transports))
	for _, transport := range record.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(transport))
	}
	return webauthn.Credential{
		ID:        rawID,
		PublicKey: record.PublicKey,
		Transport: transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: record.DeviceType == DeviceTypeMulti,
			BackupState:    record.BackedUp,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    aaguid,
			SignCount: record.Counter,
		},
	}, nil
}

func credentialToStored(credential webauthn.Credential) storage.Passkey {
	transports := make([]string, 0, len(credential.Transport))
	for _, transport := range credential.Transport {
		transports = append(transports, string(transport))
	}
	deviceType := DeviceTypeSingle
	if credential.Flags.BackupEligible {
		deviceType = DeviceTypeMulti
	}
	return storage.Passkey{
		PublicKey:    credential.PublicKey,
		CredentialID: EncodeCredentialID(credential.ID),
		Counter:      credential.Authenticator.SignCount,
		DeviceType:   deviceType,
		BackedUp:     credential.Flags.BackupState,
		Transports:   transports,
		AAGUID:       hex.EncodeToString(credential.Authenticator.AAGUID),
	}
}

func storedToCredentials(records []storage.Passkey) ([]webauthn.Credential, error) {
	if len(records) == 0 {
		return nil, nil
	}
	credentials := make([]webauthn.Credential, 0, len(records))
	for _, record := range records {
		credential, err := storedToCredential(record)
		if err != nil {
			return nil, fmt.Errorf("decode credential %s: %w", record.CredentialID, err)
		}
		credentials = append(credentials, credential)
	}
	return credentials, nil
}
