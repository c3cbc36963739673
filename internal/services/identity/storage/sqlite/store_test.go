package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/venuelink/venuelink/internal/platform/errors"
	"github.com/venuelink/venuelink/internal/services/identity/storage"
	"github.com/venuelink/venuelink/internal/services/identity/user"
)

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestStoreDBNilSafe(t *testing.T) {
	var store *Store
	if store.DB() != nil {
		t.Fatal("expected nil DB for nil store")
	}
}

func TestPutGetUserRoundTrip(t *testing.T) {
	store := openTempStore(t)

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	input := user.User{
		ID:            "user-1",
		Name:          "Alpha",
		Email:         "alpha@example.com",
		EmailVerified: user.EmailVerificationVerified,
		Role:          user.RoleUser,
		Status:        user.StatusActive,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	if err := store.PutUser(context.Background(), input); err != nil {
		t.Fatalf("put user: %v", err)
	}

	got, err := store.GetUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Email != input.Email || got.EmailVerified != user.EmailVerificationVerified {
		t.Fatalf("unexpected user: %+v", got)
	}

	byEmail, err := store.GetUserByEmail(context.Background(), "Alpha@Example.com")
	if err != nil {
		t.Fatalf("get user by email: %v", err)
	}
	if byEmail.ID != "user-1" {
		t.Fatalf("unexpected user by email: %+v", byEmail)
	}
}

func TestPutUserEmailTaken(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := store.PutUser(context.Background(), user.User{
		ID:        "user-1",
		Email:     "alpha@example.com",
		Role:      user.RoleUser,
		Status:    user.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("put user: %v", err)
	}

	err := store.PutUser(context.Background(), user.User{
		ID:        "user-2",
		Email:     "alpha@example.com",
		Role:      user.RoleUser,
		Status:    user.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if apperrors.GetCode(err) != apperrors.CodeEmailTaken {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func TestPutUsersWithoutEmail(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Two anonymous users with no email must not collide on the sparse index.
	for _, id := range []string{"guest-1", "guest-2"} {
		if err := store.PutUser(context.Background(), user.User{
			ID:          id,
			IsAnonymous: true,
			Role:        user.RoleUser,
			Status:      user.StatusActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			t.Fatalf("put user %s: %v", id, err)
		}
	}

	got, err := store.GetUser(context.Background(), "guest-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Email != "" || got.EmailVerified != user.EmailVerificationUnknown {
		t.Fatalf("unexpected guest: %+v", got)
	}
}

func TestGetUserNotFound(t *testing.T) {
	store := openTempStore(t)

	if _, err := store.GetUser(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	putUser(t, store, "user-1", now)

	input := storage.Session{
		ID:        "session-1",
		UserID:    "user-1",
		Token:     "token-1",
		ExpiresAt: now.Add(time.Hour),
		IPAddress: "203.0.113.7",
		UserAgent: "test-agent",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.PutSession(context.Background(), input); err != nil {
		t.Fatalf("put session: %v", err)
	}

	got, err := store.GetSessionByToken(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.ID != input.ID || got.UserID != input.UserID || !got.ExpiresAt.Equal(input.ExpiresAt) {
		t.Fatalf("unexpected session: %+v", got)
	}

	if err := store.DeleteSessionByToken(context.Background(), "token-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if err := store.DeleteSessionByToken(context.Background(), "token-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	putUser(t, store, "user-1", now)

	sessions := []storage.Session{
		{ID: "expired", UserID: "user-1", Token: "t-expired", ExpiresAt: now.Add(-time.Minute), CreatedAt: now, UpdatedAt: now},
		{ID: "active", UserID: "user-1", Token: "t-active", ExpiresAt: now.Add(time.Minute), CreatedAt: now, UpdatedAt: now},
	}
	for _, session := range sessions {
		if err := store.PutSession(context.Background(), session); err != nil {
			t.Fatalf("put session: %v", err)
		}
	}

	if err := store.DeleteExpiredSessions(context.Background(), now); err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if _, err := store.GetSessionByToken(context.Background(), "t-expired"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatal("expected expired session deleted")
	}
	if _, err := store.GetSessionByToken(context.Background(), "t-active"); err != nil {
		t.Fatalf("expected active session retained: %v", err)
	}
}

func TestAccountRoundTrip(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	putUser(t, store, "user-1", now)

	input := storage.Account{
		ID:           "account-1",
		UserID:       "user-1",
		AccountID:    "user-1",
		ProviderID:   "credential",
		PasswordHash: "$2a$10$fakehash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.PutAccount(context.Background(), input); err != nil {
		t.Fatalf("put account: %v", err)
	}

	got, err := store.GetAccount(context.Background(), "account-1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.ProviderID != "credential" || got.PasswordHash != input.PasswordHash {
		t.Fatalf("unexpected account: %+v", got)
	}

	byUser, err := store.ListAccountsByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list accounts by user: %v", err)
	}
	if len(byUser) != 1 {
		t.Fatalf("expected 1 account, got %d", len(byUser))
	}

	byProvider, err := store.ListAccountsByProvider(context.Background(), "credential", "user-1")
	if err != nil {
		t.Fatalf("list accounts by provider: %v", err)
	}
	if len(byProvider) != 1 {
		t.Fatalf("expected 1 account, got %d", len(byProvider))
	}

	if err := store.DeleteAccount(context.Background(), "account-1"); err != nil {
		t.Fatalf("delete account: %v", err)
	}
	if _, err := store.GetAccount(context.Background(), "account-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestVerificationRoundTrip(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	input := storage.Verification{
		Identifier: "passkey:registration:session-1",
		Value:      "{}",
		ExpiresAt:  now.Add(5 * time.Minute),
		CreatedAt:  now,
	}
	if err := store.PutVerification(context.Background(), input); err != nil {
		t.Fatalf("put verification: %v", err)
	}

	got, err := store.GetVerification(context.Background(), input.Identifier)
	if err != nil {
		t.Fatalf("get verification: %v", err)
	}
	if got.Value != input.Value {
		t.Fatalf("unexpected verification: %+v", got)
	}

	if err := store.DeleteVerification(context.Background(), input.Identifier); err != nil {
		t.Fatalf("delete verification: %v", err)
	}
	if _, err := store.GetVerification(context.Background(), input.Identifier); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteExpiredVerifications(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	records := []storage.Verification{
		{Identifier: "expired", Value: "{}", ExpiresAt: now.Add(-time.Minute), CreatedAt: now},
		{Identifier: "active", Value: "{}", ExpiresAt: now.Add(time.Minute), CreatedAt: now},
	}
	for _, record := range records {
		if err := store.PutVerification(context.Background(), record); err != nil {
			t.Fatalf("put verification: %v", err)
		}
	}

	if err := store.DeleteExpiredVerifications(context.Background(), now); err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if _, err := store.GetVerification(context.Background(), "expired"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatal("expected expired verification deleted")
	}
	if _, err := store.GetVerification(context.Background(), "active"); err != nil {
		t.Fatalf("expected active verification retained: %v", err)
	}
}

func TestCreatePasskeyConsumesChallenge(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	putUser(t, store, "user-1", now)

	identifier := "passkey:registration:session-1"
	if err := store.PutVerification(context.Background(), storage.Verification{
		Identifier: identifier,
		Value:      "{}",
		ExpiresAt:  now.Add(5 * time.Minute),
		CreatedAt:  now,
	}); err != nil {
		t.Fatalf("put verification: %v", err)
	}

	passkey := storage.Passkey{
		ID:           "passkey-1",
		Name:         "Phone",
		PublicKey:    []byte{0x01, 0x02},
		UserID:       "user-1",
		CredentialID: "cred-1",
		Counter:      0,
		Transports:   []string{"internal"},
		CreatedAt:    now,
	}
	if err := store.CreatePasskey(context.Background(), passkey, identifier); err != nil {
		t.Fatalf("create passkey: %v", err)
	}

	if _, err := store.GetVerification(context.Background(), identifier); !errors.Is(err, storage.ErrNotFound) {
		t.Fatal("expected challenge consumed")
	}

	got, err := store.GetPasskeyByCredentialID(context.Background(), "cred-1")
	if err != nil {
		t.Fatalf("get passkey: %v", err)
	}
	if got.UserID != "user-1" || len(got.Transports) != 1 || got.Transports[0] != "internal" {
		t.Fatalf("unexpected passkey: %+v", got)
	}
}

func TestCreatePasskeyDuplicateKeepsChallenge(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	putUser(t, store, "user-1", now)

	passkey := storage.Passkey{
		ID:           "passkey-1",
		PublicKey:    []byte{0x01},
		UserID:       "user-1",
		CredentialID: "cred-1",
		CreatedAt:    now,
	}
	if err := store.CreatePasskey(context.Background(), passkey, ""); err != nil {
		t.Fatalf("create passkey: %v", err)
	}

	identifier := "passkey:registration:session-2"
	if err := store.PutVerification(context.Background(), storage.Verification{
		Identifier: identifier,
		Value:      "{}",
		ExpiresAt:  now.Add(5 * time.Minute),
		CreatedAt:  now,
	}); err != nil {
		t.Fatalf("put verification: %v", err)
	}

	dup := passkey
	dup.ID = "passkey-2"
	err := store.CreatePasskey(context.Background(), dup, identifier)
	if apperrors.GetCode(err) != apperrors.CodeDuplicateCredential {
		t.Fatalf("expected duplicate credential, got %v", err)
	}

	// The failed transaction must not consume the challenge.
	if _, err := store.GetVerification(context.Background(), identifier); err != nil {
		t.Fatalf("expected challenge retained: %v", err)
	}
}

func TestSwapPasskeyCounter(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	putUser(t, store, "user-1", now)

	if err := store.CreatePasskey(context.Background(), storage.Passkey{
		ID:           "passkey-1",
		PublicKey:    []byte{0x01},
		UserID:       "user-1",
		CredentialID: "cred-1",
		Counter:      5,
		CreatedAt:    now,
	}, ""); err != nil {
		t.Fatalf("create passkey: %v", err)
	}

	usedAt := now.Add(time.Minute)
	swapped, err := store.SwapPasskeyCounter(context.Background(), "cred-1", 5, 6, usedAt)
	if err != nil {
		t.Fatalf("swap counter: %v", err)
	}
	if !swapped {
		t.Fatal("expected swap to land")
	}

	got, err := store.GetPasskeyByCredentialID(context.Background(), "cred-1")
	if err != nil {
		t.Fatalf("get passkey: %v", err)
	}
	if got.Counter != 6 {
		t.Fatalf("expected counter 6, got %d", got.Counter)
	}
	if got.LastUsedAt == nil || !got.LastUsedAt.Equal(usedAt) {
		t.Fatalf("unexpected last used at: %v", got.LastUsedAt)
	}

	// A stale expected value must not move the counter.
	swapped, err = store.SwapPasskeyCounter(context.Background(), "cred-1", 5, 7, usedAt)
	if err != nil {
		t.Fatalf("swap counter: %v", err)
	}
	if swapped {
		t.Fatal("expected stale swap to miss")
	}
	got, err = store.GetPasskeyByCredentialID(context.Background(), "cred-1")
	if err != nil {
		t.Fatalf("get passkey: %v", err)
	}
	if got.Counter != 6 {
		t.Fatalf("expected counter unchanged, got %d", got.Counter)
	}
}

func TestDeletePasskeyNotFound(t *testing.T) {
	store := openTempStore(t)

	if err := store.DeletePasskey(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBiometricTokenRoundTrip(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	putUser(t, store, "user-1", now)

	expires := now.Add(30 * 24 * time.Hour)
	input := storage.BiometricToken{
		ID:        "bio-1",
		Token:     "bio-token-1",
		UserID:    "user-1",
		DeviceID:  "device-1",
		ExpiresAt: &expires,
		CreatedAt: now,
	}
	if err := store.PutBiometricToken(context.Background(), input); err != nil {
		t.Fatalf("put biometric token: %v", err)
	}

	got, err := store.GetBiometricToken(context.Background(), "bio-token-1")
	if err != nil {
		t.Fatalf("get biometric token: %v", err)
	}
	if got.DeviceID != "device-1" || got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected token: %+v", got)
	}

	if err := store.DeleteBiometricTokensByDevice(context.Background(), "device-1"); err != nil {
		t.Fatalf("delete by device: %v", err)
	}
	if _, err := store.GetBiometricToken(context.Background(), "bio-token-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteExpiredBiometricTokensKeepsLegacy(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	putUser(t, store, "user-1", now)

	expired := now.Add(-time.Minute)
	tokens := []storage.BiometricToken{
		{ID: "bio-1", Token: "t-expired", UserID: "user-1", DeviceID: "device-1", ExpiresAt: &expired, CreatedAt: now},
		{ID: "bio-2", Token: "t-legacy", UserID: "user-1", DeviceID: "device-2", CreatedAt: now},
	}
	for _, token := range tokens {
		if err := store.PutBiometricToken(context.Background(), token); err != nil {
			t.Fatalf("put biometric token: %v", err)
		}
	}

	if err := store.DeleteExpiredBiometricTokens(context.Background(), now); err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if _, err := store.GetBiometricToken(context.Background(), "t-expired"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatal("expected expired token deleted")
	}
	// Rows without an expiry predate mandatory expiries and are not swept.
	if _, err := store.GetBiometricToken(context.Background(), "t-legacy"); err != nil {
		t.Fatalf("expected legacy token retained: %v", err)
	}
}

func TestTenantRoundTrip(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	latitude := 51.5074
	longitude := -0.1278
	input := storage.Tenant{
		ID:          "tenant-1",
		Name:        "The Anchor",
		Slug:        "the-anchor",
		Latitude:    &latitude,
		Longitude:   &longitude,
		BSSID:       "aa:bb:cc:dd:ee:ff",
		StaticIP:    "198.51.100.10",
		MenuEnabled: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.PutTenant(context.Background(), input); err != nil {
		t.Fatalf("put tenant: %v", err)
	}

	got, err := store.GetTenant(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("get tenant: %v", err)
	}
	if got.Slug != input.Slug || got.BSSID != input.BSSID || !got.MenuEnabled {
		t.Fatalf("unexpected tenant: %+v", got)
	}
	if got.Latitude == nil || *got.Latitude != latitude {
		t.Fatalf("unexpected latitude: %v", got.Latitude)
	}

	bySlug, err := store.GetTenantBySlug(context.Background(), "the-anchor")
	if err != nil {
		t.Fatalf("get tenant by slug: %v", err)
	}
	if bySlug.ID != "tenant-1" {
		t.Fatalf("unexpected tenant by slug: %+v", bySlug)
	}

	byBSSID, err := store.GetTenantByBSSID(context.Background(), "aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("get tenant by bssid: %v", err)
	}
	if byBSSID.ID != "tenant-1" {
		t.Fatalf("unexpected tenant by bssid: %+v", byBSSID)
	}
}

func TestPutTenantDuplicateSlug(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := store.PutTenant(context.Background(), storage.Tenant{
		ID: "tenant-1", Name: "One", Slug: "shared", CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("put tenant: %v", err)
	}
	err := store.PutTenant(context.Background(), storage.Tenant{
		ID: "tenant-2", Name: "Two", Slug: "shared", CreatedAt: now, UpdatedAt: now,
	})
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestTenantsWithoutBSSID(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"tenant-1", "tenant-2"} {
		if err := store.PutTenant(context.Background(), storage.Tenant{
			ID: id, Name: id, Slug: "slug-" + string(rune('a'+i)), CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			t.Fatalf("put tenant %s: %v", id, err)
		}
	}

	got, err := store.GetTenant(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("get tenant: %v", err)
	}
	if got.BSSID != "" || got.Latitude != nil {
		t.Fatalf("unexpected tenant: %+v", got)
	}
}

func TestTenantMemberUpsert(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	putUser(t, store, "user-1", now)
	putTenant(t, store, "tenant-1", now)

	if err := store.PutTenantMember(context.Background(), storage.TenantMember{
		ID: "member-1", UserID: "user-1", TenantID: "tenant-1", Role: "STAFF",
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("put member: %v", err)
	}

	// A second put for the same (user, tenant) pair updates in place.
	if err := store.PutTenantMember(context.Background(), storage.TenantMember{
		ID: "member-2", UserID: "user-1", TenantID: "tenant-1", Role: "MODERATOR",
		CanViewStats: true, CreatedAt: now, UpdatedAt: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("put member again: %v", err)
	}

	got, err := store.GetTenantMember(context.Background(), "user-1", "tenant-1")
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if got.ID != "member-1" {
		t.Fatalf("expected original row id retained, got %s", got.ID)
	}
	if got.Role != "MODERATOR" || !got.CanViewStats {
		t.Fatalf("unexpected member: %+v", got)
	}

	members, err := store.ListTenantMembersByTenant(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(members))
	}

	if err := store.DeleteTenantMember(context.Background(), "user-1", "tenant-1"); err != nil {
		t.Fatalf("delete member: %v", err)
	}
	if _, err := store.GetTenantMember(context.Background(), "user-1", "tenant-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNasDeviceRoundTrip(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	putTenant(t, store, "tenant-1", now)

	input := storage.NasDevice{
		ID:        "device-1",
		NasID:     "nas-01",
		VpnIP:     "10.8.0.2",
		PublicIP:  "198.51.100.20",
		BSSID:     "11:22:33:44:55:66",
		Name:      "Front router",
		TenantID:  "tenant-1",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.PutNasDevice(context.Background(), input); err != nil {
		t.Fatalf("put nas device: %v", err)
	}

	lookups := []struct {
		name string
		get  func() (storage.NasDevice, error)
	}{
		{"id", func() (storage.NasDevice, error) { return store.GetNasDevice(context.Background(), "device-1") }},
		{"nas id", func() (storage.NasDevice, error) { return store.GetNasDeviceByNasID(context.Background(), "nas-01") }},
		{"bssid", func() (storage.NasDevice, error) {
			return store.GetNasDeviceByBSSID(context.Background(), "11:22:33:44:55:66")
		}},
		{"vpn ip", func() (storage.NasDevice, error) { return store.GetNasDeviceByVpnIP(context.Background(), "10.8.0.2") }},
		{"public ip", func() (storage.NasDevice, error) {
			return store.GetNasDeviceByPublicIP(context.Background(), "198.51.100.20")
		}},
	}
	for _, lookup := range lookups {
		got, err := lookup.get()
		if err != nil {
			t.Fatalf("get nas device by %s: %v", lookup.name, err)
		}
		if got.ID != "device-1" || got.TenantID != "tenant-1" {
			t.Fatalf("unexpected device by %s: %+v", lookup.name, got)
		}
	}

	if err := store.DeleteNasDevice(context.Background(), "device-1"); err != nil {
		t.Fatalf("delete nas device: %v", err)
	}
	if err := store.DeleteNasDevice(context.Background(), "device-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNasDeviceSparseUniqueness(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	putTenant(t, store, "tenant-1", now)

	// Devices with empty identifiers coexist; identifiers only collide when set.
	for _, id := range []string{"device-1", "device-2"} {
		if err := store.PutNasDevice(context.Background(), storage.NasDevice{
			ID: id, TenantID: "tenant-1", CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			t.Fatalf("put nas device %s: %v", id, err)
		}
	}

	if err := store.PutNasDevice(context.Background(), storage.NasDevice{
		ID: "device-3", NasID: "nas-01", TenantID: "tenant-1", CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("put nas device: %v", err)
	}
	err := store.PutNasDevice(context.Background(), storage.NasDevice{
		ID: "device-4", NasID: "nas-01", TenantID: "tenant-1", CreatedAt: now, UpdatedAt: now,
	})
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: users.email")) {
		t.Error("expected true for unique constraint error")
	}
	if isUniqueViolation(errors.New("no such table")) {
		t.Error("expected false for unrelated error")
	}
	if isUniqueViolation(nil) {
		t.Error("expected false for nil error")
	}
}

func putUser(t *testing.T, store *Store, id string, now time.Time) {
	t.Helper()
	if err := store.PutUser(context.Background(), user.User{
		ID:        id,
		Role:      user.RoleUser,
		Status:    user.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("put user %s: %v", id, err)
	}
}

func putTenant(t *testing.T, store *Store, id string, now time.Time) {
	t.Helper()
	if err := store.PutTenant(context.Background(), storage.Tenant{
		ID:        id,
		Name:      id,
		Slug:      id,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("put tenant %s: %v", id, err)
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "identity.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}
