package app

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/venuelink/venuelink/internal/services/identity/admission"
	"github.com/venuelink/venuelink/internal/services/identity/storage"
	identitysqlite "github.com/venuelink/venuelink/internal/services/identity/storage/sqlite"
	"github.com/venuelink/venuelink/internal/services/identity/user"
)

type testServer struct {
	srv   *Server
	store *identitysqlite.Store
	mux   *http.ServeMux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate grant key: %v", err)
	}
	t.Setenv(admission.EnvGrantIssuer, "identity-test")
	t.Setenv(admission.EnvGrantAudience, "portal-test")
	t.Setenv(admission.EnvGrantPrivateKey, base64.RawStdEncoding.EncodeToString(priv.Seed()))

	store, err := identitysqlite.Open(filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	srv, err := newWithStore(store)
	if err != nil {
		t.Fatalf("build server: %v", err)
	}
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return &testServer{srv: srv, store: store, mux: mux}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func (ts *testServer) seedUser(t *testing.T, id, email string) {
	t.Helper()
	err := ts.store.PutUser(context.Background(), user.User{
		ID:     id,
		Email:  email,
		Role:   user.RoleUser,
		Status: user.StatusActive,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestGuestCreationAndSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/guests", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create guest: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		User    struct{ ID string }
		Session struct{ Token string }
	}
	decodeBody(t, rec, &created)
	if created.User.ID == "" || created.Session.Token == "" {
		t.Fatalf("incomplete guest payload: %s", rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/v1/sessions/validate", map[string]string{"token": created.Session.Token})
	if rec.Code != http.StatusOK {
		t.Fatalf("validate: %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/v1/sessions/refresh", map[string]string{"token": created.Session.Token})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/v1/sessions/revoke", map[string]string{"token": created.Session.Token})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("revoke: %d %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodPost, "/v1/sessions/revoke", map[string]string{"token": created.Session.Token})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second revoke: %d %s", rec.Code, rec.Body.String())
	}
}

func TestPasswordLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser(t, "user-1", "kai@example.com")
	if err := ts.srv.accounts.SetPassword(context.Background(), "user-1", "hunter2"); err != nil {
		t.Fatalf("set password: %v", err)
	}

	rec := ts.do(t, http.MethodPost, "/v1/login", map[string]string{
		"email":    "kai@example.com",
		"password": "hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Session struct{ Token string }
	}
	decodeBody(t, rec, &resp)
	if resp.Session.Token == "" {
		t.Fatal("expected a session token")
	}

	rec = ts.do(t, http.MethodPost, "/v1/login", map[string]string{
		"email":    "kai@example.com",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: %d %s", rec.Code, rec.Body.String())
	}
}

func TestPasskeyCeremonyBegins(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser(t, "user-1", "kai@example.com")

	rec := ts.do(t, http.MethodPost, "/v1/passkeys/register/begin", map[string]string{"userId": "user-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("register begin: %d %s", rec.Code, rec.Body.String())
	}
	var began struct {
		CeremonyID string `json:"ceremonyId"`
		Options    struct {
			PublicKey struct {
				Challenge string `json:"challenge"`
			} `json:"publicKey"`
		} `json:"options"`
	}
	decodeBody(t, rec, &began)
	if began.CeremonyID == "" || began.Options.PublicKey.Challenge == "" {
		t.Fatalf("incomplete ceremony payload: %s", rec.Body.String())
	}

	// Usernameless assertion needs no user at all.
	rec = ts.do(t, http.MethodPost, "/v1/passkeys/assert/begin", map[string]string{})
	if rec.Code != http.StatusOK {
		t.Fatalf("assert begin: %d %s", rec.Code, rec.Body.String())
	}
}

func TestBiometricEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/guests", nil)
	var created struct {
		Session struct{ Token string }
	}
	decodeBody(t, rec, &created)

	rec = ts.do(t, http.MethodPost, "/v1/biometric/issue", map[string]any{
		"sessionToken": created.Session.Token,
		"deviceId":     "device-1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("issue: %d %s", rec.Code, rec.Body.String())
	}
	var issued struct {
		Token     string     `json:"token"`
		ExpiresAt *time.Time `json:"expiresAt"`
	}
	decodeBody(t, rec, &issued)
	if issued.Token == "" || issued.ExpiresAt == nil {
		t.Fatalf("incomplete token payload: %s", rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/v1/biometric/validate", map[string]string{"token": issued.Token})
	if rec.Code != http.StatusOK {
		t.Fatalf("validate: %d %s", rec.Code, rec.Body.String())
	}
	var validated struct {
		DeviceID string `json:"deviceId"`
	}
	decodeBody(t, rec, &validated)
	if validated.DeviceID != "device-1" {
		t.Fatalf("device = %q", validated.DeviceID)
	}

	rec = ts.do(t, http.MethodPost, "/v1/biometric/revoke-device", map[string]string{"deviceId": "device-1"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("revoke device: %d %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodPost, "/v1/biometric/validate", map[string]string{"token": issued.Token})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("validate after revoke: %d %s", rec.Code, rec.Body.String())
	}
}

func TestTenantAccessEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser(t, "user-1", "kai@example.com")
	if err := ts.store.PutTenant(context.Background(), storage.Tenant{ID: "t1", Name: "Corner Cafe", Slug: "corner-cafe"}); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	if err := ts.store.PutTenantMember(context.Background(), storage.TenantMember{
		ID:       "member-1",
		UserID:   "user-1",
		TenantID: "t1",
		Role:     "MODERATOR",
	}); err != nil {
		t.Fatalf("seed member: %v", err)
	}

	sess, err := ts.srv.sessions.Create(context.Background(), "user-1", "", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	rec := ts.do(t, http.MethodPost, "/v1/tenants/access", map[string]string{
		"sessionToken": sess.Token,
		"tenantId":     "t1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("access: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Role         string          `json:"role"`
		Capabilities map[string]bool `json:"capabilities"`
	}
	decodeBody(t, rec, &resp)
	if resp.Role != "MODERATOR" || !resp.Capabilities["canModerate"] {
		t.Fatalf("resolution = %+v", resp)
	}

	rec = ts.do(t, http.MethodPost, "/v1/tenants/access", map[string]string{
		"sessionToken": sess.Token,
		"tenantId":     "t2",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-member access: %d %s", rec.Code, rec.Body.String())
	}
}

func TestValidateNasEndpoint(t *testing.T) {
	ts := newTestServer(t)
	if err := ts.store.PutTenant(context.Background(), storage.Tenant{ID: "t1", Name: "Corner Cafe", Slug: "corner-cafe"}); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	if err := ts.store.PutNasDevice(context.Background(), storage.NasDevice{
		ID:       "dev-1",
		BSSID:    "AA:BB:CC:00:11:22",
		TenantID: "t1",
	}); err != nil {
		t.Fatalf("seed device: %v", err)
	}

	rec := ts.do(t, http.MethodPost, "/v1/tenants/validate-nas", map[string]string{"bssid": "AA:BB:CC:00:11:22"})
	if rec.Code != http.StatusOK {
		t.Fatalf("validate-nas: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Valid  bool `json:"valid"`
		Tenant struct {
			Slug string `json:"slug"`
		} `json:"tenant"`
		Grant string `json:"grant"`
	}
	decodeBody(t, rec, &resp)
	if !resp.Valid || resp.Tenant.Slug != "corner-cafe" {
		t.Fatalf("resolution = %+v", resp)
	}
	if resp.Grant == "" {
		t.Fatal("expected an admission grant")
	}
	if _, err := ts.srv.granter.Validate(resp.Grant); err != nil {
		t.Fatalf("grant validation: %v", err)
	}

	rec = ts.do(t, http.MethodPost, "/v1/tenants/validate-nas", map[string]string{"bssid": "11:22:33:44:55:66"})
	if rec.Code != http.StatusOK {
		t.Fatalf("validate-nas (miss): %d %s", rec.Code, rec.Body.String())
	}
	var miss struct {
		Valid bool `json:"valid"`
	}
	decodeBody(t, rec, &miss)
	if miss.Valid {
		t.Fatal("expected an unmatched connection to be invalid")
	}
}

func TestValidateNasAmbiguous(t *testing.T) {
	ts := newTestServer(t)
	for _, tenant := range []string{"t1", "t2"} {
		if err := ts.store.PutTenant(context.Background(), storage.Tenant{ID: tenant, Name: tenant, Slug: tenant}); err != nil {
			t.Fatalf("seed tenant: %v", err)
		}
	}
	if err := ts.store.PutNasDevice(context.Background(), storage.NasDevice{ID: "dev-1", NasID: "nas-1", TenantID: "t1"}); err != nil {
		t.Fatalf("seed device: %v", err)
	}
	if err := ts.store.PutNasDevice(context.Background(), storage.NasDevice{ID: "dev-2", BSSID: "AA:BB:CC:00:11:22", TenantID: "t2"}); err != nil {
		t.Fatalf("seed device: %v", err)
	}

	rec := ts.do(t, http.MethodPost, "/v1/tenants/validate-nas", map[string]string{
		"nasId": "nas-1",
		"bssid": "AA:BB:CC:00:11:22",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("ambiguous admission: %d %s", rec.Code, rec.Body.String())
	}
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/validate", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/v1/sessions/validate", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wrong method: %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/up", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("up: %d", rec.Code)
	}
}
