package app

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc/codes"

	apperrors "github.com/venuelink/venuelink/internal/platform/errors"
	"github.com/venuelink/venuelink/internal/services/identity/access"
	"github.com/venuelink/venuelink/internal/services/identity/admission"
	"github.com/venuelink/venuelink/internal/services/identity/storage"
	"github.com/venuelink/venuelink/internal/services/identity/user"
)

// RegisterRoutes registers the identity HTTP endpoints on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/v1/guests", s.handleCreateGuest)
	mux.HandleFunc("/v1/login", s.handleLogin)
	mux.HandleFunc("/v1/sessions/validate", s.handleSessionValidate)
	mux.HandleFunc("/v1/sessions/refresh", s.handleSessionRefresh)
	mux.HandleFunc("/v1/sessions/revoke", s.handleSessionRevoke)
	mux.HandleFunc("/v1/passkeys", s.handlePasskeyList)
	mux.HandleFunc("/v1/passkeys/revoke", s.handlePasskeyRevoke)
	mux.HandleFunc("/v1/passkeys/register/begin", s.handleRegisterBegin)
	mux.HandleFunc("/v1/passkeys/register/finish", s.handleRegisterFinish)
	mux.HandleFunc("/v1/passkeys/assert/begin", s.handleAssertBegin)
	mux.HandleFunc("/v1/passkeys/assert/finish", s.handleAssertFinish)
	mux.HandleFunc("/v1/biometric/issue", s.handleBiometricIssue)
	mux.HandleFunc("/v1/biometric/validate", s.handleBiometricValidate)
	mux.HandleFunc("/v1/biometric/revoke-device", s.handleBiometricRevokeDevice)
	mux.HandleFunc("/v1/tenants/access", s.handleTenantAccess)
	mux.HandleFunc("/v1/tenants/validate-nas", s.handleValidateNas)
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

type userPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	IsAnonymous bool   `json:"isAnonymous,omitempty"`
	Role        string `json:"role"`
}

type sessionPayload struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func toUserPayload(u user.User) userPayload {
	return userPayload{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		IsAnonymous: u.IsAnonymous,
		Role:        string(u.Role),
	}
}

func toSessionPayload(sess storage.Session) sessionPayload {
	return sessionPayload{Token: sess.Token, UserID: sess.UserID, ExpiresAt: sess.ExpiresAt}
}

func (s *Server) handleCreateGuest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	guest, sess, err := s.accounts.CreateAnonymousGuest(r.Context(), remoteIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":    toUserPayload(guest),
		"session": toSessionPayload(sess),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.accounts.VerifyPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.sessions.Create(r.Context(), u.ID, remoteIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":    toUserPayload(u),
		"session": toSessionPayload(sess),
	})
}

func (s *Server) handleSessionValidate(w http.ResponseWriter, r *http.Request) {
	s.handleSessionOp(w, r, s.sessions.Validate)
}

func (s *Server) handleSessionRefresh(w http.ResponseWriter, r *http.Request) {
	s.handleSessionOp(w, r, s.sessions.Refresh)
}

func (s *Server) handleSessionOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, token string) (storage.Session, error)) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := op(r.Context(), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": toSessionPayload(sess)})
}

func (s *Server) handleSessionRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.sessions.Revoke(r.Context(), req.Token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegisterBegin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		UserID string `json:"userId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	creation, ceremonyID, err := s.passkeys.BeginRegistration(r.Context(), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ceremonyId": ceremonyID,
		"options":    creation,
	})
}

func (s *Server) handleRegisterFinish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		CeremonyID string          `json:"ceremonyId"`
		Name       string          `json:"name"`
		Response   json.RawMessage `json:"response"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	pk, err := s.passkeys.FinishRegistration(r.Context(), req.CeremonyID, req.Name, req.Response)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"passkey": toPasskeyPayload(pk)})
}

func (s *Server) handleAssertBegin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		UserID string `json:"userId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	assertion, ceremonyID, err := s.passkeys.BeginAssertion(r.Context(), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ceremonyId": ceremonyID,
		"options":    assertion,
	})
}

func (s *Server) handleAssertFinish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		CeremonyID string          `json:"ceremonyId"`
		Response   json.RawMessage `json:"response"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	u, pk, err := s.passkeys.FinishAssertion(r.Context(), req.CeremonyID, req.Response)
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.sessions.Create(r.Context(), u.ID, remoteIP(r), r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":    toUserPayload(u),
		"session": toSessionPayload(sess),
		"passkey": toPasskeyPayload(pk),
	})
}

type passkeyPayload struct {
	Name         string     `json:"name"`
	CredentialID string     `json:"credentialId"`
	DeviceType   string     `json:"deviceType"`
	BackedUp     bool       `json:"backedUp"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastUsedAt   *time.Time `json:"lastUsedAt,omitempty"`
}

func toPasskeyPayload(pk storage.Passkey) passkeyPayload {
	return passkeyPayload{
		Name:         pk.Name,
		CredentialID: pk.CredentialID,
		DeviceType:   pk.DeviceType,
		BackedUp:     pk.BackedUp,
		CreatedAt:    pk.CreatedAt,
		LastUsedAt:   pk.LastUsedAt,
	}
}

func (s *Server) handlePasskeyList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID := r.URL.Query().Get("userId")
	passkeys, err := s.passkeys.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	payloads := make([]passkeyPayload, 0, len(passkeys))
	for _, pk := range passkeys {
		payloads = append(payloads, toPasskeyPayload(pk))
	}
	writeJSON(w, http.StatusOK, map[string]any{"passkeys": payloads})
}

func (s *Server) handlePasskeyRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		CredentialID string `json:"credentialId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.passkeys.Revoke(r.Context(), req.CredentialID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBiometricIssue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		SessionToken string `json:"sessionToken"`
		DeviceID     string `json:"deviceId"`
		TTLSeconds   int64  `json:"ttlSeconds"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	token, err := s.biometrics.Issue(r.Context(), req.SessionToken, req.DeviceID, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":     token.Token,
		"deviceId":  token.DeviceID,
		"expiresAt": token.ExpiresAt,
	})
}

func (s *Server) handleBiometricValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	token, err := s.biometrics.Validate(r.Context(), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":   token.UserID,
		"deviceId": token.DeviceID,
	})
}

func (s *Server) handleBiometricRevokeDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		DeviceID string `json:"deviceId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.biometrics.RevokeDevice(r.Context(), req.DeviceID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTenantAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		SessionToken string `json:"sessionToken"`
		TenantID     string `json:"tenantId"`
		BSSID        string `json:"bssid"`
		PublicIP     string `json:"publicIp"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.sessions.Validate(r.Context(), req.SessionToken)
	if err != nil {
		writeError(w, err)
		return
	}

	var grant access.Grant
	if req.BSSID != "" || req.PublicIP != "" {
		grant, err = s.access.ResolveOnPremises(r.Context(), sess.UserID, req.TenantID, access.ConnectionContext{
			BSSID:    req.BSSID,
			PublicIP: req.PublicIP,
		})
	} else {
		grant, err = s.access.Resolve(r.Context(), sess.UserID, req.TenantID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":   grant.UserID,
		"tenantId": grant.TenantID,
		"role":     string(grant.Role),
		"capabilities": map[string]bool{
			"canModerate":     grant.Capabilities.CanModerate,
			"canManageOrders": grant.Capabilities.CanManageOrders,
			"canViewStats":    grant.Capabilities.CanViewStats,
		},
		"superadmin": grant.Superadmin,
	})
}

func (s *Server) handleValidateNas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		NasID    string `json:"nasId"`
		VpnIP    string `json:"vpnIp"`
		PublicIP string `json:"publicIp"`
		BSSID    string `json:"bssid"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.admissions.ResolveTenant(r.Context(), admission.Observed{
		NasID:    req.NasID,
		VpnIP:    req.VpnIP,
		PublicIP: req.PublicIP,
		BSSID:    req.BSSID,
	})
	if err != nil {
		// An unmatched connection is a negative answer, not a failure.
		if apperrors.GetCode(err) == apperrors.CodeNotFound {
			writeJSON(w, http.StatusOK, map[string]any{"valid": false})
			return
		}
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"valid":     true,
		"matchedBy": result.MatchedBy,
		"tenant": map[string]any{
			"id":   result.Tenant.ID,
			"name": result.Tenant.Name,
			"slug": result.Tenant.Slug,
		},
	}
	if s.granter != nil {
		grant, err := s.granter.Issue(result)
		if err != nil {
			log.Printf("issue admission grant: %v", err)
		} else {
			resp["grant"] = grant
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]string{"code": "BAD_REQUEST", "message": "invalid JSON body"},
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	status := httpStatus(code)
	message := "internal error"
	if status != http.StatusInternalServerError {
		message = err.Error()
	} else {
		log.Printf("internal error: %v", err)
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": string(code), "message": message},
	})
}

// httpStatus maps domain error codes onto HTTP statuses through the shared
// gRPC taxonomy so both surfaces stay consistent.
func httpStatus(code apperrors.Code) int {
	switch code.GRPCCode() {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted, codes.FailedPrecondition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
		"error": map[string]string{"code": "METHOD_NOT_ALLOWED", "message": "method not allowed"},
	})
}

func remoteIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
