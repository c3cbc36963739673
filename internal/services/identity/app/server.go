// Package app hosts the identity service: HTTP endpoints for sessions,
// passkeys, biometric tokens and tenant admission, plus a gRPC health
// listener and the background expiry sweep.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/venuelink/venuelink/internal/services/identity/access"
	"github.com/venuelink/venuelink/internal/services/identity/account"
	"github.com/venuelink/venuelink/internal/services/identity/admission"
	"github.com/venuelink/venuelink/internal/services/identity/biometric"
	"github.com/venuelink/venuelink/internal/services/identity/passkey"
	"github.com/venuelink/venuelink/internal/services/identity/session"
	identitysqlite "github.com/venuelink/venuelink/internal/services/identity/storage/sqlite"
)

// Server hosts the identity service.
type Server struct {
	grpcListener net.Listener
	grpcServer   *grpc.Server
	health       *health.Server
	httpListener net.Listener
	httpServer   *http.Server
	store        *identitysqlite.Store

	sessions   *session.Manager
	passkeys   *passkey.Verifier
	biometrics *biometric.Issuer
	access     *access.Resolver
	admissions *admission.Resolver
	granter    *admission.Granter
	accounts   *account.Service

	clock func() time.Time
}

// New creates a configured identity server listening on the provided port.
func New(port int, httpAddr string) (*Server, error) {
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	store, err := openIdentityStore()
	if err != nil {
		_ = grpcListener.Close()
		return nil, err
	}

	srv, err := newWithStore(store)
	if err != nil {
		_ = grpcListener.Close()
		_ = store.Close()
		return nil, err
	}
	srv.grpcListener = grpcListener

	if strings.TrimSpace(httpAddr) != "" {
		httpListener, err := net.Listen("tcp", httpAddr)
		if err != nil {
			_ = grpcListener.Close()
			_ = store.Close()
			return nil, fmt.Errorf("listen on http addr %s: %w", httpAddr, err)
		}
		mux := http.NewServeMux()
		srv.RegisterRoutes(mux)
		srv.httpListener = httpListener
		srv.httpServer = &http.Server{Handler: mux}
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("identity", grpc_health_v1.HealthCheckResponse_SERVING)
	srv.grpcServer = grpcServer
	srv.health = healthServer

	return srv, nil
}

// newWithStore builds the domain services over an open store.
func newWithStore(store *identitysqlite.Store) (*Server, error) {
	sessions := session.NewManager(store, store, session.LoadConfigFromEnv())
	verifier, err := passkey.NewVerifier(store, store, store, passkey.LoadConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("configure passkey verifier: %w", err)
	}

	srv := &Server{
		store:      store,
		sessions:   sessions,
		passkeys:   verifier,
		biometrics: biometric.NewIssuer(store, sessions, biometric.LoadConfigFromEnv()),
		access:     access.NewResolver(store, store, store),
		admissions: admission.NewResolver(store, store),
		accounts:   account.NewService(store, store, sessions),
		clock:      time.Now,
	}

	grantCfg, err := admission.LoadGrantConfigFromEnv()
	if err != nil {
		// Grants are optional wiring; admission still resolves without them.
		log.Printf("admission grants disabled: %v", err)
	} else {
		srv.granter = admission.NewGranter(grantCfg)
	}
	return srv, nil
}

// Addr returns the gRPC listener address.
func (s *Server) Addr() string {
	if s == nil || s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// HTTPAddr returns the HTTP listener address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Run creates and serves an identity server until the context ends.
func Run(ctx context.Context, port int, httpAddr string) error {
	srv, err := New(port, httpAddr)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Serve starts the identity server and blocks until it stops or the context
// ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeStore()

	s.StartCleanup(serverCtx, 5*time.Minute)

	log.Printf("identity server listening at %v", s.grpcListener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.grpcListener)
	}()

	httpErr := make(chan error, 1)
	if s.httpServer != nil && s.httpListener != nil {
		log.Printf("identity HTTP server listening at %v", s.httpListener.Addr())
		go func() {
			httpErr <- s.httpServer.Serve(s.httpListener)
		}()
	}

	handleErr := func(err error) error {
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}

	shutdownGRPC := func() {
		if s.health != nil {
			s.health.Shutdown()
		}
		s.grpcServer.GracefulStop()
	}
	shutdownHTTP := func() {
		if s.httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = s.httpServer.Shutdown(shutdownCtx)
		}
	}

	select {
	case <-ctx.Done():
		shutdownGRPC()
		shutdownHTTP()
		err := <-serveErr
		return handleErr(err)
	case err := <-serveErr:
		shutdownHTTP()
		return handleErr(err)
	case err := <-httpErr:
		if err == http.ErrServerClosed {
			return nil
		}
		shutdownGRPC()
		grpcErr := <-serveErr
		if handled := handleErr(grpcErr); handled != nil {
			return handled
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// StartCleanup starts the periodic expiry sweep for sessions, challenge
// records, and biometric tokens.
//
// Read paths never delete lazily, so the sweep is the only reclamation of
// expired rows.
func (s *Server) StartCleanup(ctx context.Context, interval time.Duration) {
	if s == nil || s.store == nil || interval <= 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepExpired(ctx)
			}
		}
	}()
}

func (s *Server) sweepExpired(ctx context.Context) {
	now := s.clock().UTC()
	if err := s.store.DeleteExpiredSessions(ctx, now); err != nil {
		log.Printf("sweep expired sessions: %v", err)
	}
	if err := s.store.DeleteExpiredVerifications(ctx, now); err != nil {
		log.Printf("sweep expired verifications: %v", err)
	}
	if err := s.store.DeleteExpiredBiometricTokens(ctx, now); err != nil {
		log.Printf("sweep expired biometric tokens: %v", err)
	}
}

func openIdentityStore() (*identitysqlite.Store, error) {
	path := strings.TrimSpace(os.Getenv("VENUELINK_IDENTITY_DB_PATH"))
	if path == "" {
		path = filepath.Join("data", "identity.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := identitysqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identity sqlite store: %w", err)
	}
	return store, nil
}

func (s *Server) closeStore() {
	if s == nil {
		return
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close identity store: %v", err)
		}
	}
}
