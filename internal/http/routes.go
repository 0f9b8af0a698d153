package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/target/console-gate/internal/domain/auth"
	"github.com/target/console-gate/internal/ports"
	"github.com/target/console-gate/internal/service"
)

// RouterOptions holds everything the HTTP router needs.
type RouterOptions struct {
	Auth      AuthServiceInterface
	Sessions  ports.SessionStore
	Admission *service.AdmissionController
	Lifecycle *service.LifecycleCoordinator

	SessionCookieName   string
	CookieDomain        string
	SessionCookieMaxAge time.Duration

	// AllowedOrigins restricts WebSocket upgrades. Empty means same-origin.
	AllowedOrigins []string

	// EnableDirectLogin exposes the account/secret login endpoint. Dev only.
	EnableDirectLogin bool

	// ReadyCheck pings the session store for the readiness endpoint.
	ReadyCheck func(ctx context.Context) error

	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(opts RouterOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	mux := http.NewServeMux()

	sessionAuth := SessionAuth{
		Sessions:   opts.Sessions,
		CookieName: opts.SessionCookieName,
		Logger:     opts.Logger,
	}
	requireAuth := RequireAuth(sessionAuth)
	requireAdmin := RequireRole(sessionAuth, domainauth.RoleAdmin)
	optionalAuth := OptionalAuth(sessionAuth)
	csrf := CSRFProtection(CSRFConfig{})

	authHandlers := &AuthHandlers{
		Svc:                 opts.Auth,
		SessionCookieName:   opts.SessionCookieName,
		CookieDomain:        opts.CookieDomain,
		SessionCookieMaxAge: opts.SessionCookieMaxAge,
		Logger:              opts.Logger,
	}

	mux.HandleFunc("GET /auth/login", authHandlers.Login)
	mux.HandleFunc("GET /auth/callback", authHandlers.Callback)
	mux.Handle("GET /auth/status", optionalAuth(http.HandlerFunc(authHandlers.Status)))
	// CSRF runs inside RequireAuth: it needs the session in context.
	mux.Handle("POST /auth/logout", requireAuth(csrf(http.HandlerFunc(authHandlers.Logout))))
	mux.Handle("POST /auth/step-up", requireAuth(csrf(http.HandlerFunc(authHandlers.StepUp))))
	if opts.EnableDirectLogin {
		mux.HandleFunc("POST /auth/login/direct", authHandlers.DirectLogin)
	}
	mux.Handle("POST /api/admin/unlock", requireAdmin(csrf(http.HandlerFunc(authHandlers.Unlock))))

	if opts.Admission != nil && opts.Lifecycle != nil {
		wsHandlers := &WSHandler{
			Admission:         opts.Admission,
			Lifecycle:         opts.Lifecycle,
			SessionCookieName: opts.SessionCookieName,
			AllowedOrigins:    opts.AllowedOrigins,
			Logger:            opts.Logger,
		}
		mux.HandleFunc("GET /ws", wsHandlers.Connect)
	}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	ready := &ReadinessHandler{CheckStore: opts.ReadyCheck}
	if opts.Admission != nil {
		ready.Draining = opts.Admission.Draining
	}
	mux.Handle("GET /readyz", ready)
	mux.Handle("HEAD /readyz", ready)

	var handler http.Handler = mux
	handler = Logging(opts.Logger)(handler)
	handler = Recover(opts.Logger)(handler)
	return handler
}
