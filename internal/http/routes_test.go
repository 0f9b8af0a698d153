package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/console-gate/internal/domain/auth"
	mocksauth "github.com/target/console-gate/internal/mocks/auth"
	"github.com/target/console-gate/internal/service"
)

type routerFixture struct {
	store      *mocksauth.MemorySessionStore
	controller *service.AdmissionController
	handler    http.Handler
}

func newRouterFixture(t *testing.T, enableDirectLogin bool) *routerFixture {
	t.Helper()

	store := mocksauth.NewMemorySessionStore()
	controller := service.NewAdmissionController(store, mocksauth.NewMemoryConnCounter(0), service.AdmissionConfig{
		MaxConnections:  4,
		ValidateTimeout: time.Second,
		RetryAfter:      5 * time.Second,
	}, nil, nil)

	handler := NewRouter(RouterOptions{
		Auth:                &stubAuthService{},
		Sessions:            store,
		Admission:           controller,
		Lifecycle:           service.NewLifecycleCoordinator(nil, nil),
		SessionCookieName:   testCookieName,
		SessionCookieMaxAge: time.Hour,
		EnableDirectLogin:   enableDirectLogin,
		ReadyCheck:          func(context.Context) error { return nil },
	})

	return &routerFixture{store: store, controller: controller, handler: handler}
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthAndReadiness(t *testing.T) {
	f := newRouterFixture(t, false)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	f.controller.SetDraining(true)
	rec = f.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// Liveness stays green while draining.
	rec = f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterLogoutRequiresAuthAndCSRF(t *testing.T) {
	f := newRouterFixture(t, false)
	sess := seedSession(f.store, domainauth.RoleUser)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := authedRequest(http.MethodPost, "/auth/logout", sess.ID)
	rec = f.do(req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = authedRequest(http.MethodPost, "/auth/logout", sess.ID)
	req.Header.Set(DefaultCSRFHeaderName, sess.CSRFToken)
	rec = f.do(req)
	require.Equal(t, http.StatusFound, rec.Code)
}

func TestRouterDirectLoginDisabledByDefault(t *testing.T) {
	f := newRouterFixture(t, false)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/auth/login/direct", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterUnlockRequiresAdmin(t *testing.T) {
	f := newRouterFixture(t, false)
	sess := seedSession(f.store, domainauth.RoleUser)

	req := authedRequest(http.MethodPost, "/api/admin/unlock", sess.ID)
	req.Header.Set(DefaultCSRFHeaderName, sess.CSRFToken)
	rec := f.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
