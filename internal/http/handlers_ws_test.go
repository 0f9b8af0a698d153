package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/console-gate/internal/domain/auth"
	mocksauth "github.com/target/console-gate/internal/mocks/auth"
	"github.com/target/console-gate/internal/service"
)

type wsFixture struct {
	store      *mocksauth.MemorySessionStore
	counter    *mocksauth.MemoryConnCounter
	controller *service.AdmissionController
	server     *httptest.Server
}

func newWSFixture(t *testing.T, maxConns int64, perSession int) *wsFixture {
	t.Helper()

	store := mocksauth.NewMemorySessionStore()
	counter := mocksauth.NewMemoryConnCounter(perSession)
	controller := service.NewAdmissionController(store, counter, service.AdmissionConfig{
		MaxConnections:  maxConns,
		ValidateTimeout: time.Second,
		RetryAfter:      5 * time.Second,
	}, nil, nil)

	handler := &WSHandler{
		Admission:         controller,
		Lifecycle:         service.NewLifecycleCoordinator(nil, nil),
		SessionCookieName: testCookieName,
	}
	server := httptest.NewServer(http.HandlerFunc(handler.Connect))
	t.Cleanup(server.Close)

	return &wsFixture{store: store, counter: counter, controller: controller, server: server}
}

func (f *wsFixture) wsURL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func (f *wsFixture) dial(t *testing.T, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	var header http.Header
	if token != "" {
		header = http.Header{"Cookie": []string{testCookieName + "=" + token}}
	}
	conn, resp, err := websocket.DefaultDialer.Dial(f.wsURL(), header)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func TestWSEcho(t *testing.T) {
	f := newWSFixture(t, 4, 0)

	conn, _, err := f.dial(t, "")
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	msgType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.Equal(t, "ping", string(payload))
}

func TestWSRejectsOverGlobalCapacity(t *testing.T) {
	f := newWSFixture(t, 1, 0)

	_, _, err := f.dial(t, "")
	require.NoError(t, err)

	_, resp, err := f.dial(t, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Retry-After"))
}

func TestWSReleasesSlotOnDisconnect(t *testing.T) {
	f := newWSFixture(t, 1, 0)

	conn, _, err := f.dial(t, "")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	// The server side releases its slot after noticing the close.
	require.Eventually(t, func() bool {
		c, _, dialErr := websocket.DefaultDialer.Dial(f.wsURL(), nil)
		if dialErr != nil {
			return false
		}
		_ = c.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWSRejectsInvalidSession(t *testing.T) {
	f := newWSFixture(t, 4, 0)

	_, resp, err := f.dial(t, "sess-unknown")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWSPerSessionCap(t *testing.T) {
	f := newWSFixture(t, 8, 1)
	f.store.Put(domainauth.Session{ID: "sess-live", User: domainauth.User{ID: "u-1", Role: domainauth.RoleUser}})

	_, _, err := f.dial(t, "sess-live")
	require.NoError(t, err)

	_, resp, err := f.dial(t, "sess-live")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// The anonymous path only contends on the global cap.
	_, _, err = f.dial(t, "")
	require.NoError(t, err)
}

func TestWSDrainingRejectsWith503(t *testing.T) {
	f := newWSFixture(t, 4, 0)
	f.controller.SetDraining(true)

	_, resp, err := f.dial(t, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Retry-After"))
}

func TestWSStoreOutageRejectsWith503(t *testing.T) {
	f := newWSFixture(t, 4, 0)
	f.store.ValidateErr = mocksauth.ErrUnavailable

	_, resp, err := f.dial(t, "sess-live")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
