package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/console-gate/internal/audit"
	domainauth "github.com/target/console-gate/internal/domain/auth"
	apperrors "github.com/target/console-gate/internal/errors"
	"github.com/target/console-gate/internal/mocks"
	mockauth "github.com/target/console-gate/internal/mocks/auth"
	"github.com/target/console-gate/internal/ports"
)

// The throttle protocol is about call ordering: check before the attempt,
// record after a failure, clear after success. gomock pins the sequence;
// the stateful fakes in mocks/auth cannot.

func newThrottleService(limiter ports.RateLimiter, provider ports.AuthProvider, sink audit.Sink) *AuthService {
	return NewAuthService(AuthServiceOptions{
		Provider: provider,
		Sessions: mockauth.NewMemorySessionStore(),
		Roles:    mockauth.StaticRoleMapper{AdminGroup: "admins", UserGroup: "users"},
		Limiter:  limiter,
		Verifier: &mockauth.MockCredentialVerifier{Account: "dev", Secret: "hunter2"},
		Audit:    sink,
	})
}

func TestDirectLoginRecordsFailureAfterBadSecret(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	limiter := mocks.NewMockRateLimiter(ctrl)
	sink := &recordingSink{}
	svc := newThrottleService(limiter, mockauth.NewMockAuthProvider(), sink)

	gomock.InOrder(
		limiter.EXPECT().
			CheckOnly(gomock.Any(), "10.0.0.9", "dev").
			Return(ports.Decision{Reason: ports.ReasonAllowed}, nil),
		limiter.EXPECT().
			RecordFailure(gomock.Any(), "10.0.0.9", "dev").
			Return(ports.Decision{
				Blocked:    true,
				Reason:     ports.ReasonAccountLockedNow,
				RetryAfter: 15 * time.Minute,
			}, nil),
	)

	_, err := svc.DirectLogin(context.Background(), DirectLoginInput{
		Account:  "dev",
		Secret:   "wrong",
		ClientIP: "10.0.0.9",
	})
	require.Error(t, err)
	// A fresh lockout still reads as a plain auth failure to the caller.
	assert.Equal(t, apperrors.ErrCodeUnauthenticated, apperrors.GetCode(err))

	last := sink.last()
	assert.Equal(t, audit.TypeLoginFailure, last.Type)
	assert.Equal(t, string(ports.ReasonAccountLockedNow), last.Reason)
}

func TestDirectLoginSuccessClearsFailureState(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	limiter := mocks.NewMockRateLimiter(ctrl)
	svc := newThrottleService(limiter, mockauth.NewMockAuthProvider(), &recordingSink{})

	gomock.InOrder(
		limiter.EXPECT().
			CheckOnly(gomock.Any(), "10.0.0.9", "dev").
			Return(ports.Decision{Reason: ports.ReasonAllowed}, nil),
		limiter.EXPECT().
			ClearOnSuccess(gomock.Any(), gomock.Any()).
			Return(nil),
	)

	creds, err := svc.DirectLogin(context.Background(), DirectLoginInput{
		Account:  "dev",
		Secret:   "hunter2",
		ClientIP: "10.0.0.9",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, creds.Token)
}

func TestDirectLoginLockedAccountSkipsVerifier(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	limiter := mocks.NewMockRateLimiter(ctrl)
	sink := &recordingSink{}
	svc := newThrottleService(limiter, mockauth.NewMockAuthProvider(), sink)

	limiter.EXPECT().
		CheckOnly(gomock.Any(), "10.0.0.9", "dev").
		Return(ports.Decision{
			Blocked:    true,
			Reason:     ports.ReasonAccountLocked,
			RetryAfter: 10 * time.Minute,
		}, nil)

	_, err := svc.DirectLogin(context.Background(), DirectLoginInput{
		Account:  "dev",
		Secret:   "hunter2",
		ClientIP: "10.0.0.9",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeRateLimited, apperrors.GetCode(err))
	assert.Equal(t, string(ports.ReasonAccountLocked), sink.last().Reason)
}

func TestBeginLoginBlockedIPNeverReachesProvider(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	limiter := mocks.NewMockRateLimiter(ctrl)
	provider := mocks.NewMockAuthProvider(ctrl)
	svc := newThrottleService(limiter, provider, &recordingSink{})

	limiter.EXPECT().
		CheckAndIncrementIP(gomock.Any(), "203.0.113.7").
		Return(ports.Decision{
			Blocked:    true,
			Reason:     ports.ReasonIPRateLimited,
			RetryAfter: 30 * time.Second,
		}, nil)

	_, err := svc.BeginLogin(context.Background(), "https://console.example.com/auth/callback", "203.0.113.7")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeRateLimited, apperrors.GetCode(err))
}

func TestCompleteLoginChecksLockoutAfterExchange(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	limiter := mocks.NewMockRateLimiter(ctrl)
	provider := mocks.NewMockAuthProvider(ctrl)
	sink := &recordingSink{}
	svc := newThrottleService(limiter, provider, sink)

	identity := domainauth.Identity{
		UserID: "jslowik",
		Email:  "j.slowik@example.com",
		Groups: []string{"users"},
	}

	gomock.InOrder(
		limiter.EXPECT().
			CheckAndIncrementIP(gomock.Any(), "203.0.113.7").
			Return(ports.Decision{Reason: ports.ReasonAllowed}, nil),
		provider.EXPECT().
			Exchange(gomock.Any(), ports.ExchangeInput{Code: "code-1", State: "state-1", Nonce: "nonce-1"}).
			Return(identity, nil),
		limiter.EXPECT().
			CheckOnly(gomock.Any(), "203.0.113.7", "jslowik").
			Return(ports.Decision{
				Blocked:    true,
				Reason:     ports.ReasonAccountLocked,
				RetryAfter: 15 * time.Minute,
			}, nil),
	)

	_, err := svc.CompleteLogin(context.Background(), CompleteLoginInput{
		Code:     "code-1",
		State:    "state-1",
		Nonce:    "nonce-1",
		ClientIP: "203.0.113.7",
	})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeRateLimited, appErr.Code)
	assert.Equal(t, 900, appErr.RetryAfterSeconds)
	assert.Equal(t, string(ports.ReasonAccountLocked), sink.last().Reason)
}
