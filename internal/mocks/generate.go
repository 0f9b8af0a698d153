// Package mocks provides generated mocks for the auth ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// the interfaces in internal/ports. The mocks are generated using go:generate
// directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	limiter := mocks.NewMockRateLimiter(ctrl)
//	limiter.EXPECT().CheckOnly(gomock.Any(), "10.0.0.9", "dev").Return(ports.Decision{Reason: ports.ReasonAllowed}, nil)
//
// Hand-written in-memory fakes with real state (session store, connection
// counter) live in internal/mocks/auth; gomock covers the interfaces where
// tests script exact call sequences instead.
package mocks

// Generate mock for AuthProvider interface from internal/ports.
// This creates MockAuthProvider with methods: Begin, Exchange.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=auth_provider_mock.go github.com/target/console-gate/internal/ports AuthProvider

// Generate mock for RateLimiter interface from internal/ports.
// This creates MockRateLimiter with methods: CheckOnly, RecordFailure,
// ClearOnSuccess, CheckAndIncrementIP, Unlock, LockoutRemaining.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=rate_limiter_mock.go github.com/target/console-gate/internal/ports RateLimiter
