package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/console-gate/config"
	"github.com/target/console-gate/internal/adapters/authroles"
	"github.com/target/console-gate/internal/adapters/devauth"
	"github.com/target/console-gate/internal/adapters/oidc"
	redisadapter "github.com/target/console-gate/internal/adapters/redis"
	"github.com/target/console-gate/internal/audit"
	"github.com/target/console-gate/internal/data"
	"github.com/target/console-gate/internal/data/cryptoutil"
	httpx "github.com/target/console-gate/internal/http"
	"github.com/target/console-gate/internal/observability/notify"
	"github.com/target/console-gate/internal/observability/notify/pagerduty"
	"github.com/target/console-gate/internal/observability/notify/slack"
	"github.com/target/console-gate/internal/observability/statsd"
	"github.com/target/console-gate/internal/ports"
	"github.com/target/console-gate/internal/service"
)

const auditDispatchBuffer = 1024

// App holds the wired application: storage clients, services, and the HTTP
// handler. Build it with NewApp and tear it down with Close.
type App struct {
	Config config.AppConfig
	Logger *slog.Logger

	Redis   redis.UniversalClient
	AuditDB *sql.DB

	Sessions  *redisadapter.SessionStore
	Limiter   *redisadapter.RateLimiter
	Auth      *service.AuthService
	Admission *service.AdmissionController
	Lifecycle *service.LifecycleCoordinator

	Handler http.Handler

	metrics    *statsd.Client
	dispatcher *audit.Dispatcher
}

// NewApp wires the full application from configuration. Fail-fast: any
// misconfiguration surfaces here rather than on the first request.
func NewApp(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	metrics, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Observability.Metrics.IsEnabled(),
		Address: cfg.Observability.Metrics.StatsdAddress,
		Prefix:  "console_gate.",
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("statsd client: %w", err)
	}
	app.metrics = metrics

	redisClient, err := ConnectRedis(cfg.Redis, logger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("connect redis: %w", err), app.closeQuiet())
	}
	app.Redis = redisClient

	sink, err := app.buildAuditSink(ctx)
	if err != nil {
		return nil, errors.Join(err, app.closeQuiet())
	}

	codec, err := buildCodec(cfg.Session)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("session codec: %w", err), app.closeQuiet())
	}

	app.Sessions = redisadapter.NewSessionStore(redisClient, codec, redisadapter.SessionStoreConfig{
		AbsoluteTimeout:      cfg.Session.AbsoluteTimeout,
		IdleTimeout:          cfg.Session.IdleTimeout,
		DeviceBinding:        cfg.Session.DeviceBinding,
		DeviceSubnetV4Bits:   cfg.Session.DeviceSubnetV4Bits,
		DeviceSubnetV6Bits:   cfg.Session.DeviceSubnetV6Bits,
		CreateMaxPerMinute:   cfg.RateLimit.CreateMaxPerMinute,
		ValidateMaxPerMinute: cfg.RateLimit.ValidateMaxPerMinute,
	}, sink, logger)

	app.Limiter = redisadapter.NewRateLimiter(redisClient, redisadapter.RateLimiterConfig{
		IPMaxPerMinute:   cfg.RateLimit.IPMaxPerMinute,
		FailureWindow:    cfg.RateLimit.FailureWindow,
		LockoutThreshold: cfg.RateLimit.LockoutThreshold,
		LockoutDuration:  cfg.RateLimit.LockoutDuration,
	}, sink)

	counter := redisadapter.NewConnCounter(redisClient, redisadapter.ConnCounterConfig{
		PerSessionMax: cfg.Admission.PerSessionMax,
		CounterTTL:    cfg.Admission.CounterTTL,
	})

	provider, verifier, err := buildAuthProvider(cfg.Auth, logger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("auth provider: %w", err), app.closeQuiet())
	}

	app.Auth = service.NewAuthService(service.AuthServiceOptions{
		Provider: provider,
		Sessions: app.Sessions,
		Roles: authroles.StaticRoleMapper{
			AdminGroup: cfg.Auth.AdminGroup,
			UserGroup:  cfg.Auth.UserGroup,
		},
		Limiter:  app.Limiter,
		Verifier: verifier,
		Audit:    sink,
		Logger:   logger,
	})

	app.Admission = service.NewAdmissionController(app.Sessions, counter, service.AdmissionConfig{
		MaxConnections:  int64(cfg.Admission.MaxConnections),
		ValidateTimeout: cfg.Admission.ValidateTimeout,
		RetryAfter:      cfg.Admission.RetryAfter,
	}, metrics, logger)
	app.Lifecycle = service.NewLifecycleCoordinator(metrics, logger)

	app.Handler = httpx.NewRouter(httpx.RouterOptions{
		Auth:                app.Auth,
		Sessions:            app.Sessions,
		Admission:           app.Admission,
		Lifecycle:           app.Lifecycle,
		SessionCookieName:   cfg.Session.CookieName,
		CookieDomain:        cfg.HTTP.CookieDomain,
		SessionCookieMaxAge: cfg.Session.AbsoluteTimeout,
		AllowedOrigins:      cfg.HTTP.AllowedOrigins,
		EnableDirectLogin:   verifier != nil,
		ReadyCheck:          app.Sessions.Health,
		Logger:              logger,
	})

	return app, nil
}

// buildAuditSink picks the audit destination: PostgreSQL when configured,
// the structured log otherwise, with lockout notifications fanned out
// alongside. Anything slower than the log goes behind the async dispatcher
// so delivery latency stays off the request path.
func (a *App) buildAuditSink(ctx context.Context) (audit.Sink, error) {
	var base audit.Sink = audit.LogSink{Logger: a.Logger}

	if a.Config.AuditDB.Enabled {
		db, err := ConnectAuditDB(a.Config.AuditDB, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("connect audit db: %w", err)
		}
		a.AuditDB = db

		if migrateErr := RunMigrations(ctx, db, a.Logger); migrateErr != nil {
			return nil, migrateErr
		}
		base = data.NewAuditRepo(db, a.Logger)
	}

	notifier, err := buildLockoutNotifier(a.Config.Observability.Notify, a.Logger)
	if err != nil {
		return nil, err
	}

	downstream := base
	if notifier != nil {
		downstream = audit.Fanout{base, notifier}
	}
	if !a.Config.AuditDB.Enabled && notifier == nil {
		return downstream, nil
	}

	a.dispatcher = audit.NewDispatcher(downstream, auditDispatchBuffer, a.Logger)
	return a.dispatcher, nil
}

// buildLockoutNotifier assembles the configured notification sinks, or nil
// when none are configured.
func buildLockoutNotifier(cfg config.ObservabilityNotifyConfig, logger *slog.Logger) (*notify.LockoutNotifier, error) {
	var sinks []notify.Sink

	if cfg.SlackWebhookURL != "" {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:       cfg.SlackWebhookURL,
			Channel:          cfg.SlackChannel,
			Timeout:          cfg.Timeout,
			RetryLimit:       cfg.RetryLimit,
			AccountURLPrefix: cfg.AccountURLPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("slack notifier: %w", err)
		}
		sinks = append(sinks, client)
	}

	if cfg.PagerDutyRoutingKey != "" {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDutyRoutingKey,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("pagerduty notifier: %w", err)
		}
		sinks = append(sinks, client)
	}

	if len(sinks) == 0 {
		return nil, nil
	}
	return notify.NewLockoutNotifier(logger, sinks...), nil
}

func buildCodec(cfg config.SessionConfig) (*cryptoutil.SessionCodec, error) {
	encKeys, err := cfg.EncryptionKeyBytes()
	if err != nil {
		return nil, err
	}
	signKeys, err := cfg.SigningKeyBytes()
	if err != nil {
		return nil, err
	}
	return cryptoutil.NewSessionCodec(cryptoutil.CodecConfig{
		EncryptionKeys:      encKeys,
		SigningKeys:         signKeys,
		CurrentSigningKeyID: cfg.CurrentSigningKeyID,
	})
}

// buildAuthProvider returns the identity provider for the configured mode,
// plus a credential verifier when the mode supports direct login.
func buildAuthProvider(cfg config.AuthConfig, logger *slog.Logger) (ports.AuthProvider, ports.CredentialVerifier, error) {
	switch cfg.Mode {
	case config.AuthModeMock:
		prov, err := devauth.NewProvider(devauth.Config{
			UserID:   cfg.DevAuth.UserID,
			Email:    cfg.DevAuth.Email,
			Groups:   cfg.DevAuth.Groups,
			Password: cfg.DevAuth.Password,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Warn("mock authentication enabled; do not use in production")
		if cfg.DevAuth.Password == "" {
			return prov, nil, nil
		}
		return prov, prov, nil

	case config.AuthModeOAuth:
		oauth := cfg.OAuth
		if oauth.DiscoveryURL == "" {
			return nil, nil, errors.New("OAUTH_DISCOVERY_URL is required in oauth mode")
		}
		prov, err := oidc.NewProvider(oidc.ProviderConfig{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			RedirectURL:  oauth.RedirectURL,
			Scope:        oauth.Scope,
			DiscoveryURL: oauth.DiscoveryURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return prov, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

// Close releases clients and flushes the audit dispatcher.
func (a *App) Close() error {
	var errs []error
	if a.dispatcher != nil {
		a.dispatcher.Close(5 * time.Second)
	}
	if a.AuditDB != nil {
		if err := a.AuditDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit db: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.metrics != nil {
		if err := a.metrics.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close statsd: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) closeQuiet() error {
	if err := a.Close(); err != nil {
		a.Logger.Warn("partial teardown failed", "error", err)
	}
	return nil
}
