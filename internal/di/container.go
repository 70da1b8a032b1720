package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/handlers"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders  services.OrderService
	Returns services.ReturnService
	Wallets services.WalletService
	Carts   services.CartService
	Admin   services.AdminService
}

// Infrastructure carries the clients built by main. Store and Gateway are required; the rest
// degrade gracefully when nil.
type Infrastructure struct {
	Store         repositories.Store
	Gateway       payments.Gateway
	Events        services.OrderEventPublisher
	Evidence      services.EvidenceUploader
	Idempotency   idempotency.Store
	Authenticator *auth.Authenticator
	ServiceTokens *auth.ServiceTokenVerifier
	Readiness     map[string]handlers.ReadinessCheck
	Logger        *zap.Logger
	Meter         metric.Meter
	Clock         func() time.Time
	IDGenerator   func() string
	Build         handlers.BuildInfo
}

// Container wires the store, services and HTTP router for runtime use.
type Container struct {
	Config   config.Config
	Store    repositories.Store
	Services Services
	Router   http.Handler
}

// NewContainer constructs the runtime dependencies. Tests can supply the in-memory store and a
// stub gateway.
func NewContainer(ctx context.Context, cfg config.Config, infra Infrastructure) (*Container, error) {
	if infra.Store == nil {
		return nil, errors.New("di: store is required")
	}
	if infra.Gateway == nil {
		return nil, errors.New("di: payment gateway is required")
	}
	if infra.Logger == nil {
		infra.Logger = zap.NewNop()
	}
	if infra.Clock == nil {
		infra.Clock = time.Now
	}

	svc, err := buildServices(cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:   cfg,
		Store:    infra.Store,
		Services: svc,
		Router:   buildRouter(cfg, infra, svc),
	}, nil
}

// Close releases the store client.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close(ctx)
}

func buildServices(cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services
	var err error

	svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Store:       infra.Store,
		Gateway:     infra.Gateway,
		Events:      infra.Events,
		Meter:       infra.Meter,
		Clock:       infra.Clock,
		IDGenerator: infra.IDGenerator,
		Logger:      observability.ServiceLogger(infra.Logger.Named("orders")),
		Currency:    cfg.Checkout.Currency,
		CODLimit:    cfg.Checkout.CODLimit,
	})
	if err != nil {
		return svc, fmt.Errorf("init order service: %w", err)
	}

	svc.Returns, err = services.NewReturnService(services.ReturnServiceDeps{
		Store:            infra.Store,
		Evidence:         infra.Evidence,
		Events:           infra.Events,
		Meter:            infra.Meter,
		Clock:            infra.Clock,
		IDGenerator:      infra.IDGenerator,
		Logger:           observability.ServiceLogger(infra.Logger.Named("returns")),
		ReturnWindowDays: cfg.Checkout.ReturnWindowDays,
	})
	if err != nil {
		return svc, fmt.Errorf("init return service: %w", err)
	}

	svc.Wallets, err = services.NewWalletService(services.WalletServiceDeps{Store: infra.Store})
	if err != nil {
		return svc, fmt.Errorf("init wallet service: %w", err)
	}

	svc.Carts, err = services.NewCartService(services.CartServiceDeps{
		Store:       infra.Store,
		Clock:       infra.Clock,
		IDGenerator: infra.IDGenerator,
		Logger:      observability.ServiceLogger(infra.Logger.Named("cart")),
	})
	if err != nil {
		return svc, fmt.Errorf("init cart service: %w", err)
	}

	svc.Admin, err = services.NewAdminService(services.AdminServiceDeps{
		Store:       infra.Store,
		Clock:       infra.Clock,
		IDGenerator: infra.IDGenerator,
		Logger:      observability.ServiceLogger(infra.Logger.Named("admin")),
	})
	if err != nil {
		return svc, fmt.Errorf("init admin service: %w", err)
	}
	return svc, nil
}

func buildRouter(cfg config.Config, infra Infrastructure, svc Services) http.Handler {
	healthOpts := []handlers.HealthOption{
		handlers.WithHealthBuildInfo(infra.Build),
		handlers.WithHealthClock(infra.Clock),
		handlers.WithReadinessCheck("store", infra.Store.Ping),
	}
	for name, check := range infra.Readiness {
		healthOpts = append(healthOpts, handlers.WithReadinessCheck(name, check))
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(infra.Logger),
			observability.TraceMiddleware(cfg.Firebase.ProjectID),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(infra.Logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithCheckoutRateLimit(cfg.RateLimits.CheckoutPerMinute, infra.Clock),
		handlers.WithCheckoutHandlers(handlers.NewCheckoutHandlers(svc.Orders)),
		handlers.WithOrderHandlers(handlers.NewOrderHandlers(svc.Orders, svc.Returns, handlers.WithEvidenceLimit(cfg.Storage.EvidenceMaxBytes))),
		handlers.WithCartHandlers(handlers.NewCartHandlers(svc.Carts)),
		handlers.WithWalletHandlers(handlers.NewWalletHandlers(svc.Wallets)),
		handlers.WithAdminHandlers(handlers.NewAdminHandlers(svc.Orders, svc.Returns, svc.Admin)),
	}
	if infra.Authenticator != nil {
		opts = append(opts, handlers.WithAuthenticator(infra.Authenticator))
	}
	if infra.ServiceTokens != nil {
		opts = append(opts,
			handlers.WithServiceTokenVerifier(infra.ServiceTokens),
			handlers.WithInternalHandlers(handlers.NewInternalHandlers(svc.Orders)),
		)
	}
	if infra.Idempotency != nil {
		opts = append(opts, handlers.WithIdempotency(idempotency.Middleware(
			infra.Idempotency,
			idempotency.WithHeader(cfg.Idempotency.Header),
			idempotency.WithTTL(cfg.Idempotency.TTL),
			idempotency.WithClock(infra.Clock),
			idempotency.WithLogger(observability.NewPrintfAdapter(infra.Logger.Named("idempotency"))),
		)))
	}
	return handlers.NewRouter(opts...)
}
