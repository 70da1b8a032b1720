package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/observability"
)

type middlewareFunc = func(http.Handler) http.Handler

type routerConfig struct {
	basePath    string
	middlewares []middlewareFunc
	health      *HealthHandlers

	authn        *auth.Authenticator
	serviceToken *auth.ServiceTokenVerifier
	idempotency  middlewareFunc
	limiter      *rateLimiter

	checkout *CheckoutHandlers
	orders   *OrderHandlers
	cart     *CartHandlers
	wallet   *WalletHandlers
	admin    *AdminHandlers
	internal *InternalHandlers
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the storefront route groups.
// Groups without handlers answer 501.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []middlewareFunc{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	user := cfg.userMiddlewares(false)
	admin := cfg.userMiddlewares(true)

	r.Route(cfg.basePath, func(api chi.Router) {
		api.Route("/checkout", func(group chi.Router) {
			use(group, user...)
			use(group, cfg.limiter.middleware, cfg.idempotency)
			if cfg.checkout == nil {
				registerNotImplemented(group, "checkout")
				return
			}
			cfg.checkout.Routes(group)
		})

		api.Route("/orders", func(group chi.Router) {
			use(group, user...)
			if cfg.orders == nil {
				registerNotImplemented(group, "orders")
				return
			}
			cfg.orders.Routes(group)
			group.Group(func(mutations chi.Router) {
				use(mutations, cfg.idempotency)
				cfg.orders.MutationRoutes(mutations)
			})
		})

		mount(api, "/cart", user, cfg.cart, "cart")
		mount(api, "/wallet", user, cfg.wallet, "wallet")
		mount(api, "/admin", admin, cfg.admin, "admin")

		var internal []middlewareFunc
		if cfg.serviceToken != nil {
			internal = append(internal, cfg.serviceToken.RequireServiceToken())
		}
		mount(api, "/internal", internal, cfg.internal, "internal")
	})

	return r
}

type registrar interface {
	comparable
	Routes(chi.Router)
}

func mount[T registrar](api chi.Router, path string, mws []middlewareFunc, handlers T, name string) {
	api.Route(path, func(group chi.Router) {
		use(group, mws...)
		var zero T
		if handlers == zero {
			registerNotImplemented(group, name)
			return
		}
		handlers.Routes(group)
	})
}

func (cfg routerConfig) userMiddlewares(admin bool) []middlewareFunc {
	if cfg.authn == nil {
		return nil
	}
	if admin {
		return []middlewareFunc{cfg.authn.RequireAdmin(), observability.CaptureIdentity}
	}
	return []middlewareFunc{cfg.authn.RequireUser(), observability.CaptureIdentity}
}

func use(r chi.Router, mws ...middlewareFunc) {
	for _, mw := range mws {
		if mw != nil {
			r.Use(mw)
		}
	}
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithAuthenticator guards shopper and admin groups with Firebase authentication.
func WithAuthenticator(authn *auth.Authenticator) Option {
	return func(cfg *routerConfig) {
		cfg.authn = authn
	}
}

// WithServiceTokenVerifier guards the /internal group.
func WithServiceTokenVerifier(verifier *auth.ServiceTokenVerifier) Option {
	return func(cfg *routerConfig) {
		cfg.serviceToken = verifier
	}
}

// WithIdempotency wraps checkout and order mutations with Idempotency-Key replay.
func WithIdempotency(mw func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.idempotency = mw
	}
}

// WithCheckoutRateLimit caps checkout requests per shopper per minute. Zero disables the limit.
func WithCheckoutRateLimit(perMinute int, clock func() time.Time) Option {
	return func(cfg *routerConfig) {
		cfg.limiter = newRateLimiter(perMinute, time.Minute, clock)
	}
}

// WithCheckoutHandlers configures the /checkout group.
func WithCheckoutHandlers(h *CheckoutHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.checkout = h
	}
}

// WithOrderHandlers configures the /orders group.
func WithOrderHandlers(h *OrderHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.orders = h
	}
}

// WithCartHandlers configures the /cart group.
func WithCartHandlers(h *CartHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.cart = h
	}
}

// WithWalletHandlers configures the /wallet group.
func WithWalletHandlers(h *WalletHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.wallet = h
	}
}

// WithAdminHandlers configures the /admin group.
func WithAdminHandlers(h *AdminHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.admin = h
	}
}

// WithInternalHandlers configures the /internal group.
func WithInternalHandlers(h *InternalHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.internal = h
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
}
