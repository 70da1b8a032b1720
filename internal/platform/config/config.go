// Package config loads the storefront API settings from API_* environment variables, an optional
// dotenv file and Secret Manager references.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/currency"
)

const (
	defaultPort                = "8080"
	defaultRoleClaim           = "role"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultRazorpayBaseURL     = "https://api.razorpay.com"
	defaultRazorpayTimeout     = 10 * time.Second
	defaultCurrency            = "INR"
	defaultCODLimit            = 100000
	defaultReturnWindowDays    = 7
	defaultEvidenceMaxBytes    = 5 << 20
	defaultRateLimitCheckout   = 20
	defaultSecurityEnvironment = "local"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer      = "https://accounts.google.com"
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	Razorpay    RazorpayConfig
	Checkout    CheckoutConfig
	PubSub      PubSubConfig
	Redis       RedisConfig
	RateLimits  RateLimitConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	// RoleClaim names the custom claim carrying "admin" for back-office users.
	RoleClaim string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig configures where return evidence images are written.
type StorageConfig struct {
	ReturnsBucket    string
	PublicBaseURL    string
	EvidenceMaxBytes int64
}

// RazorpayConfig holds gateway credentials. KeySecret may be a secret reference.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration
}

// CheckoutConfig tunes checkout business rules. Amounts are minor currency units.
type CheckoutConfig struct {
	Currency         string
	CODLimit         int64
	ReturnWindowDays int
}

// PubSubConfig names the topic receiving order lifecycle events. Publishing is disabled when empty.
type PubSubConfig struct {
	ProjectID        string
	OrderEventsTopic string
}

// RedisConfig enables the Redis idempotency store when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	CheckoutPerMinute int
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification for internal routes.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// IdempotencyConfig controls idempotency middleware behaviour. Stored keys expire after TTL.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// ValidationError lists fields that are missing or out of range after loading.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// Load builds Config from defaults, dotenv, the process environment and explicit values (in
// increasing precedence), then resolves secret references and validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	o := applyOptions(opts)
	env, err := newSource(o)
	if err != nil {
		return Config{}, err
	}

	firebaseProject := env.str("API_FIREBASE_PROJECT_ID", "")
	issuers := env.list("API_SECURITY_OIDC_ISSUERS")
	if len(issuers) == 0 {
		issuers = []string{defaultSecurityIssuer}
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       firebaseProject,
			CredentialsFile: env.str("API_FIREBASE_CREDENTIALS_FILE", ""),
			RoleClaim:       env.str("API_FIREBASE_ROLE_CLAIM", defaultRoleClaim),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", firebaseProject),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			ReturnsBucket:    env.str("API_STORAGE_RETURNS_BUCKET", ""),
			PublicBaseURL:    strings.TrimRight(env.str("API_STORAGE_PUBLIC_BASE_URL", ""), "/"),
			EvidenceMaxBytes: int64(env.integer("API_STORAGE_EVIDENCE_MAX_BYTES", defaultEvidenceMaxBytes)),
		},
		Razorpay: RazorpayConfig{
			KeyID:     env.str("API_RAZORPAY_KEY_ID", ""),
			KeySecret: env.str("API_RAZORPAY_KEY_SECRET", ""),
			BaseURL:   strings.TrimRight(env.str("API_RAZORPAY_BASE_URL", defaultRazorpayBaseURL), "/"),
			Timeout:   env.duration("API_RAZORPAY_TIMEOUT", defaultRazorpayTimeout),
		},
		Checkout: CheckoutConfig{
			Currency:         strings.ToUpper(env.str("API_CHECKOUT_CURRENCY", defaultCurrency)),
			CODLimit:         int64(env.integer("API_CHECKOUT_COD_LIMIT", defaultCODLimit)),
			ReturnWindowDays: env.integer("API_CHECKOUT_RETURN_WINDOW_DAYS", defaultReturnWindowDays),
		},
		PubSub: PubSubConfig{
			ProjectID:        env.str("API_PUBSUB_PROJECT_ID", firebaseProject),
			OrderEventsTopic: env.str("API_PUBSUB_ORDER_EVENTS_TOPIC", ""),
		},
		Redis: RedisConfig{
			Addr:     env.str("API_REDIS_ADDR", ""),
			Password: env.str("API_REDIS_PASSWORD", ""),
			DB:       env.integer("API_REDIS_DB", 0),
		},
		RateLimits: RateLimitConfig{
			CheckoutPerMinute: env.integer("API_RATELIMIT_CHECKOUT_PER_MIN", defaultRateLimitCheckout),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(env.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:  env.str("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: env.str("API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:  issuers,
			},
		},
		Idempotency: IdempotencyConfig{
			Header: env.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    env.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
	}

	if err := resolveSecrets(ctx, &cfg, o.resolver, o.requiredSecrets); err != nil {
		return Config{}, err
	}
	if invalid := cfg.invalidFields(); len(invalid) > 0 {
		return Config{}, &ValidationError{fields: invalid}
	}
	return cfg, nil
}

func (c Config) invalidFields() []string {
	_, currencyErr := currency.ParseISO(c.Checkout.Currency)
	checks := []struct {
		field string
		bad   bool
	}{
		{"Server.Port", c.Server.Port == ""},
		{"Firebase.ProjectID", c.Firebase.ProjectID == ""},
		{"Firestore.ProjectID", c.Firestore.ProjectID == ""},
		{"Razorpay.KeyID", c.Razorpay.KeyID == ""},
		{"Razorpay.Timeout", c.Razorpay.Timeout <= 0},
		{"Checkout.Currency", currencyErr != nil},
		{"Checkout.CODLimit", c.Checkout.CODLimit <= 0},
		{"Checkout.ReturnWindowDays", c.Checkout.ReturnWindowDays <= 0},
		{"Storage.EvidenceMaxBytes", c.Storage.ReturnsBucket != "" && c.Storage.EvidenceMaxBytes <= 0},
		{"Idempotency.Header", strings.TrimSpace(c.Idempotency.Header) == ""},
		{"Idempotency.TTL", c.Idempotency.TTL <= 0},
	}
	var fields []string
	for _, check := range checks {
		if check.bad {
			fields = append(fields, check.field)
		}
	}
	return fields
}
