package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"

	"github.com/hanko-field/storefront/internal/platform/httpx"
)

var (
	// ErrSigningKeyNotFound is returned when no published key matches the token kid.
	ErrSigningKeyNotFound = errors.New("auth: signing key not found")
	// ErrKeySetUnavailable wraps transport or decoding failures while fetching the key set.
	ErrKeySetUnavailable = errors.New("auth: key set unavailable")
)

const defaultKeySetTTL = 15 * time.Minute

// Logger captures the minimal logging contract used by the auth package.
type Logger interface {
	Printf(format string, args ...any)
}

// KeySet caches the JSON Web Keys that sign fulfilment service tokens.
type KeySet struct {
	url    string
	client *http.Client
	now    func() time.Time

	mu     sync.Mutex
	keys   map[string]jose.JSONWebKey
	expiry time.Time
}

// NewKeySet builds a key set fetched lazily from url.
func NewKeySet(url string, client *http.Client, now func() time.Time) *KeySet {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if now == nil {
		now = time.Now
	}
	return &KeySet{url: url, client: client, now: now}
}

// Key returns the public key for kid, refetching once when the cache is stale or misses.
func (k *KeySet) Key(ctx context.Context, kid string) (any, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.keys) == 0 || !k.now().Before(k.expiry) {
		if err := k.refreshLocked(ctx); err != nil {
			return nil, err
		}
	} else if _, ok := k.keys[kid]; !ok {
		if err := k.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}

	jwk, ok := k.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSigningKeyNotFound, kid)
	}
	return jwk.Key, nil
}

func (k *KeySet) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrKeySetUnavailable, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrKeySetUnavailable, err)
	}
	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID != "" && jwk.Valid() {
			keys[jwk.KeyID] = jwk
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrKeySetUnavailable)
	}

	k.keys = keys
	k.expiry = k.now().Add(maxAge(resp.Header.Get("Cache-Control"), defaultKeySetTTL))
	return nil
}

func maxAge(cacheControl string, fallback time.Duration) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// ServiceIdentity describes the fulfilment system that called an internal route.
type ServiceIdentity struct {
	Subject string
	Email   string
	Issuer  string
}

type serviceIdentityContextKey struct{}

// WithServiceIdentity stores the calling service on ctx.
func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, serviceIdentityContextKey{}, identity)
}

// ServiceIdentityFromContext retrieves the caller stored by RequireServiceToken.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityContextKey{}).(*ServiceIdentity)
	return identity, ok && identity != nil
}

// ServiceTokenVerifier checks Google-signed OIDC tokens presented by fulfilment integrations.
type ServiceTokenVerifier struct {
	keys     *KeySet
	audience string
	issuers  map[string]struct{}
	logger   Logger
}

// NewServiceTokenVerifier builds a verifier for tokens minted for audience by one of issuers.
func NewServiceTokenVerifier(keys *KeySet, audience string, issuers []string, logger Logger) *ServiceTokenVerifier {
	allowed := make(map[string]struct{}, len(issuers))
	for _, issuer := range issuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			allowed[issuer] = struct{}{}
		}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ServiceTokenVerifier{keys: keys, audience: strings.TrimSpace(audience), issuers: allowed, logger: logger}
}

// RequireServiceToken rejects requests without a valid service token.
func (v *ServiceTokenVerifier) RequireServiceToken() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil || v.keys == nil || v.audience == "" {
				httpx.WriteError(r.Context(), w, httpx.NewError("verification_unavailable", "service token verification not configured", http.StatusServiceUnavailable))
				return
			}
			raw := serviceToken(r)
			if raw == "" {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "service token missing", http.StatusUnauthorized))
				return
			}

			identity, err := v.verify(r.Context(), raw)
			if err != nil {
				v.logger.Printf("auth: service token rejected: %v", err)
				if errors.Is(err, ErrKeySetUnavailable) {
					httpx.WriteError(r.Context(), w, httpx.NewError("verification_unavailable", "signing keys unavailable", http.StatusServiceUnavailable))
					return
				}
				httpx.WriteError(r.Context(), w, httpx.NewError("invalid_token", "service token verification failed", http.StatusUnauthorized))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(r.Context(), identity)))
		})
	}
}

func (v *ServiceTokenVerifier) verify(ctx context.Context, raw string) (*ServiceIdentity, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid header")
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, err
	}

	issuer, _ := claims["iss"].(string)
	if len(v.issuers) > 0 {
		if _, ok := v.issuers[issuer]; !ok {
			return nil, fmt.Errorf("auth: issuer %q not allowed", issuer)
		}
	}
	if !claims.VerifyAudience(v.audience, true) {
		return nil, fmt.Errorf("auth: audience mismatch, want %q", v.audience)
	}

	subject, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	return &ServiceIdentity{Subject: subject, Email: email, Issuer: issuer}, nil
}

func serviceToken(r *http.Request) string {
	if token, ok := extractBearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Goog-Iap-Jwt-Assertion"))
}
