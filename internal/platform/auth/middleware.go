package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/hanko-field/storefront/internal/platform/httpx"
)

const (
	defaultRoleClaim = "role"
	verifyTimeout    = 5 * time.Second
)

// ErrTokenExpired signals that the presented Firebase ID token has expired.
var ErrTokenExpired = errors.New("auth: firebase id token expired")

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns Firebase bearer tokens into request identities.
type Authenticator struct {
	verifier  TokenVerifier
	roleClaim string
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithRoleClaim overrides the custom claim carrying the operator role.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// NewAuthenticator constructs a Firebase Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:  verifier,
		roleClaim: defaultRoleClaim,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireUser admits any shopper holding a valid ID token.
func (a *Authenticator) RequireUser() func(http.Handler) http.Handler {
	return a.require(false)
}

// RequireAdmin admits only identities carrying the admin role.
func (a *Authenticator) RequireAdmin() func(http.Handler) http.Handler {
	return a.require(true)
}

func (a *Authenticator) require(admin bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, fail := a.authenticate(r)
			if fail == nil && admin && !identity.IsAdmin() {
				fail = errInsufficientRole
			}
			if fail != nil {
				httpx.WriteError(r.Context(), w, httpx.NewError(fail.code, fail.message, fail.status))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// authFailure is the response for a rejected request.
type authFailure struct {
	status  int
	code    string
	message string
}

var (
	errNoBearer         = &authFailure{http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid"}
	errNoVerifier       = &authFailure{http.StatusServiceUnavailable, "unavailable", "authorization service unavailable"}
	errTokenExpired     = &authFailure{http.StatusUnauthorized, "token_expired", "firebase id token expired"}
	errTokenInvalid     = &authFailure{http.StatusUnauthorized, "invalid_token", "firebase id token verification failed"}
	errInsufficientRole = &authFailure{http.StatusForbidden, "insufficient_role", "identity does not have required role"}
)

func (a *Authenticator) authenticate(r *http.Request) (*Identity, *authFailure) {
	raw, ok := extractBearerToken(r.Header.Get("Authorization"))
	switch {
	case !ok:
		return nil, errNoBearer
	case a == nil || a.verifier == nil:
		return nil, errNoVerifier
	}

	ctx, cancel := context.WithTimeout(r.Context(), verifyTimeout)
	defer cancel()
	token, err := a.verifier.VerifyIDToken(ctx, raw)
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenExpired) || firebaseauth.IsIDTokenExpired(err):
		return nil, errTokenExpired
	default:
		return nil, errTokenInvalid
	}

	roles := rolesFromClaim(token.Claims[a.roleClaim])
	if len(roles) == 0 {
		roles = []string{RoleCustomer}
	}
	email, _ := token.Claims["email"].(string)
	return &Identity{UID: token.UID, Email: strings.TrimSpace(email), Roles: roles}, nil
}

// rolesFromClaim accepts "admin", ["admin"] or {"admin": true}.
func rolesFromClaim(raw any) []string {
	var candidates []string
	switch v := raw.(type) {
	case string:
		candidates = []string{v}
	case []string:
		candidates = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	case map[string]any:
		for key, value := range v {
			if enabled, ok := value.(bool); ok && enabled {
				candidates = append(candidates, key)
			}
		}
	}

	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		role := normaliseRole(candidate)
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
