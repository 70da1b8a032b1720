package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

const testAudience = "https://storefront.example.com"

type keyServer struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	requests atomic.Int32
}

func newKeyServer(t *testing.T) *keyServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ks := &keyServer{key: key}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "fulfilment", Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}
	ks.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ks.requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(ks.server.Close)
	return ks
}

func (ks *keyServer) sign(t *testing.T, mutate func(jwt.MapClaims)) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"aud":   testAudience,
		"iss":   "https://accounts.google.com",
		"sub":   "1234567890",
		"email": "courier-sync@example.iam.gserviceaccount.com",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "fulfilment"
	signed, err := token.SignedString(ks.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func runServiceRequest(v *ServiceTokenVerifier, header, value string) (*httptest.ResponseRecorder, *ServiceIdentity) {
	var seen *ServiceIdentity
	handler := v.RequireServiceToken()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ServiceIdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/internal/orders/ord_1/status", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, seen
}

func TestServiceTokenAcceptsBearerAndIAPHeaders(t *testing.T) {
	ks := newKeyServer(t)
	verifier := NewServiceTokenVerifier(NewKeySet(ks.server.URL, nil, nil), testAudience, []string{"https://accounts.google.com"}, noopLogger{})
	token := ks.sign(t, nil)

	rr, identity := runServiceRequest(verifier, "Authorization", "Bearer "+token)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if identity == nil || identity.Email != "courier-sync@example.iam.gserviceaccount.com" {
		t.Fatalf("unexpected identity %+v", identity)
	}

	rr, _ = runServiceRequest(verifier, "X-Goog-Iap-Jwt-Assertion", token)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected IAP header to be accepted, got %d", rr.Code)
	}
	if n := ks.requests.Load(); n != 1 {
		t.Fatalf("expected keys to be fetched once, got %d", n)
	}
}

func TestServiceTokenRejections(t *testing.T) {
	ks := newKeyServer(t)
	verifier := NewServiceTokenVerifier(NewKeySet(ks.server.URL, nil, nil), testAudience, []string{"https://accounts.google.com"}, noopLogger{})

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{name: "missing", status: http.StatusUnauthorized},
		{name: "wrong audience", token: ks.sign(t, func(c jwt.MapClaims) { c["aud"] = "https://other.example.com" }), status: http.StatusUnauthorized},
		{name: "wrong issuer", token: ks.sign(t, func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }), status: http.StatusUnauthorized},
		{name: "expired", token: ks.sign(t, func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Minute).Unix() }), status: http.StatusUnauthorized},
		{name: "garbage", token: "not-a-jwt", status: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			header := ""
			if tc.token != "" {
				header = "Authorization"
			}
			rr, identity := runServiceRequest(verifier, header, "Bearer "+tc.token)
			if rr.Code != tc.status || identity != nil {
				t.Fatalf("expected %d without identity, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestServiceTokenKeySetUnavailable(t *testing.T) {
	ks := newKeyServer(t)
	token := ks.sign(t, nil)
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(down.Close)

	verifier := NewServiceTokenVerifier(NewKeySet(down.URL, nil, nil), testAudience, nil, noopLogger{})
	rr, _ := runServiceRequest(verifier, "Authorization", "Bearer "+token)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	unconfigured := NewServiceTokenVerifier(NewKeySet(ks.server.URL, nil, nil), "", nil, noopLogger{})
	rr, _ = runServiceRequest(unconfigured, "Authorization", "Bearer "+token)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without audience, got %d", rr.Code)
	}
}

func TestMaxAge(t *testing.T) {
	if got := maxAge("public, max-age=120, must-revalidate", time.Minute); got != 2*time.Minute {
		t.Fatalf("expected 2m, got %s", got)
	}
	if got := maxAge("no-store", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
}
