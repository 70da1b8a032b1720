package secrets

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel/metric/noop"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSecretClient struct {
	mu     sync.Mutex
	values map[string]string
	errors map[string]error
	calls  map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{values: map[string]string{}, errors: map[string]error{}, calls: map[string]int{}}
}

func (c *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[req.GetName()]++
	if err := c.errors[req.GetName()]; err != nil {
		return nil, err
	}
	value, ok := c.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)}}, nil
}

func (c *fakeSecretClient) Close() error { return nil }

func (c *fakeSecretClient) callCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

const razorpayResource = "projects/shop/secrets/razorpay_key_secret/versions/latest"

func newTestFetcher(t *testing.T, client *fakeSecretClient, opts ...Option) *Fetcher {
	t.Helper()
	base := []Option{withSecretManagerClient(client), WithDefaultProject("shop"), WithMeter(noop.NewMeterProvider().Meter("test")), WithFallbackFile("")}
	fetcher, err := NewFetcher(context.Background(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	t.Cleanup(func() { _ = fetcher.Close() })
	return fetcher
}

func TestResolveSecretCachesUntilTTL(t *testing.T) {
	client := newFakeSecretClient()
	client.values[razorpayResource] = "rzp-secret"
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	fetcher := newTestFetcher(t, client, WithCacheTTL(time.Minute), withClock(func() time.Time { return now }))

	for _, ref := range []string{"secret://razorpay_key_secret", "sm://razorpay_key_secret"} {
		got, err := fetcher.ResolveSecret(context.Background(), ref)
		if err != nil || got != "rzp-secret" {
			t.Fatalf("resolve %s: %q %v", ref, got, err)
		}
	}
	if calls := client.callCount(razorpayResource); calls != 1 {
		t.Fatalf("expected one remote fetch, got %d", calls)
	}

	now = now.Add(2 * time.Minute)
	client.values[razorpayResource] = "rotated"
	got, err := fetcher.ResolveSecret(context.Background(), "secret://razorpay_key_secret")
	if err != nil || got != "rotated" {
		t.Fatalf("expected rotated secret after ttl, got %q %v", got, err)
	}
}

func TestResolveSecretFallsBackWhenDenied(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".secrets.local")
	if err := os.WriteFile(path, []byte("# local dev\nsecret://razorpay_key_secret=local-secret\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	client := newFakeSecretClient()
	client.errors[razorpayResource] = status.Error(codes.PermissionDenied, "denied")
	fetcher := newTestFetcher(t, client, WithFallbackFile(path))

	got, err := fetcher.ResolveSecret(context.Background(), "secret://razorpay_key_secret")
	if err != nil || got != "local-secret" {
		t.Fatalf("expected fallback value, got %q %v", got, err)
	}
}

func TestResolveSecretSurfacesHardFailures(t *testing.T) {
	client := newFakeSecretClient()
	fetcher := newTestFetcher(t, client)

	if _, err := fetcher.ResolveSecret(context.Background(), "secret://missing"); err == nil {
		t.Fatalf("expected not found to surface")
	}
	if _, err := fetcher.ResolveSecret(context.Background(), "https://example.com/x"); err == nil {
		t.Fatalf("expected unsupported scheme to fail")
	}
}

func TestParseReference(t *testing.T) {
	ref, err := parseReference("sm://razorpay_key_secret?version=3&project=prod")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ref.secret != "razorpay_key_secret" || ref.version != "3" || ref.project != "prod" {
		t.Fatalf("unexpected reference %+v", ref)
	}
}
