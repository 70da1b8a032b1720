package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *RazorpayGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gw, err := NewRazorpayGateway(RazorpayConfig{
		KeyID:      "rzp_test_key",
		KeySecret:  "shh",
		BaseURL:    srv.URL + "/v1",
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return gw
}

func sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestNewRazorpayGatewayRequiresCredentials(t *testing.T) {
	_, err := NewRazorpayGateway(RazorpayConfig{KeySecret: "x"})
	require.Error(t, err)

	_, err = NewRazorpayGateway(RazorpayConfig{KeyID: "x"})
	require.Error(t, err)
}

func TestCreateOrderSendsAmountAndBasicAuth(t *testing.T) {
	var got struct {
		Amount   int64             `json:"amount"`
		Currency string            `json:"currency"`
		Receipt  string            `json:"receipt"`
		Notes    map[string]string `json:"notes"`
	}
	var events []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "shh", pass)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_123","entity":"order","amount":25000,"currency":"INR","receipt":"ord_1","status":"created"}`))
	}))
	t.Cleanup(srv.Close)

	gw, err := NewRazorpayGateway(RazorpayConfig{
		KeyID:      "rzp_test_key",
		KeySecret:  "shh",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})
	require.NoError(t, err)

	order, err := gw.CreateOrder(context.Background(), CreateOrderRequest{
		Amount:   25000,
		Currency: "inr",
		Receipt:  "ord_1",
		Notes:    map[string]string{"userId": "user-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, GatewayOrder{ID: "order_123", Amount: 25000, Currency: "INR", Receipt: "ord_1", Status: "created"}, order)
	assert.Equal(t, int64(25000), got.Amount)
	assert.Equal(t, "INR", got.Currency)
	assert.Equal(t, "user-1", got.Notes["userId"])
	assert.Equal(t, []string{"razorpay.order.created"}, events)
}

func TestCreateOrderClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "server error", status: http.StatusBadGateway, want: ErrGatewayUnavailable},
		{name: "throttled", status: http.StatusTooManyRequests, want: ErrGatewayUnavailable},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":{"internal_error_code":"BAD_REQUEST_ERROR","description":"nope"}}`, want: ErrGatewayRejected},
		{name: "upstream gateway error", status: http.StatusBadRequest, body: `{"error":{"internal_error_code":"GATEWAY_ERROR","description":"bank down"}}`, want: ErrGatewayUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := gw.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100, Currency: "INR"})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateOrderTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	gw, err := NewRazorpayGateway(RazorpayConfig{KeyID: "k", KeySecret: "s", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = gw.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100, Currency: "INR"})
	require.ErrorIs(t, err, ErrGatewayUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = gw.CreateOrder(ctx, CreateOrderRequest{Amount: 100, Currency: "INR"})
	require.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestCreateOrderRejectsNonPositiveAmount(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("gateway must not be called")
	})
	_, err := gw.CreateOrder(context.Background(), CreateOrderRequest{Amount: 0, Currency: "INR"})
	require.ErrorIs(t, err, ErrGatewayRejected)
}

func TestVerifySignature(t *testing.T) {
	gw, err := NewRazorpayGateway(RazorpayConfig{KeyID: "k", KeySecret: "secret"})
	require.NoError(t, err)

	valid := sign("secret", "order_1", "pay_1")

	assert.True(t, gw.VerifySignature("order_1", "pay_1", valid))
	assert.False(t, gw.VerifySignature("order_2", "pay_1", valid), "signature is bound to the gateway order id")
	assert.False(t, gw.VerifySignature("order_1", "pay_2", valid))
	assert.False(t, gw.VerifySignature("order_1", "pay_1", "not-hex"))
	assert.False(t, gw.VerifySignature("order_1", "pay_1", ""))
	assert.False(t, gw.VerifySignature("", "pay_1", valid))
}
