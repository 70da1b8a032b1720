package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	rzperrors "github.com/razorpay/razorpay-go/errors"
	rzputils "github.com/razorpay/razorpay-go/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultRazorpayBaseURL = "https://api.razorpay.com"
	defaultRazorpayTimeout = 10 * time.Second
	maxDrainedErrorBody    = 4 << 10
)

// RazorpayLogger defines the logging contract for Razorpay operations.
type RazorpayLogger func(ctx context.Context, event string, fields map[string]any)

// RazorpayConfig configures the RazorpayGateway. BaseURL is the API host without the version
// segment; the SDK appends /v1.
type RazorpayConfig struct {
	KeyID      string
	KeySecret  string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     RazorpayLogger
}

// RazorpayGateway implements Gateway on the Razorpay Go SDK.
type RazorpayGateway struct {
	keyID  string
	secret string
	client *razorpay.Client
	logger RazorpayLogger
}

var _ Gateway = (*RazorpayGateway)(nil)

// NewRazorpayGateway constructs a gateway. Outbound requests are traced and bounded by cfg.Timeout.
func NewRazorpayGateway(cfg RazorpayConfig) (*RazorpayGateway, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	secret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" {
		return nil, errors.New("razorpay: key id is required")
	}
	if secret == "" {
		return nil, errors.New("razorpay: key secret is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1")
	if baseURL == "" {
		baseURL = defaultRazorpayBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRazorpayTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	// The SDK keeps one request settings value per client, shared by every resource.
	client := razorpay.NewClient(keyID, secret)
	client.Order.Request.HTTPClient = guardStatus(httpClient)
	client.Order.Request.BaseURL = baseURL

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &RazorpayGateway{
		keyID:  keyID,
		secret: secret,
		client: client,
		logger: logger,
	}, nil
}

// KeyID returns the public key id.
func (g *RazorpayGateway) KeyID() string {
	if g == nil {
		return ""
	}
	return g.keyID
}

type orderResult struct {
	body map[string]interface{}
	err  error
}

// CreateOrder registers a payable order with Razorpay. The SDK call is not context aware, so ctx
// cancellation abandons the call and the HTTP client timeout reclaims it.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error) {
	if g == nil {
		return GatewayOrder{}, errors.New("razorpay: gateway is nil")
	}
	if req.Amount <= 0 {
		return GatewayOrder{}, fmt.Errorf("%w: amount must be positive", ErrGatewayRejected)
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return GatewayOrder{}, fmt.Errorf("%w: currency is required", ErrGatewayRejected)
	}
	if err := ctx.Err(); err != nil {
		return GatewayOrder{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	payload := map[string]interface{}{
		"amount":   req.Amount,
		"currency": currency,
	}
	if req.Receipt != "" {
		payload["receipt"] = req.Receipt
	}
	if len(req.Notes) > 0 {
		payload["notes"] = req.Notes
	}

	start := time.Now()
	done := make(chan orderResult, 1)
	go func() {
		body, err := g.client.Order.Create(payload, nil)
		done <- orderResult{body: body, err: err}
	}()

	var res orderResult
	select {
	case <-ctx.Done():
		g.logger(ctx, "razorpay.order.abandoned", map[string]any{"receipt": req.Receipt, "error": ctx.Err().Error()})
		return GatewayOrder{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, ctx.Err())
	case res = <-done:
	}

	fields := map[string]any{
		"receipt":    req.Receipt,
		"durationMs": time.Since(start).Milliseconds(),
	}
	if res.err != nil {
		event, err := classifyRazorpayError(res.err)
		fields["error"] = res.err.Error()
		g.logger(ctx, event, fields)
		return GatewayOrder{}, err
	}

	id := stringField(res.body, "id")
	if id == "" {
		return GatewayOrder{}, fmt.Errorf("%w: response missing order id", ErrGatewayUnavailable)
	}
	fields["gatewayOrderId"] = id
	g.logger(ctx, "razorpay.order.created", fields)

	amount, _ := res.body["amount"].(float64)
	return GatewayOrder{
		ID:       id,
		Amount:   int64(amount),
		Currency: stringField(res.body, "currency"),
		Receipt:  stringField(res.body, "receipt"),
		Status:   stringField(res.body, "status"),
	}, nil
}

// VerifySignature checks the hex HMAC-SHA256 of "orderID|paymentID" keyed with the key secret.
func (g *RazorpayGateway) VerifySignature(orderID, paymentID, signature string) bool {
	if g == nil {
		return false
	}
	orderID = strings.TrimSpace(orderID)
	paymentID = strings.TrimSpace(paymentID)
	signature = strings.ToLower(strings.TrimSpace(signature))
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	return rzputils.VerifyPaymentSignature(map[string]interface{}{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
	}, signature, g.secret)
}

// classifyRazorpayError maps SDK and transport failures onto the gateway sentinels.
func classifyRazorpayError(err error) (string, error) {
	var (
		badRequest *rzperrors.BadRequestError
		status     *statusError
	)
	switch {
	case errors.As(err, &badRequest):
		return "razorpay.order.rejected", fmt.Errorf("%w: %s", ErrGatewayRejected, badRequest.Message)
	case errors.As(err, &status):
		return "razorpay.order.unavailable", fmt.Errorf("%w: status %d", ErrGatewayUnavailable, status.code)
	default:
		// Server and gateway errors reported by Razorpay, timeouts and connection failures.
		return "razorpay.order.error", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
}

// statusError reports a throttled or failed response before the SDK decodes it. The SDK treats any
// non-2xx body without an error code as a bad request, which would hide outages.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("razorpay: status %d", e.code)
}

type statusGuard struct {
	next http.RoundTripper
}

func (g statusGuard) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := g.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainedErrorBody))
		_ = resp.Body.Close()
		return nil, &statusError{code: resp.StatusCode}
	}
	return resp, nil
}

func guardStatus(client *http.Client) *http.Client {
	guarded := *client
	next := guarded.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	guarded.Transport = statusGuard{next: next}
	return &guarded
}

func stringField(body map[string]interface{}, key string) string {
	v, _ := body[key].(string)
	return v
}
