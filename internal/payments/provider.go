package payments

import (
	"context"
	"errors"
)

var (
	// ErrGatewayUnavailable indicates the gateway could not be reached or answered with a server error.
	ErrGatewayUnavailable = errors.New("payments: gateway unavailable")
	// ErrGatewayRejected indicates the gateway refused the request.
	ErrGatewayRejected = errors.New("payments: gateway rejected request")
)

// CreateOrderRequest asks the gateway for an order the client can pay against. Amount is in minor units.
type CreateOrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// GatewayOrder is the gateway's view of a payable order.
type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

// Gateway is the prepaid payment gateway used by checkout.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error)
	// VerifySignature checks the signature the gateway attached to a payment callback.
	VerifySignature(orderID, paymentID, signature string) bool
	// KeyID is the public key the browser checkout widget is initialised with.
	KeyID() string
}
