package handlers

import (
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/services"
)

type addressPayload struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Landmark   string `json:"landmark,omitempty"`
}

type orderItemPayload struct {
	ID           string  `json:"id"`
	ProductID    string  `json:"productId"`
	Name         string  `json:"name"`
	Size         string  `json:"size"`
	Quantity     int     `json:"quantity"`
	Price        int64   `json:"price"`
	Subtotal     int64   `json:"subtotal"`
	Status       string  `json:"status"`
	CancelReason string  `json:"cancelReason,omitempty"`
	CancelledAt  *string `json:"cancelledAt,omitempty"`
	RefundAmount int64   `json:"refundAmount,omitempty"`
}

type orderPayload struct {
	ID                string             `json:"id"`
	UserID            string             `json:"userId"`
	Address           addressPayload     `json:"address"`
	Items             []orderItemPayload `json:"items"`
	TotalAmount       int64              `json:"totalAmount"`
	Discount          int64              `json:"discount"`
	FinalAmount       int64              `json:"finalAmount"`
	PaymentMethod     string             `json:"paymentMethod"`
	PaymentStatus     string             `json:"paymentStatus"`
	Status            string             `json:"status"`
	CouponCode        string             `json:"couponCode,omitempty"`
	RazorpayOrderID   string             `json:"razorpayOrderId,omitempty"`
	RazorpayPaymentID string             `json:"razorpayPaymentId,omitempty"`
	CreatedAt         string             `json:"createdAt"`
	UpdatedAt         string             `json:"updatedAt"`
	DeliveredAt       *string            `json:"deliveredAt,omitempty"`
}

func newOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ID:           item.ID,
			ProductID:    item.ProductID,
			Name:         item.Name,
			Size:         string(item.Size),
			Quantity:     item.Quantity,
			Price:        item.Price,
			Subtotal:     item.Subtotal,
			Status:       string(item.Status),
			CancelReason: item.CancelReason,
			CancelledAt:  formatTimePtr(item.CancelledAt),
			RefundAmount: item.RefundAmount,
		})
	}
	addr := order.Address
	return orderPayload{
		ID:     order.ID,
		UserID: order.UserID,
		Address: addressPayload{
			Name: addr.Name, Phone: addr.Phone, Line1: addr.Line1, Line2: addr.Line2, City: addr.City,
			State: addr.State, PostalCode: addr.PostalCode, Country: addr.Country, Landmark: addr.Landmark,
		},
		Items:             items,
		TotalAmount:       order.TotalAmount,
		Discount:          order.Discount,
		FinalAmount:       order.FinalAmount,
		PaymentMethod:     string(order.PaymentMethod),
		PaymentStatus:     string(order.PaymentStatus),
		Status:            string(order.Status),
		CouponCode:        order.CouponCode,
		RazorpayOrderID:   order.GatewayOrderID,
		RazorpayPaymentID: order.GatewayPaymentID,
		CreatedAt:         formatTime(order.CreatedAt),
		UpdatedAt:         formatTime(order.UpdatedAt),
		DeliveredAt:       formatTimePtr(order.DeliveredAt),
	}
}

type pricedLinePayload struct {
	CartItemID   string  `json:"cartItemId"`
	ProductID    string  `json:"productId"`
	ProductName  string  `json:"productName"`
	Size         string  `json:"size"`
	Quantity     int     `json:"quantity"`
	UnitPrice    int64   `json:"unitPrice"`
	Subtotal     int64   `json:"subtotal"`
	OfferPercent float64 `json:"offerPercent,omitempty"`
}

type ineligiblePayload struct {
	CartItemID string `json:"cartItemId"`
	ProductID  string `json:"productId"`
	Reason     string `json:"reason"`
}

func newPricedLines(lines []services.PricedLine) []pricedLinePayload {
	out := make([]pricedLinePayload, 0, len(lines))
	for _, line := range lines {
		out = append(out, pricedLinePayload{
			CartItemID:   line.CartItemID,
			ProductID:    line.ProductID,
			ProductName:  line.ProductName,
			Size:         string(line.Size),
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			Subtotal:     line.Subtotal,
			OfferPercent: line.Offer.DiscountPercent,
		})
	}
	return out
}

func newIneligible(lines []services.IneligibleLine) []ineligiblePayload {
	if len(lines) == 0 {
		return nil
	}
	out := make([]ineligiblePayload, 0, len(lines))
	for _, line := range lines {
		out = append(out, ineligiblePayload{CartItemID: line.CartItemID, ProductID: line.ProductID, Reason: string(line.Reason)})
	}
	return out
}

type returnPayload struct {
	ID           string   `json:"id"`
	OrderID      string   `json:"orderId"`
	ItemID       string   `json:"itemId"`
	UserID       string   `json:"userId"`
	Status       string   `json:"status"`
	RefundAmount int64    `json:"refundAmount"`
	Reason       string   `json:"reason,omitempty"`
	AdminNote    string   `json:"adminNote,omitempty"`
	EvidenceURLs []string `json:"evidenceUrls,omitempty"`
	RequestedAt  string   `json:"requestedAt"`
	ResolvedAt   *string  `json:"resolvedAt,omitempty"`
}

func newReturnPayload(req services.ReturnRequest) returnPayload {
	return returnPayload{
		ID:           req.ID,
		OrderID:      req.OrderID,
		ItemID:       req.ItemID,
		UserID:       req.UserID,
		Status:       string(req.Status),
		RefundAmount: req.RefundAmount,
		Reason:       req.Reason,
		AdminNote:    req.AdminNote,
		EvidenceURLs: req.EvidenceURLs,
		RequestedAt:  formatTime(req.RequestedAt),
		ResolvedAt:   formatTimePtr(req.ResolvedAt),
	}
}

type walletTransactionPayload struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Amount        int64  `json:"amount"`
	BalanceBefore int64  `json:"balanceBefore"`
	BalanceAfter  int64  `json:"balanceAfter"`
	Reason        string `json:"reason"`
	OrderID       string `json:"orderId,omitempty"`
	ReturnID      string `json:"returnId,omitempty"`
	Status        string `json:"status"`
	CreatedAt     string `json:"createdAt"`
}

func newWalletTransactionPayload(txn domain.WalletTransaction) walletTransactionPayload {
	return walletTransactionPayload{
		ID:            txn.ID,
		Type:          string(txn.Type),
		Amount:        txn.Amount,
		BalanceBefore: txn.BalanceBefore,
		BalanceAfter:  txn.BalanceAfter,
		Reason:        txn.Reason,
		OrderID:       txn.OrderID,
		ReturnID:      txn.ReturnID,
		Status:        txn.Status,
		CreatedAt:     formatTime(txn.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	value := formatTime(*t)
	return &value
}
