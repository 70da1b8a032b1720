package firestore

import (
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

const (
	productsCollection           = "products"
	categoriesCollection         = "categories"
	cartsCollection              = "carts"
	usersCollection              = "users"
	addressesCollection          = "addresses"
	couponsCollection            = "coupons"
	couponNamesCollection        = "couponNames"
	redemptionsCollection        = "couponRedemptions"
	ordersCollection             = "orders"
	walletsCollection            = "wallets"
	walletTransactionsCollection = "walletTransactions"
	returnsCollection            = "returns"
	transactionsCollection       = "transactions"
	pendingCheckoutsCollection   = "pendingCheckouts"
)

type productDocument struct {
	Name         string         `firestore:"name"`
	CategoryID   string         `firestore:"categoryId"`
	RegularPrice int64          `firestore:"regularPrice"`
	OfferPercent float64        `firestore:"offerPercent"`
	Stock        map[string]int `firestore:"stock"`
	Blocked      bool           `firestore:"blocked"`
	Active       bool           `firestore:"active"`
	CreatedAt    time.Time      `firestore:"createdAt"`
	UpdatedAt    time.Time      `firestore:"updatedAt"`
}

func newProductDocument(p domain.Product) productDocument {
	stock := make(map[string]int, len(p.Stock))
	for size, qty := range p.Stock {
		stock[string(size)] = qty
	}
	return productDocument{
		Name:         p.Name,
		CategoryID:   p.CategoryID,
		RegularPrice: p.RegularPrice,
		OfferPercent: p.OfferPercent,
		Stock:        stock,
		Blocked:      p.Blocked,
		Active:       p.Active,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	stock := make(map[domain.Size]int, len(d.Stock))
	for size, qty := range d.Stock {
		stock[domain.Size(size)] = qty
	}
	return domain.Product{
		ID:           id,
		Name:         d.Name,
		CategoryID:   d.CategoryID,
		RegularPrice: d.RegularPrice,
		OfferPercent: d.OfferPercent,
		Stock:        stock,
		Blocked:      d.Blocked,
		Active:       d.Active,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

type categoryDocument struct {
	Name         string    `firestore:"name"`
	Active       bool      `firestore:"active"`
	OfferPercent float64   `firestore:"offerPercent"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func (d categoryDocument) toDomain(id string) domain.Category {
	return domain.Category{ID: id, Name: d.Name, Active: d.Active, OfferPercent: d.OfferPercent, UpdatedAt: d.UpdatedAt.UTC()}
}

type cartItemDocument struct {
	ID        string    `firestore:"id"`
	ProductID string    `firestore:"productId"`
	Size      string    `firestore:"size"`
	Quantity  int       `firestore:"quantity"`
	UnitPrice int64     `firestore:"unitPrice"`
	AddedAt   time.Time `firestore:"addedAt"`
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

func newCartDocument(c domain.Cart) cartDocument {
	items := make([]cartItemDocument, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, cartItemDocument{
			ID:        item.ID,
			ProductID: item.ProductID,
			Size:      string(item.Size),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			AddedAt:   item.AddedAt,
		})
	}
	return cartDocument{Items: items, UpdatedAt: c.UpdatedAt}
}

func (d cartDocument) toDomain(userID string) domain.Cart {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.CartItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Size:      domain.Size(item.Size),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			AddedAt:   item.AddedAt.UTC(),
		})
	}
	return domain.Cart{UserID: userID, Items: items, UpdatedAt: d.UpdatedAt.UTC()}
}

type addressDocument struct {
	Name       string `firestore:"name"`
	Phone      string `firestore:"phone"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
	Landmark   string `firestore:"landmark,omitempty"`
}

func newAddressDocument(a domain.Address) addressDocument {
	return addressDocument{
		Name:       a.Name,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Landmark:   a.Landmark,
	}
}

func (d addressDocument) toDomain(userID, id string) domain.Address {
	return domain.Address{
		ID:         id,
		UserID:     userID,
		Name:       d.Name,
		Phone:      d.Phone,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
		Landmark:   d.Landmark,
	}
}

type couponDocument struct {
	ID              string    `firestore:"id"`
	Name            string    `firestore:"name"`
	Status          string    `firestore:"status"`
	UsageType       string    `firestore:"usageType"`
	ActiveFrom      time.Time `firestore:"activeFrom"`
	ExpiresAt       time.Time `firestore:"expiresAt"`
	Limit           int       `firestore:"limit"`
	RedemptionCount int       `firestore:"redemptionCount"`
	Discount        int64     `firestore:"discount"`
	MinimumOrder    int64     `firestore:"minimumOrder"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func newCouponDocument(c domain.Coupon) couponDocument {
	return couponDocument{
		ID:              c.ID,
		Name:            c.Name,
		Status:          string(c.Status),
		UsageType:       string(c.UsageType),
		ActiveFrom:      c.ActiveFrom,
		ExpiresAt:       c.ExpiresAt,
		Limit:           c.Limit,
		RedemptionCount: c.RedemptionCount,
		Discount:        c.Discount,
		MinimumOrder:    c.MinimumOrder,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func (d couponDocument) toDomain(code string) domain.Coupon {
	return domain.Coupon{
		ID:              d.ID,
		Code:            code,
		Name:            d.Name,
		Status:          domain.CouponStatus(d.Status),
		UsageType:       domain.CouponUsage(d.UsageType),
		ActiveFrom:      d.ActiveFrom.UTC(),
		ExpiresAt:       d.ExpiresAt.UTC(),
		Limit:           d.Limit,
		RedemptionCount: d.RedemptionCount,
		Discount:        d.Discount,
		MinimumOrder:    d.MinimumOrder,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
}

type couponNameDocument struct {
	Code string `firestore:"code"`
}

type redemptionDocument struct {
	CouponID   string    `firestore:"couponId"`
	UserID     string    `firestore:"userId"`
	OrderID    string    `firestore:"orderId"`
	RedeemedAt time.Time `firestore:"redeemedAt"`
}

func (d redemptionDocument) toDomain(id string) domain.CouponRedemption {
	return domain.CouponRedemption{ID: id, CouponID: d.CouponID, UserID: d.UserID, OrderID: d.OrderID, RedeemedAt: d.RedeemedAt.UTC()}
}

type orderItemDocument struct {
	ID            string     `firestore:"id"`
	ProductID     string     `firestore:"productId"`
	Name          string     `firestore:"name"`
	Size          string     `firestore:"size"`
	Quantity      int        `firestore:"quantity"`
	Price         int64      `firestore:"price"`
	Subtotal      int64      `firestore:"subtotal"`
	DiscountShare int64      `firestore:"discountShare"`
	Status        string     `firestore:"status"`
	CancelReason  string     `firestore:"cancelReason,omitempty"`
	CancelledAt   *time.Time `firestore:"cancelledAt,omitempty"`
	RefundAmount  int64      `firestore:"refundAmount"`
}

type orderDocument struct {
	UserID           string              `firestore:"userId"`
	Address          addressDocument     `firestore:"address"`
	AddressID        string              `firestore:"addressId"`
	Items            []orderItemDocument `firestore:"items"`
	ItemIDs          []string            `firestore:"itemIds"`
	TotalAmount      int64               `firestore:"totalAmount"`
	Discount         int64               `firestore:"discount"`
	FinalAmount      int64               `firestore:"finalAmount"`
	PaymentMethod    string              `firestore:"paymentMethod"`
	PaymentStatus    string              `firestore:"paymentStatus"`
	Status           string              `firestore:"status"`
	CouponID         string              `firestore:"couponId,omitempty"`
	CouponCode       string              `firestore:"couponCode,omitempty"`
	GatewayOrderID   string              `firestore:"gatewayOrderId,omitempty"`
	GatewayPaymentID string              `firestore:"gatewayPaymentId,omitempty"`
	CreatedAt        time.Time           `firestore:"createdAt"`
	UpdatedAt        time.Time           `firestore:"updatedAt"`
	DeliveredAt      *time.Time          `firestore:"deliveredAt,omitempty"`
}

func newOrderDocument(o domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(o.Items))
	itemIDs := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		itemIDs = append(itemIDs, item.ID)
		items = append(items, orderItemDocument{
			ID:            item.ID,
			ProductID:     item.ProductID,
			Name:          item.Name,
			Size:          string(item.Size),
			Quantity:      item.Quantity,
			Price:         item.Price,
			Subtotal:      item.Subtotal,
			DiscountShare: item.DiscountShare,
			Status:        string(item.Status),
			CancelReason:  item.CancelReason,
			CancelledAt:   item.CancelledAt,
			RefundAmount:  item.RefundAmount,
		})
	}
	return orderDocument{
		UserID:           o.UserID,
		Address:          newAddressDocument(o.Address),
		AddressID:        o.Address.ID,
		Items:            items,
		ItemIDs:          itemIDs,
		TotalAmount:      o.TotalAmount,
		Discount:         o.Discount,
		FinalAmount:      o.FinalAmount,
		PaymentMethod:    string(o.PaymentMethod),
		PaymentStatus:    string(o.PaymentStatus),
		Status:           string(o.Status),
		CouponID:         o.CouponID,
		CouponCode:       o.CouponCode,
		GatewayOrderID:   o.GatewayOrderID,
		GatewayPaymentID: o.GatewayPaymentID,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
		DeliveredAt:      o.DeliveredAt,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ID:            item.ID,
			ProductID:     item.ProductID,
			Name:          item.Name,
			Size:          domain.Size(item.Size),
			Quantity:      item.Quantity,
			Price:         item.Price,
			Subtotal:      item.Subtotal,
			DiscountShare: item.DiscountShare,
			Status:        domain.ItemStatus(item.Status),
			CancelReason:  item.CancelReason,
			CancelledAt:   utcPtr(item.CancelledAt),
			RefundAmount:  item.RefundAmount,
		})
	}
	return domain.Order{
		ID:               id,
		UserID:           d.UserID,
		Address:          d.Address.toDomain(d.UserID, d.AddressID),
		Items:            items,
		TotalAmount:      d.TotalAmount,
		Discount:         d.Discount,
		FinalAmount:      d.FinalAmount,
		PaymentMethod:    domain.PaymentMethod(d.PaymentMethod),
		PaymentStatus:    domain.PaymentStatus(d.PaymentStatus),
		Status:           domain.OrderStatus(d.Status),
		CouponID:         d.CouponID,
		CouponCode:       d.CouponCode,
		GatewayOrderID:   d.GatewayOrderID,
		GatewayPaymentID: d.GatewayPaymentID,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
		DeliveredAt:      utcPtr(d.DeliveredAt),
	}
}

type walletDocument struct {
	Balance          int64      `firestore:"balance"`
	TotalCredits     int64      `firestore:"totalCredits"`
	TotalDebits      int64      `firestore:"totalDebits"`
	TransactionCount int        `firestore:"transactionCount"`
	LastCreditAt     *time.Time `firestore:"lastCreditAt,omitempty"`
	LastDebitAt      *time.Time `firestore:"lastDebitAt,omitempty"`
	CreatedAt        time.Time  `firestore:"createdAt"`
	UpdatedAt        time.Time  `firestore:"updatedAt"`
}

func newWalletDocument(w domain.Wallet) walletDocument {
	return walletDocument{
		Balance:          w.Balance,
		TotalCredits:     w.TotalCredits,
		TotalDebits:      w.TotalDebits,
		TransactionCount: w.TransactionCount,
		LastCreditAt:     w.LastCreditAt,
		LastDebitAt:      w.LastDebitAt,
		CreatedAt:        w.CreatedAt,
		UpdatedAt:        w.UpdatedAt,
	}
}

func (d walletDocument) toDomain(userID string) domain.Wallet {
	return domain.Wallet{
		UserID:           userID,
		Balance:          d.Balance,
		TotalCredits:     d.TotalCredits,
		TotalDebits:      d.TotalDebits,
		TransactionCount: d.TransactionCount,
		LastCreditAt:     utcPtr(d.LastCreditAt),
		LastDebitAt:      utcPtr(d.LastDebitAt),
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
}

type walletTransactionDocument struct {
	UserID        string    `firestore:"userId"`
	Type          string    `firestore:"type"`
	Amount        int64     `firestore:"amount"`
	BalanceBefore int64     `firestore:"balanceBefore"`
	BalanceAfter  int64     `firestore:"balanceAfter"`
	Reason        string    `firestore:"reason"`
	OrderID       string    `firestore:"orderId,omitempty"`
	ReturnID      string    `firestore:"returnId,omitempty"`
	Status        string    `firestore:"status"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

func newWalletTransactionDocument(t domain.WalletTransaction) walletTransactionDocument {
	return walletTransactionDocument{
		UserID:        t.UserID,
		Type:          string(t.Type),
		Amount:        t.Amount,
		BalanceBefore: t.BalanceBefore,
		BalanceAfter:  t.BalanceAfter,
		Reason:        t.Reason,
		OrderID:       t.OrderID,
		ReturnID:      t.ReturnID,
		Status:        t.Status,
		CreatedAt:     t.CreatedAt,
	}
}

func (d walletTransactionDocument) toDomain(id string) domain.WalletTransaction {
	return domain.WalletTransaction{
		ID:            id,
		UserID:        d.UserID,
		Type:          domain.WalletTransactionType(d.Type),
		Amount:        d.Amount,
		BalanceBefore: d.BalanceBefore,
		BalanceAfter:  d.BalanceAfter,
		Reason:        d.Reason,
		OrderID:       d.OrderID,
		ReturnID:      d.ReturnID,
		Status:        d.Status,
		CreatedAt:     d.CreatedAt.UTC(),
	}
}

type returnDocument struct {
	OrderID      string     `firestore:"orderId"`
	ItemID       string     `firestore:"itemId"`
	UserID       string     `firestore:"userId"`
	Status       string     `firestore:"status"`
	RefundAmount int64      `firestore:"refundAmount"`
	Reason       string     `firestore:"reason"`
	AdminNote    string     `firestore:"adminNote,omitempty"`
	EvidenceURLs []string   `firestore:"evidenceUrls,omitempty"`
	RequestedAt  time.Time  `firestore:"requestedAt"`
	ResolvedAt   *time.Time `firestore:"resolvedAt,omitempty"`
}

func newReturnDocument(r domain.ReturnRequest) returnDocument {
	return returnDocument{
		OrderID:      r.OrderID,
		ItemID:       r.ItemID,
		UserID:       r.UserID,
		Status:       string(r.Status),
		RefundAmount: r.RefundAmount,
		Reason:       r.Reason,
		AdminNote:    r.AdminNote,
		EvidenceURLs: append([]string(nil), r.EvidenceURLs...),
		RequestedAt:  r.RequestedAt,
		ResolvedAt:   r.ResolvedAt,
	}
}

func (d returnDocument) toDomain(id string) domain.ReturnRequest {
	return domain.ReturnRequest{
		ID:           id,
		OrderID:      d.OrderID,
		ItemID:       d.ItemID,
		UserID:       d.UserID,
		Status:       domain.ReturnStatus(d.Status),
		RefundAmount: d.RefundAmount,
		Reason:       d.Reason,
		AdminNote:    d.AdminNote,
		EvidenceURLs: append([]string(nil), d.EvidenceURLs...),
		RequestedAt:  d.RequestedAt.UTC(),
		ResolvedAt:   utcPtr(d.ResolvedAt),
	}
}

type paymentTransactionDocument struct {
	UserID           string    `firestore:"userId"`
	OrderID          string    `firestore:"orderId"`
	Type             string    `firestore:"type"`
	Method           string    `firestore:"method"`
	Amount           int64     `firestore:"amount"`
	Status           string    `firestore:"status"`
	Reason           string    `firestore:"reason,omitempty"`
	GatewayOrderID   string    `firestore:"gatewayOrderId,omitempty"`
	GatewayPaymentID string    `firestore:"gatewayPaymentId,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt"`
}

func newPaymentTransactionDocument(t domain.PaymentTransaction) paymentTransactionDocument {
	return paymentTransactionDocument{
		UserID:           t.UserID,
		OrderID:          t.OrderID,
		Type:             string(t.Type),
		Method:           string(t.Method),
		Amount:           t.Amount,
		Status:           t.Status,
		Reason:           t.Reason,
		GatewayOrderID:   t.GatewayOrderID,
		GatewayPaymentID: t.GatewayPaymentID,
		CreatedAt:        t.CreatedAt,
	}
}

type pendingCheckoutDocument struct {
	UserID     string    `firestore:"userId"`
	AddressID  string    `firestore:"addressId"`
	CouponCode string    `firestore:"couponCode,omitempty"`
	Amount     int64     `firestore:"amount"`
	Currency   string    `firestore:"currency"`
	Status     string    `firestore:"status"`
	OrderID    string    `firestore:"orderId,omitempty"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func newPendingCheckoutDocument(c domain.PendingCheckout) pendingCheckoutDocument {
	return pendingCheckoutDocument{
		UserID:     c.UserID,
		AddressID:  c.AddressID,
		CouponCode: c.CouponCode,
		Amount:     c.Amount,
		Currency:   c.Currency,
		Status:     string(c.Status),
		OrderID:    c.OrderID,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func (d pendingCheckoutDocument) toDomain(gatewayOrderID string) domain.PendingCheckout {
	return domain.PendingCheckout{
		GatewayOrderID: gatewayOrderID,
		UserID:         d.UserID,
		AddressID:      d.AddressID,
		CouponCode:     d.CouponCode,
		Amount:         d.Amount,
		Currency:       d.Currency,
		Status:         domain.PendingCheckoutStatus(d.Status),
		OrderID:        d.OrderID,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
