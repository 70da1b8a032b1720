package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/repositories/memory"
)

var fixtureNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequenceIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%04d", n.Add(1))
	}
}

// stubGateway accepts signatures of the form "sig:<orderID>|<paymentID>".
type stubGateway struct {
	mu        sync.Mutex
	createErr error
	created   []payments.CreateOrderRequest
	next      int
}

func (g *stubGateway) CreateOrder(_ context.Context, req payments.CreateOrderRequest) (payments.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return payments.GatewayOrder{}, g.createErr
	}
	g.next++
	g.created = append(g.created, req)
	return payments.GatewayOrder{
		ID:       fmt.Sprintf("order_gw_%d", g.next),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *stubGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return signature == goodSignature(orderID, paymentID)
}

func (g *stubGateway) KeyID() string { return "rzp_test" }

func goodSignature(orderID, paymentID string) string {
	return "sig:" + orderID + "|" + paymentID
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store   *memory.Store
	gateway *stubGateway
	events  *recordingPublisher
	orders  *orderService
}

// newFixture seeds a tee (100) and a hoodie (200) with ten units of M each, an active category
// and an address for user-1.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.SeedCategory(domain.Category{ID: "cat-apparel", Name: "Apparel", Active: true})
	store.SeedProduct(domain.Product{
		ID:           "p-tee",
		Name:         "Tee",
		CategoryID:   "cat-apparel",
		RegularPrice: 100,
		Stock:        map[domain.Size]int{domain.SizeM: 10},
		Active:       true,
	})
	store.SeedProduct(domain.Product{
		ID:           "p-hoodie",
		Name:         "Hoodie",
		CategoryID:   "cat-apparel",
		RegularPrice: 200,
		Stock:        map[domain.Size]int{domain.SizeM: 10},
		Active:       true,
	})
	seedUser(store, "user-1")

	gateway := &stubGateway{}
	events := &recordingPublisher{}
	svc, err := newOrderService(OrderServiceDeps{
		Store:       store,
		Gateway:     gateway,
		Events:      events,
		Clock:       fixedClock(fixtureNow),
		IDGenerator: sequenceIDs(),
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return &fixture{store: store, gateway: gateway, events: events, orders: svc}
}

func seedUser(store *memory.Store, userID string) {
	store.SeedAddress(domain.Address{ID: "addr-1", UserID: userID, Name: "Asha", Line1: "1 MG Road", City: "Pune", PostalCode: "411001", Country: "IN"})
}

func seedCart(store *memory.Store, userID string, items ...domain.CartItem) {
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = fmt.Sprintf("cit-%d", i+1)
		}
		if items[i].Size == "" {
			items[i].Size = domain.SizeM
		}
	}
	store.SeedCart(domain.Cart{UserID: userID, Items: items})
}

func line(productID string, qty int, price int64) domain.CartItem {
	return domain.CartItem{ProductID: productID, Quantity: qty, UnitPrice: price}
}

func stockOf(t *testing.T, store *memory.Store, productID string) int {
	t.Helper()
	product, ok := store.Product(productID)
	if !ok {
		t.Fatalf("product %s missing", productID)
	}
	return product.Available(domain.SizeM)
}

func balanceOf(store *memory.Store, userID string) int64 {
	wallet, _ := store.Wallet(userID)
	return wallet.Balance
}

var user1 = Actor{UserID: "user-1"}

var admin = Actor{UserID: "admin-1", IsAdmin: true}
