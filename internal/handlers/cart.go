package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// CartHandlers exposes the shopper's cart.
type CartHandlers struct {
	carts services.CartService
}

// NewCartHandlers constructs cart handlers.
func NewCartHandlers(carts services.CartService) *CartHandlers {
	return &CartHandlers{carts: carts}
}

// Routes registers cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	r.Get("/", h.getCart)
	r.Post("/items", h.addItem)
	r.Delete("/items/{itemId}", h.removeItem)
}

type addCartItemRequest struct {
	ProductID string `json:"productId" validate:"required,max=128"`
	Size      string `json:"size" validate:"required,size"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=5"`
}

type cartResponse struct {
	UserID     string              `json:"userId"`
	Items      []pricedLinePayload `json:"items"`
	Ineligible []ineligiblePayload `json:"unavailableItems,omitempty"`
	Total      int64               `json:"total"`
	UpdatedAt  string              `json:"updatedAt,omitempty"`
}

func newCartResponse(view services.CartView) cartResponse {
	return cartResponse{
		UserID:     view.Cart.UserID,
		Items:      newPricedLines(view.Lines),
		Ineligible: newIneligible(view.Ineligible),
		Total:      view.Total,
		UpdatedAt:  formatTime(view.Cart.UpdatedAt),
	}
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	view, err := h.carts.GetCart(r.Context(), actor)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newCartResponse(view))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req addCartItemRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	view, err := h.carts.AddItem(r.Context(), actor, services.AddCartItemCommand{
		ProductID: strings.TrimSpace(req.ProductID),
		Size:      domain.Size(req.Size),
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newCartResponse(view))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	itemID, ok := pathParam(w, r, chi.URLParam(r, "itemId"), "itemId")
	if !ok {
		return
	}
	view, err := h.carts.RemoveItem(r.Context(), actor, itemID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newCartResponse(view))
}
