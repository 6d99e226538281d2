package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	cartrepo "github.com/fjod/go_cart/storefront/internal/cart/repository"
	cartservice "github.com/fjod/go_cart/storefront/internal/cart/service"
	"github.com/go-chi/chi/v5"
)

type CartAPI interface {
	Items(ctx context.Context, ownerID string) ([]domain.CartItem, error)
	AddItem(ctx context.Context, item domain.CartItem) (*domain.CartItem, error)
	DeleteItem(ctx context.Context, ownerID, itemID string) error
}

type CartHandler struct {
	cart    CartAPI
	timeout time.Duration
}

func NewCartHandler(cart CartAPI, timeout time.Duration) *CartHandler {
	return &CartHandler{
		cart:    cart,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID string  `json:"product_id"`
	Option    *string `json:"option,omitempty"`
	Quantity  int     `json:"quantity"`
}

type CartResponseDTO struct {
	Items []domain.CartItem `json:"items"`
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ownerID := getOwnerIDFromContext(r.Context())
	if ownerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if strings.TrimSpace(req.ProductID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	added, err := h.cart.AddItem(ctx, domain.CartItem{
		OwnerID:   ownerID,
		ProductID: req.ProductID,
		Option:    req.Option,
		Quantity:  req.Quantity,
	})
	if err != nil {
		handleCartError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, added)
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ownerID := getOwnerIDFromContext(r.Context())
	if ownerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	items, err := h.cart.Items(ctx, ownerID)
	if err != nil {
		handleCartError(w, err)
		return
	}
	if items == nil {
		items = []domain.CartItem{}
	}

	respondJSON(w, http.StatusOK, CartResponseDTO{Items: items})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ownerID := getOwnerIDFromContext(r.Context())
	if ownerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	itemID := chi.URLParam(r, "item_id")
	if itemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item_id is required")
		return
	}

	if err := h.cart.DeleteItem(ctx, ownerID, itemID); err != nil {
		handleCartError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func handleCartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cartservice.ErrInvalidItem):
		respondError(w, http.StatusBadRequest, "invalid_item", err.Error())
	case errors.Is(err, cartrepo.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "cart store timed out")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
