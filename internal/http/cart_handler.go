package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fjod/go_cart/marketplace-cart/internal/cart"
	"github.com/fjod/go_cart/marketplace-cart/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type CartHandler struct {
	validate *validator.Validate
}

func NewCartHandler(validate *validator.Validate) *CartHandler {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &CartHandler{validate: validate}
}

type CartResponse struct {
	Products []domain.Item `json:"products"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	store, ok := storeFromRequest(w, r)
	if !ok {
		return
	}

	respondCart(w, store)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	store, ok := storeFromRequest(w, r)
	if !ok {
		return
	}

	var req domain.ItemDetails
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondErrorDetails(w, http.StatusBadRequest, "invalid_item", "item is not valid", err.Error())
		return
	}

	store.AddToCart(req)
	respondCart(w, store)
}

func (h *CartHandler) Increment(w http.ResponseWriter, r *http.Request) {
	store, ok := storeFromRequest(w, r)
	if !ok {
		return
	}

	store.Increment(chi.URLParam(r, "id"))
	respondCart(w, store)
}

func (h *CartHandler) Decrement(w http.ResponseWriter, r *http.Request) {
	store, ok := storeFromRequest(w, r)
	if !ok {
		return
	}

	store.Decrement(chi.URLParam(r, "id"))
	respondCart(w, store)
}

func storeFromRequest(w http.ResponseWriter, r *http.Request) (*cart.Store, bool) {
	store, ok := cart.FromContext(r.Context())
	if !ok {
		slog.ErrorContext(r.Context(), "handler reached without a cart", "error", cart.ErrNoProvider)
		respondError(w, http.StatusInternalServerError, "cart_unavailable", cart.ErrNoProvider.Error())
		return nil, false
	}
	return store, true
}

func respondCart(w http.ResponseWriter, store *cart.Store) {
	respondJSON(w, http.StatusOK, CartResponse{Products: store.Products()})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondErrorDetails(w, status, code, message, "")
}

func respondErrorDetails(w http.ResponseWriter, status int, code, message, details string) {
	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
