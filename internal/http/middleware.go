package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjod/go_cart/marketplace-cart/internal/cart"
	"github.com/fjod/go_cart/marketplace-cart/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const CartIDHeader = "X-Cart-ID"

// CartMiddleware binds the session's cart to the request context.
// Requests without a cart id get a fresh one, echoed back in the response header.
// A read without a cart id is answered with the empty cart and opens nothing.
func CartMiddleware(reg *cart.Registry, validate *validator.Validate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cartID := r.Header.Get(CartIDHeader)
			if cartID == "" {
				cartID = uuid.NewString()
				if r.Method == http.MethodGet || r.Method == http.MethodHead {
					w.Header().Set(CartIDHeader, cartID)
					respondJSON(w, http.StatusOK, CartResponse{Products: []domain.Item{}})
					return
				}
			} else if err := validate.Var(cartID, "uuid"); err != nil {
				respondError(w, http.StatusBadRequest, "invalid_cart_id", CartIDHeader+" must be a uuid")
				return
			}
			w.Header().Set(CartIDHeader, cartID)

			store, err := reg.Open(r.Context(), cartID)
			if err != nil {
				if errors.Is(err, cart.ErrRegistryClosed) {
					respondError(w, http.StatusServiceUnavailable, "shutting_down", "service is shutting down")
					return
				}
				if errors.Is(err, cart.ErrLoadFailed) {
					slog.WarnContext(r.Context(), "failed to load cart", "cart_id", cartID, "error", err)
					respondError(w, http.StatusServiceUnavailable, "cart_unavailable", "cart storage is unavailable, retry later")
					return
				}
				slog.ErrorContext(r.Context(), "failed to open cart", "cart_id", cartID, "error", err)
				respondError(w, http.StatusInternalServerError, "cart_unavailable", "cart could not be opened")
				return
			}

			next.ServeHTTP(w, r.WithContext(cart.NewContext(r.Context(), store)))
		})
	}
}
