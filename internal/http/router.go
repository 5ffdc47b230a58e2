package http

import (
	"net/http"
	"time"

	"github.com/fjod/go_cart/marketplace-cart/internal/cart"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// NewRouter wires the cart API on top of reg.
func NewRouter(reg *cart.Registry, requestTimeout time.Duration) http.Handler {
	validate := validator.New(validator.WithRequiredStructEnabled())
	cartHandler := NewCartHandler(validate)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(CartMiddleware(reg, validate))

		r.Get("/", cartHandler.GetCart)
		r.Post("/items", cartHandler.AddItem)
		r.Post("/items/{id}/increment", cartHandler.Increment)
		r.Post("/items/{id}/decrement", cartHandler.Decrement)
	})

	return r
}
