package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the shopper-facing API. auth must put the owner id into the request context.
func NewRouter(checkout *CheckoutHandler, cart *CartHandler, auth func(http.Handler) http.Handler, timeout time.Duration) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cart.GetCart)
			r.Post("/items", cart.AddItem)
			r.Delete("/items/{item_id}", cart.RemoveItem)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", checkout.InitiateCheckout)
			r.Get("/{checkout_id}", checkout.GetCheckout)
			r.Post("/{checkout_id}/confirmation", checkout.ConfirmCheckout)
		})
	})

	return r
}
