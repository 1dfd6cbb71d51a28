package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/orderbot/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса orderbot.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.identity.Middleware)

			r.Post("/chat", h.Chat)
			r.Get("/ws", h.ChatWS)
		})

		r.Get("/orders/{id}", h.GetOrder)
		r.Get("/orders/{id}/history", h.GetOrderHistory)
		r.Get("/bookings/{id}", h.GetBooking)
		r.Get("/bookings/{id}/history", h.GetBookingHistory)
		r.Get("/users/{userID}/orders", h.GetUserOrders)
		r.Get("/users/{userID}/bookings", h.GetUserBookings)
	})

	if h.debug {
		r.Get("/_sessions", h.GetSessions)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
