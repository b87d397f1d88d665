package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler, hub *Hub, corsOrigins []string) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/otc", func(r chi.Router) {
		r.Post("/set-price", handler.SetPrice)
		r.Get("/listings", handler.Listings)
	})

	r.Route("/offramp", func(r chi.Router) {
		r.Post("/orders", handler.CreateOrder)
		r.Get("/orders", handler.ListOrders)
		r.Get("/orders/{orderId}", handler.GetOrder)
		r.Post("/orders/{orderId}/payout", handler.TriggerPayout)
		r.Post("/orders/{orderId}/cancel", handler.CancelOrder)
		r.Post("/webhooks/nowpayments", handler.Webhook)
	})

	r.Get("/ws", hub.HandleWS)

	return &Server{Router: r}
}
