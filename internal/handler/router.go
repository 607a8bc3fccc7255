package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/LopesIA/navalhabackend/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware API кошелька.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/deposits", h.CreateDeposit)
		r.Post("/roulette/spin", h.Spin)
		r.Get("/accounts/{accountID}/balance", h.GetBalance)

		r.Group(func(r chi.Router) {
			r.Use(h.signature.Middleware)
			r.Post("/webhooks/pagbank", h.Webhook)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
