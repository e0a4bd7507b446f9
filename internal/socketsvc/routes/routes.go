package routes

import (
	"github.com/avvvet/csss-services/internal/scansvc/auth"
	"github.com/avvvet/csss-services/internal/socketsvc/handlers"
	"github.com/avvvet/csss-services/internal/socketsvc/ws"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
)

func SetRoutes(r chi.Router, s *ws.Ws, tokens *auth.Tokens) {
	h := handlers.NewHandler(s, tokens)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/ws", h.HandleWebSocket)
		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(tokens.JWTAuth()))
			r.Use(auth.Require())

			r.Get("/health", h.HealthHandler)
		})
	})
}
