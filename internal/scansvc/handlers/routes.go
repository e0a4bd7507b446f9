package handlers

import (
	"github.com/avvvet/csss-services/internal/scansvc/auth"
	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
)

func (h *Handler) SetRoutes(r chi.Router) {
	verifier := jwtauth.Verifier(h.tokens.JWTAuth())

	// public routes here
	r.Get("/", h.RootHandler)
	r.Get("/health", h.HealthHandler)
	r.Post("/chatbot", h.ChatHandler)
	r.Post("/chatbot/", h.ChatHandler)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.LoginHandler)
		// token optional; only needed to create admins
		r.With(verifier).Post("/register", h.RegisterHandler)
	})

	r.Route("/otp", func(r chi.Router) {
		r.Post("/send", h.SendOTPHandler)
		r.Post("/verify", h.VerifyOTPHandler)
	})

	// Secure routes
	r.Group(func(r chi.Router) {
		r.Use(verifier)

		r.Route("/patient", func(r chi.Router) {
			r.With(auth.Require(models.RolePatient)).Post("/upload", h.UploadHandler)
			r.With(auth.Require(models.RolePatient)).Get("/scans", h.MyScansHandler)
			r.With(auth.Require(models.RolePatient, models.RoleDoctor, models.RolePharmacist, models.RoleAdmin)).
				Get("/status/{patient_id}", h.PatientStatusHandler)
		})

		r.Route("/doctor", func(r chi.Router) {
			r.Use(auth.Require(models.RoleDoctor))
			r.Get("/pending", h.DoctorPendingHandler)
			r.Post("/analyze/{id}", h.AnalyzeHandler)
			r.Post("/verify/{id}", h.VerifyHandler)
		})

		r.Route("/pharmacist", func(r chi.Router) {
			r.Use(auth.Require(models.RolePharmacist))
			r.Get("/queue", h.PharmacistQueueHandler)
			r.Post("/complete/{id}", h.CompleteHandler)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.Require(models.RoleAdmin))
			r.Get("/pending", h.AdminPendingHandler)
			r.Get("/stats", h.StatsHandler)
			r.Post("/approve/{id}", h.ApproveHandler)
			r.Post("/reject/{id}", h.RejectHandler)
		})

		r.With(auth.Require()).Get("/reports/pdf/{id}", h.ReportPDFHandler)
	})
}
