package router

import (
	"github.com/go-chi/chi/v5"

	"ad-board/internal/delivery/handler"
	"ad-board/internal/delivery/middleware"
	"ad-board/internal/infrastructure/mailer"
	"ad-board/internal/infrastructure/metrics"
	"ad-board/internal/infrastructure/storage"
	"ad-board/internal/repository"
	"ad-board/internal/service"
	"ad-board/pkg/logger"
)

type Deps struct {
	AdService    service.AdService
	Sweeper      *service.Sweeper
	Files        storage.FileStore
	Profiles     repository.ProfileStore
	Notifier     mailer.Notifier
	Sessions     *middleware.SessionManager
	SupportEmail string
	Loggers      *logger.Loggers
	Metrics      *metrics.HandlerMetrics
}

func SetupRoutes(r *chi.Mux, deps Deps) {
	adHandler := handler.NewAdHandler(deps.AdService, deps.Files, deps.Loggers, deps.Metrics)
	adminHandler := handler.NewAdminHandler(deps.Sweeper, deps.Profiles, deps.Sessions, deps.Loggers, deps.Metrics)
	contactHandler := handler.NewContactHandler(deps.Notifier, deps.SupportEmail, deps.Loggers, deps.Metrics)

	// Public surface
	r.Get("/ads", adHandler.ListAds)
	r.Get("/ads/{id}", adHandler.GetAdByID)
	r.Post("/contact", contactHandler.Submit)
	r.Post("/auth/login", adminHandler.Login)
	r.Post("/auth/logout", adminHandler.Logout)
	r.Get("/cleanup", adminHandler.DescribeCleanup)

	// Dashboard surface, admin session required
	r.Group(func(r chi.Router) {
		r.Use(deps.Sessions.RequireAdmin)

		r.Post("/ads", adHandler.CreateAd)
		r.Put("/ads/{id}", adHandler.UpdateAd)
		r.Delete("/ads/{id}", adHandler.DeleteAd)
		r.Post("/ads/{id}/media/delete", adHandler.RemoveMedia)

		r.Get("/profile", adminHandler.GetProfile)
		r.Put("/profile", adminHandler.UpdateProfile)

		r.Post("/cleanup", adminHandler.TriggerCleanup)
	})
}
