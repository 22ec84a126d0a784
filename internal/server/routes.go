package server

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"catchphish/internal/handlers"
	"catchphish/internal/handlers/api"
	"catchphish/internal/middleware"
	"catchphish/internal/models"
	"catchphish/internal/storage"
)

// Deps are the application services exposed over HTTP.
type Deps struct {
	Analyzer  api.Analyzer
	Store     storage.ReportStore
	Registry  api.MonitorRegistry
	Searcher  api.Searcher
	Feed      api.FeedStatus             // may be nil
	Providers func() []models.SignalName // may be nil
	Logger    *slog.Logger
}

// RegisterRoutes registers all application routes.
func (s *Server) RegisterRoutes(ctx context.Context, d Deps) error {
	var authMiddleware *middleware.AuthMiddleware

	if s.Cfg.IsOIDCEnabled() {
		authHandler, err := handlers.NewAuthHandler(ctx, s.Cfg)
		if err != nil {
			return err
		}
		s.App.Get("/auth/login", authHandler.Login)
		s.App.Get("/auth/callback", authHandler.Callback)
		s.App.Get("/auth/logout", authHandler.Logout)

		authMiddleware = middleware.NewAuthMiddleware(authHandler.Verifier(), s.Cfg.IsAdmin, false)
	} else {
		log.Println("OIDC is not configured; API runs in single-user mode without authentication")
		authMiddleware = middleware.NewAuthMiddleware(nil, nil, true)
	}

	probeHandler := api.NewProbeHandler(d.Store, d.Feed, d.Providers)
	analyzeHandler := api.NewAnalyzeHandler(d.Analyzer, d.Logger)
	reportHandler := api.NewReportHandler(d.Store)
	monitorHandler := api.NewMonitorHandler(d.Registry, 30*time.Second)
	fuzzyHandler := api.NewFuzzyHandler(d.Searcher)

	// Probes and metrics are not rate limited or authenticated.
	s.App.Get("/healthz", probeHandler.Live)
	s.App.Get("/readyz", probeHandler.Ready)
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	apiGroup := s.App.Group("/api", s.rateLimiter(), authMiddleware.RequireAuth)
	apiGroup.Get("/me", api.Me)

	apiGroup.Post("/analyze", analyzeHandler.Analyze)
	apiGroup.Post("/reports", analyzeHandler.Report)
	apiGroup.Get("/reports", reportHandler.List)
	apiGroup.Get("/reports/history", reportHandler.History)
	apiGroup.Get("/reports/:id", reportHandler.Get)

	apiGroup.Post("/monitors", monitorHandler.Start)
	apiGroup.Get("/monitors", monitorHandler.List)
	apiGroup.Get("/monitors/:domain", monitorHandler.Get)
	apiGroup.Delete("/monitors/:domain", monitorHandler.Stop)

	apiGroup.Get("/fuzzy", fuzzyHandler.Search)

	return nil
}
