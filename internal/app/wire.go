package app

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sidestake/exchange/internal/auth"
	"github.com/sidestake/exchange/internal/handler"
	"github.com/sidestake/exchange/internal/matchmaking"
	"github.com/sidestake/exchange/internal/repository"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Pool    *pgxpool.Pool
	JWTMgr  *auth.JWTManager
	Engine  *matchmaking.Engine
	Watcher handler.InvoiceWatcher
	Fights  repository.FightRepository
	Syncer  handler.CatalogSyncer
	Logger  *slog.Logger

	ServiceAPIKey string
	AdminAPIKey   string
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	authHandler := handler.NewAuthHandler(deps.JWTMgr, deps.ServiceAPIKey, deps.AdminAPIKey)
	fightHandler := handler.NewFightHandler(deps.Engine)
	intentHandler := handler.NewIntentHandler(deps.Engine, deps.Watcher)
	adminHandler := handler.NewAdminHandler(deps.Pool, deps.Fights, deps.Syncer, deps.Logger)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(deps.Logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(deps.Logger))
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(deps.Pool))

	// Token exchange (no auth)
	r.Post("/auth/token", authHandler.Token)

	// Chat-service routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.AuthenticateService(deps.JWTMgr))

		r.Route("/fights", func(r chi.Router) {
			r.Get("/", fightHandler.List)
			r.Get("/{fightID}", fightHandler.Get)
			r.Get("/{fightID}/deals", fightHandler.OpenDeals)
		})

		r.Route("/deals", func(r chi.Router) {
			r.Get("/mine", intentHandler.MyDeals)
			r.Get("/shareable", intentHandler.Shareable)
			r.Post("/{dealID}/accept", intentHandler.Accept)
		})

		r.Route("/intents", func(r chi.Router) {
			r.Post("/", intentHandler.CreateNew)
			r.Get("/{invoiceID}", intentHandler.Status)
		})
	})

	// Operator routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthenticateAdmin(deps.JWTMgr))

		r.Post("/fights/{fightID}/result", adminHandler.RecordResult)
		r.Get("/fights/overdue", adminHandler.OverdueFights)
		r.Post("/sync", adminHandler.ForceSync)
	})

	return r
}
