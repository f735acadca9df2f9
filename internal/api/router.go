package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/modelplane/modelplane/internal/api/handlers"
	"github.com/modelplane/modelplane/internal/api/middleware"
	"github.com/modelplane/modelplane/internal/audit"
	"github.com/modelplane/modelplane/internal/auth"
	"github.com/modelplane/modelplane/internal/cache"
	"github.com/modelplane/modelplane/internal/config"
	"github.com/modelplane/modelplane/internal/queue"
	"github.com/modelplane/modelplane/internal/store"
	"github.com/modelplane/modelplane/internal/webhook"
)

type Router struct {
	mux    *chi.Mux
	db     *pgxpool.Pool
	redis  *redis.Client
	cfg    *config.Config
	jwt    *auth.JWTMiddleware
	logger *slog.Logger
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, logger *slog.Logger) *Router {
	return &Router{
		mux:    chi.NewRouter(),
		db:     db,
		redis:  rdb,
		cfg:    cfg,
		jwt:    auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		logger: logger,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Services
	st := store.New(rt.db)
	queueClient := queue.NewClient(rt.cfg.Redis, rt.logger)
	auditSvc := audit.NewService(rt.db)
	dispatcher := webhook.NewDispatcher(rt.db, rt.logger)
	webhookSvc := webhook.NewService(rt.db, dispatcher, rt.logger)
	pointerCache := cache.NewPointerCache(cache.NewCache(rt.redis))

	datasetH := handlers.NewDatasetHandler(st, queueClient, auditSvc, rt.logger)
	evalH := handlers.NewEvalHandler(st, queueClient, auditSvc, rt.logger)
	finetuneH := handlers.NewFinetuneHandler(st, queueClient, auditSvc, rt.logger)
	versionH := handlers.NewModelVersionHandler(st)
	promotionH := handlers.NewPromotionHandler(st, queueClient, pointerCache, auditSvc, rt.logger)
	webhookH := handlers.NewWebhookHandler(webhookSvc)
	auditH := handlers.NewAuditHandler(auditSvc)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		r.Route("/traces", func(r chi.Router) {
			r.Post("/", datasetH.IngestTraces)
			r.Get("/", datasetH.ListTraces)
		})

		r.Route("/datasets", func(r chi.Router) {
			r.Post("/", datasetH.Create)
			r.Get("/", datasetH.List)
			r.Get("/{id}", datasetH.Get)
		})

		r.Route("/eval-suites", func(r chi.Router) {
			r.Post("/", evalH.CreateSuite)
			r.Get("/{id}", evalH.GetSuite)
			r.Post("/{id}/samples", evalH.AddSamples)
			r.Get("/{id}/samples", evalH.ListSamples)
			r.Get("/{id}/runs", evalH.ListRuns)
		})

		r.Route("/eval-runs", func(r chi.Router) {
			r.Post("/", evalH.CreateRun)
			r.Get("/{id}", evalH.GetRun)
		})

		r.Route("/finetune-jobs", func(r chi.Router) {
			r.Post("/", finetuneH.StartJob)
			r.Get("/", finetuneH.ListJobs)
			r.Get("/{id}", finetuneH.GetJob)
		})

		r.Route("/model-versions", func(r chi.Router) {
			r.Post("/", versionH.Register)
			r.Get("/", versionH.List)
			r.Get("/{id}", versionH.Get)
		})

		r.Route("/promotions", func(r chi.Router) {
			r.Post("/", promotionH.Create)
			r.Get("/", promotionH.List)
			r.Get("/{id}", promotionH.Get)
		})

		r.Route("/pointers", func(r chi.Router) {
			r.Get("/", promotionH.GetPointer)
			r.Get("/all", promotionH.ListPointers)
			r.Patch("/", promotionH.RollbackPointer)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/", webhookH.Create)
			r.Get("/", webhookH.List)
			r.Delete("/{id}", webhookH.Delete)
		})

		r.Get("/audit", auditH.List)
	})

	return r
}
