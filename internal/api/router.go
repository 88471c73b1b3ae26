// Package api assembles the fiber application: middleware, REST routes and
// the websocket endpoint.
package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/genai-pages/backend/internal/analysis"
	"github.com/genai-pages/backend/internal/api/handlers"
	"github.com/genai-pages/backend/internal/chat"
	"github.com/genai-pages/backend/internal/extraction"
	"github.com/genai-pages/backend/internal/fetch"
	"github.com/genai-pages/backend/internal/metrics"
	"github.com/genai-pages/backend/internal/middleware/ratelimit"
	"github.com/genai-pages/backend/internal/middleware/security"
	"github.com/genai-pages/backend/internal/middleware/validation"
	"github.com/genai-pages/backend/pkg/config"
	"github.com/genai-pages/backend/pkg/logger"
)

type Deps struct {
	Engine   *chat.Engine
	Cache    *extraction.Cache
	Analyzer *analysis.Analyzer
	Fetcher  *fetch.Client
	Store    handlers.Pinger
	Version  string
}

// NewApp returns the configured application and the rate limiter whose
// janitor the caller stops on shutdown.
func NewApp(cfg config.ServerConfig, deps Deps) (*fiber.App, *ratelimit.RateLimiter) {
	app := fiber.New(fiber.Config{
		ReadTimeout:           time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.WriteTimeout) * time.Second,
		BodyLimit:             cfg.BodyLimit,
		DisableStartupMessage: true,
	})

	origins := strings.Join(cfg.AllowedOrigins, ", ")
	if origins == "" {
		origins = "*"
	}

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		IsDevelopment:  cfg.IsDevelopment,
	}))
	app.Use(validation.ContentTypes())

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.TurnsPerMinute,
		Logger:               logger.GetLogger(),
	})

	if deps.Fetcher == nil {
		deps.Fetcher = fetch.NewClient(0, int64(cfg.BodyLimit))
	}

	maxMessage := cfg.MaxMessageLength
	if maxMessage == 0 {
		maxMessage = 8000
	}

	v := validation.New()
	sessions := handlers.NewSessionHandler(deps.Engine, v, maxMessage)
	documents := handlers.NewDocumentHandler(deps.Engine, deps.Cache, deps.Fetcher, v, cfg.MaxDocumentsPerReq)
	analyses := handlers.NewAnalysisHandler(deps.Analyzer)
	health := handlers.NewHealthHandler(deps.Store, deps.Version)
	ws := handlers.NewWebSocketHandler(deps.Engine, maxMessage)

	app.Get("/health", health.Live)
	app.Get("/ready", health.Ready)
	app.Get("/metrics", metrics.MetricsHandler())

	v1 := app.Group("/api/v1")

	v1.Get("/personas", sessions.Personas)
	v1.Get("/analysis-kinds", analyses.Kinds)

	v1.Post("/sessions", sessions.Create)
	v1.Get("/sessions/:id", sessions.Get)
	v1.Delete("/sessions/:id", sessions.Delete)
	v1.Post("/sessions/:id/turns", limiter.Middleware(), sessions.Ask)
	v1.Get("/sessions/:id/turns", sessions.Turns)
	v1.Delete("/sessions/:id/history", sessions.ClearHistory)
	v1.Put("/sessions/:id/persona", sessions.SetPersona)
	v1.Get("/sessions/:id/stats", sessions.Stats)

	v1.Post("/sessions/:id/documents", documents.Upload)
	v1.Post("/sessions/:id/documents/url", documents.AddURL)
	v1.Delete("/sessions/:id/documents", documents.Clear)
	v1.Delete("/sessions/:id/documents/:name", documents.Remove)
	v1.Delete("/cache", documents.ClearCache)

	v1.Post("/analyses", limiter.Middleware(), analyses.Analyze)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(ws.HandleConnection))
	app.Get("/ws/sessions/:id", websocket.New(ws.HandleConnection))

	return app, limiter
}
