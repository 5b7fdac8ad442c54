package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/PowerStash/internal/app/repository"
	"github.com/sifan077/PowerStash/internal/app/service"
	inthttp "github.com/sifan077/PowerStash/internal/http/handler"
	"github.com/sifan077/PowerStash/internal/http/middleware"
	"go.uber.org/zap"
)

// Dependencies bundles what the HTTP side server needs.
type Dependencies struct {
	Logger    *zap.Logger
	Redis     *redis.Client
	RateLimit int
	APIKey    string
	Files     repository.FileRepository
	Batches   repository.BatchRepository
	Filter    *service.LinkFilter
	Links     service.Links
	Stats     *service.StatsService
	Checks    []inthttp.ReadinessCheck
	Now       service.Clock
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates the HTTP server with its middleware chain and routes.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		AppName:               "PowerStash",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the fiber app, used by tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	logger := s.deps.Logger.With(zap.String("component", "http"))
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(logger))
	s.app.Use(middleware.Logger(logger))
	s.app.Use(middleware.CORS())

	limit := middleware.DefaultRateLimitConfig()
	if s.deps.RateLimit > 0 {
		limit.MaxRequests = s.deps.RateLimit
	}
	s.app.Use(middleware.RateLimit(s.deps.Redis, limit, logger))
}

func (s *Server) registerRoutes() {
	records := inthttp.RecordDeps{
		Logger:  s.deps.Logger,
		Files:   s.deps.Files,
		Batches: s.deps.Batches,
		Filter:  s.deps.Filter,
		Links:   s.deps.Links,
		Now:     s.deps.Now,
	}

	inthttp.NewHealthHandler(s.deps.Logger, s.deps.Checks...).Register(s.app)
	inthttp.NewAPIHandler(inthttp.APIDeps{
		Records: records,
		Stats:   s.deps.Stats,
		APIKey:  s.deps.APIKey,
	}).Register(s.app)
	inthttp.NewLandingHandler(records).Register(s.app)
}
