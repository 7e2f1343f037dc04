package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/pagelift/pagelift/internal/config"
	"github.com/pagelift/pagelift/pkg/logging"
)

// Server wires the HTTP surface: routing, middleware and lifecycle.
type Server struct {
	app *fiber.App
	cfg *config.Config
	log zerolog.Logger
}

// NewServer builds the fiber app around the given handlers.
func NewServer(cfg *config.Config, h *Handlers) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Pagelift API",
		BodyLimit:             int(cfg.MaxUploadBytes),
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"message": err.Error(),
			})
		},
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${error}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "UTC",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	registerRoutes(app, h)

	return &Server{app: app, cfg: cfg, log: logging.GetLogger("api")}
}

func registerRoutes(app *fiber.App, h *Handlers) {
	app.Get("/health", h.Health)
	app.Post("/process", h.ProcessDocument)
	app.Get("/files/:handle", h.ServeFile)

	api := app.Group("/api")
	api.Get("/status", h.Status)
	api.Get("/markdown", h.GetMarkdown)
	api.Get("/json", h.GetJSON)
	api.Get("/preview", h.GetPreview)
	api.Post("/sketches", h.Sketches)
	api.Get("/settings", h.GetSettings)
	api.Put("/settings", h.PutSettings)
	api.Get("/settings/history", h.GetSettingsHistory)
}

// Listen serves until Shutdown is called.
func (s *Server) Listen() error {
	s.log.Info().Str("port", s.cfg.Port).Msg("API server listening")
	return s.app.Listen(":" + s.cfg.Port)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
