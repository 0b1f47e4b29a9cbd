package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/eudrsat/internal/pkg/metrics"
)

const (
	// requestTimeout bounds a full fetch cycle: token plus two process calls.
	requestTimeout = 90 * time.Second
	quickTimeout   = 15 * time.Second

	maxBodyBytes = 4 << 20
)

// legacySceneSunset is when POST /api/satellite-image goes away.
var legacySceneSunset = time.Date(2027, time.June, 30, 0, 0, 0, 0, time.UTC)

// AppConfig holds the server settings NewApp needs.
type AppConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	AllowOrigins string
	// RatePerMinute is the per-IP request limit; zero disables limiting.
	RatePerMinute int
}

// NewApp creates a Fiber app with the shared error handler and base
// middleware.
func NewApp(cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		BodyLimit:    maxBodyBytes,
		AppName:      "EUDR Satellite API",
		ErrorHandler: fiberErrorHandler,
	})
	app.Use(recover.New())
	if cfg.AllowOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowOrigins,
			AllowMethods: "GET,POST,OPTIONS",
			AllowHeaders: "Origin, Content-Type, Accept, X-Session-ID",
			MaxAge:       3600,
		}))
	}
	if cfg.RatePerMinute > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.RatePerMinute,
			Expiration: time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			Next: func(c *fiber.Ctx) bool {
				// Health checks and scrapes are never limited.
				switch c.Path() {
				case "/v1/health", "/v1/ready", "/metrics":
					return true
				}
				return false
			},
			LimitReached: func(c *fiber.Ctx) error {
				return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
			},
		}))
	}
	return app
}

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())
	app.Use(DeprecationMiddleware([]DeprecatedRoute{{
		Path:        "/api/satellite-image",
		SunsetDate:  legacySceneSunset,
		Alternative: "/v1/imagery/scene",
	}}))

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Post("/areas", timeout.NewWithContext(CreateAreaHandler(deps), quickTimeout))
	v1.Post("/areas/upload", timeout.NewWithContext(UploadAreaHandler(deps), quickTimeout))
	v1.Post("/imagery", timeout.NewWithContext(FetchImageryHandler(deps), requestTimeout))
	v1.Post("/imagery/scene", timeout.NewWithContext(SceneHandler(deps), requestTimeout))
	v1.Get("/tiles", timeout.NewWithContext(TileHandler(deps), quickTimeout))
	v1.Get("/links", timeout.NewWithContext(LinksHandler(deps), quickTimeout))
	v1.Get("/cycles", timeout.NewWithContext(ListCyclesHandler(deps), quickTimeout))
	v1.Get("/cycles/:id", timeout.NewWithContext(GetCycleHandler(deps), quickTimeout))
	v1.Get("/sessions/:id", SessionHandler(deps))

	// Legacy backend surface
	app.Post("/api/satellite-image", timeout.NewWithContext(LegacySceneHandler(deps), requestTimeout))
	app.Get("/api/health", LegacyHealthHandler())

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app)

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("session", c.Query("session"))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps)))
}
