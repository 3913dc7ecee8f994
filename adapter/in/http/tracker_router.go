package http

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"reply_tracker/infra/middleware"
)

// ServerConfig tunes the fiber app.
type ServerConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TriggerToken string
	// TriggerRate limits trigger requests per client IP.
	TriggerRate  rate.Limit
	TriggerBurst int
}

// Handlers groups the route handlers mounted by NewApp.
type Handlers struct {
	Health *HealthHandler
	OAuth  *OAuthHandler
	Run    *RunHandler
}

// NewApp builds the fiber app with middleware and all routes.
func NewApp(cfg ServerConfig, h Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "reply-tracker",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ErrorHandler:          middleware.ErrorHandler(),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	app.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.Recover(),
		middleware.SecurityHeaders(),
	)

	if h.Health != nil {
		h.Health.Register(app)
	}
	if h.OAuth != nil {
		h.OAuth.Register(app)
	}
	if h.Run != nil {
		burst := cfg.TriggerBurst
		if burst <= 0 {
			burst = 5
		}
		limit := cfg.TriggerRate
		if limit <= 0 {
			limit = rate.Every(time.Second)
		}
		limiter := middleware.NewRateLimiter(limit, burst)
		h.Run.Register(app, limiter.Handler(), middleware.TriggerAuth(cfg.TriggerToken))
	}
	return app
}
