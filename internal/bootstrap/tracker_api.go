package bootstrap

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	httpadapter "reply_tracker/adapter/in/http"
	"reply_tracker/infra/database"
)

// NewAPI builds the fiber app over deps.
func NewAPI(deps *Dependencies) *fiber.App {
	cfg := deps.Config
	return httpadapter.NewApp(httpadapter.ServerConfig{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		TriggerToken: cfg.Server.TriggerToken,
		TriggerRate:  rate.Every(time.Second),
		TriggerBurst: 5,
	}, httpadapter.Handlers{
		Health: httpadapter.NewHealthHandler(deps.HealthChecks()).
			WithStats("postgres", func() any { return database.GetPoolStats(deps.DB) }).
			WithStats("runs", func() any { return deps.RunStats.Snapshot() }),
		OAuth: httpadapter.NewOAuthHandler(deps.OAuth, deps.OAuthStates),
		Run:   httpadapter.NewRunHandler(deps.Runner, deps.Outcomes),
	})
}
