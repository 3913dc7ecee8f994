package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"reply_tracker/core/domain"
	"reply_tracker/core/port/in"
	"reply_tracker/pkg/response"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// ClassifierLogReader lists recent classifier audit entries.
type ClassifierLogReader interface {
	RecentClassifierLogs(ctx context.Context, limit int) ([]*domain.ClassifierLogEntry, error)
}

// RunHandler exposes the pipeline stages as trigger endpoints.
type RunHandler struct {
	runner in.PipelineRunner
	logs   ClassifierLogReader
}

func NewRunHandler(runner in.PipelineRunner, logs ClassifierLogReader) *RunHandler {
	return &RunHandler{runner: runner, logs: logs}
}

// Register mounts the run endpoints behind guards.
func (h *RunHandler) Register(app fiber.Router, guards ...fiber.Handler) {
	with := func(handler fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, guards...), handler)
	}
	for path, stage := range map[string]string{
		"/run-check":     in.StageThread,
		"/run-heuristic": in.StageHeuristic,
		"/run-classify":  in.StageClassify,
	} {
		app.Get(path, with(h.stage(stage))...)
		app.Post(path, with(h.stage(stage))...)
	}
	app.Post("/run-all", with(h.RunAll)...)
	app.Get("/classifier-log", with(h.ClassifierLog)...)
}

func (h *RunHandler) stage(stage string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := h.runner.Run(c.UserContext(), stage)
		if err != nil {
			return err
		}
		return response.OK(c, report)
	}
}

func (h *RunHandler) RunAll(c *fiber.Ctx) error {
	reports, err := h.runner.RunAll(c.UserContext())
	if err != nil {
		return err
	}
	return response.OK(c, reports)
}

func (h *RunHandler) ClassifierLog(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultLogLimit)
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	entries, err := h.logs.RecentClassifierLogs(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, entries, &response.Meta{Total: len(entries), Limit: limit})
}
