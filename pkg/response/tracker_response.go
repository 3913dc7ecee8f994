// Package response builds the JSON success envelope used by the HTTP routes.
package response

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Response is the success envelope. Errors are rendered by the middleware
// error handler with the same success/request_id/timestamp fields.
type Response struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Meta      *Meta  `json:"meta,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Meta describes list responses.
type Meta struct {
	Total int `json:"total"`
	Limit int `json:"limit,omitempty"`
}

func build(c *fiber.Ctx, data any, meta *Meta) Response {
	requestID, _ := c.Locals("request_id").(string)
	return Response{
		Success:   true,
		Data:      data,
		Meta:      meta,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// OK writes a 200 envelope around data.
func OK(c *fiber.Ctx, data any) error {
	return c.JSON(build(c, data, nil))
}

// OKWithMeta writes a 200 envelope with list metadata.
func OKWithMeta(c *fiber.Ctx, data any, meta *Meta) error {
	return c.JSON(build(c, data, meta))
}
