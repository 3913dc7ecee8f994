package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reply_tracker/pkg/apperr"
)

func newApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(RequestID(), RequestLogger(), Recover())
	if len(handlers) > 0 {
		app.Get("/", handlers...)
	}
	return app
}

func decodeError(t *testing.T, body io.Reader) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	return resp
}

func TestErrorHandler_AppError(t *testing.T) {
	app := newApp(func(c *fiber.Ctx) error {
		return apperr.Locked("classify")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	body := decodeError(t, resp.Body)
	assert.False(t, body.Success)
	assert.Equal(t, apperr.CodeLocked, body.Error.Code)
	assert.Equal(t, resp.Header.Get("X-Request-ID"), body.RequestID)
}

func TestErrorHandler_WrappedAppError(t *testing.T) {
	app := newApp(func(c *fiber.Ctx) error {
		return errors.Join(errors.New("batch"), apperr.DatabaseError("find", errors.New("down")))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, apperr.CodeDatabaseError, decodeError(t, resp.Body).Error.Code)
}

func TestErrorHandler_ExternalErrorIsBadGateway(t *testing.T) {
	app := newApp(func(c *fiber.Ctx) error {
		return fmt.Errorf("thread: %w", apperr.ExternalError("mailbox", errors.New("503 backend error")))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	body := decodeError(t, resp.Body)
	assert.Equal(t, apperr.CodeExternalError, body.Error.Code)
	assert.Equal(t, "mailbox", body.Error.Details["service"])
}

func TestErrorHandler_UnknownError(t *testing.T) {
	app := newApp(func(c *fiber.Ctx) error { return errors.New("boom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	body := decodeError(t, resp.Body)
	assert.Equal(t, apperr.CodeInternalError, body.Error.Code)
	assert.NotContains(t, body.Error.Message, "boom")
}

func TestErrorHandler_FiberError(t *testing.T) {
	app := newApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, apperr.CodeNotFound, decodeError(t, resp.Body).Error.Code)
}

func TestRequestID_ReusesHeader(t *testing.T) {
	app := newApp(func(c *fiber.Ctx) error { return c.SendString(RequestIDFrom(c)) })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "req-42", string(data))
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
}

func TestRecover(t *testing.T) {
	app := newApp(func(c *fiber.Ctx) error { panic("nil map") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, apperr.CodeInternalError, decodeError(t, resp.Body).Error.Code)
}

func TestTriggerAuth(t *testing.T) {
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) }

	tests := []struct {
		name   string
		token  string
		header string
		value  string
		want   int
	}{
		{"disabled", "", "", "", fiber.StatusNoContent},
		{"missing", "s3cret", "", "", fiber.StatusUnauthorized},
		{"wrong", "s3cret", TriggerTokenHeader, "nope", fiber.StatusUnauthorized},
		{"header", "s3cret", TriggerTokenHeader, "s3cret", fiber.StatusNoContent},
		{"bearer", "s3cret", fiber.HeaderAuthorization, "Bearer s3cret", fiber.StatusNoContent},
		{"basic", "s3cret", fiber.HeaderAuthorization, "Basic s3cret", fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(TriggerAuth(tt.token), ok)
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(0.001, 2)
	app := newApp(limiter.Handler(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	}
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}
