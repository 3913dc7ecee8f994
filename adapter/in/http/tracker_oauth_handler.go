package http

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"reply_tracker/core/port/out"
	"reply_tracker/pkg/apperr"
	"reply_tracker/pkg/logger"
)

// OAuthStateTTL bounds how long a consent round trip may take.
const OAuthStateTTL = 10 * time.Minute

// OAuthFlow is the consent flow used to mint the mailbox refresh token.
type OAuthFlow interface {
	Configured() bool
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

type OAuthHandler struct {
	flow   OAuthFlow
	states out.OAuthStateStore
}

func NewOAuthHandler(flow OAuthFlow, states out.OAuthStateStore) *OAuthHandler {
	return &OAuthHandler{flow: flow, states: states}
}

func (h *OAuthHandler) Register(app fiber.Router) {
	app.Get("/auth", h.Connect)
	app.Get("/oauth2callback", h.Callback)
}

// Connect redirects the operator to Google consent.
func (h *OAuthHandler) Connect(c *fiber.Ctx) error {
	if h.flow == nil || !h.flow.Configured() {
		return apperr.ConfigError("Google OAuth client is not configured")
	}
	state := uuid.NewString()
	if err := h.states.StoreState(c.UserContext(), state, OAuthStateTTL); err != nil {
		return apperr.InternalWithError(err)
	}
	return c.Redirect(h.flow.AuthURL(state), fiber.StatusFound)
}

// Callback exchanges the code and shows the refresh token for the operator
// to store as REFRESH_TOKEN.
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	if h.flow == nil || !h.flow.Configured() {
		return apperr.ConfigError("Google OAuth client is not configured")
	}
	if reason := c.Query("error"); reason != "" {
		return apperr.BadRequest("consent was not granted: " + reason)
	}
	code := c.Query("code")
	if code == "" {
		return apperr.BadRequest("missing code")
	}
	if err := h.states.ValidateState(c.UserContext(), c.Query("state")); err != nil {
		logger.WithError(err).Warn("rejected OAuth callback")
		return apperr.BadRequest("invalid or expired OAuth state")
	}

	token, err := h.flow.Exchange(c.UserContext(), code)
	if err != nil {
		return err
	}
	if token.RefreshToken == "" {
		return apperr.OAuthFailed("google", fmt.Errorf("no refresh token returned; revoke access and retry /auth"))
	}

	logger.WithContext(c.UserContext()).Info("Obtained Gmail refresh token")
	return c.SendString("Refresh token (store it as REFRESH_TOKEN):\n" + token.RefreshToken)
}
