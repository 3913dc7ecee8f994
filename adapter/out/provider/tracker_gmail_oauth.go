package provider

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"reply_tracker/pkg/apperr"
	"reply_tracker/pkg/httputil"
)

// OAuthClient runs the one-time consent flow that yields a refresh token.
type OAuthClient struct {
	config *oauth2.Config
}

func NewOAuthClient(cfg GmailConfig) *OAuthClient {
	return &OAuthClient{config: oauthConfig(cfg)}
}

// Configured reports whether client credentials are present.
func (c *OAuthClient) Configured() bool {
	return c.config.ClientID != "" && c.config.ClientSecret != "" && c.config.RedirectURL != ""
}

// AuthURL returns the consent URL. Offline access with forced consent makes
// Google issue a refresh token every time.
func (c *OAuthClient) AuthURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens.
func (c *OAuthClient) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httputil.NewClient(nil))
	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.OAuthFailed(providerGmail, err)
	}
	return token, nil
}

func oauthConfig(cfg GmailConfig) *oauth2.Config {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     endpoint,
	}
}
