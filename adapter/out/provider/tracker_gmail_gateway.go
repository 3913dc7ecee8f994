// Package provider implements the Gmail mailbox adapter.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"reply_tracker/core/port/out"
	"reply_tracker/pkg/apperr"
	"reply_tracker/pkg/httputil"
	"reply_tracker/pkg/logger"
	"reply_tracker/pkg/resilience"
)

const (
	providerGmail = "gmail"
	gmailUser     = "me"
)

// GmailConfig holds OAuth client settings plus the stored refresh token.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	RefreshToken string

	// AuthURL and TokenURL override Google's endpoints.
	AuthURL  string
	TokenURL string

	RequestsPerSecond float64
	Burst             int
}

// GmailGateway reads the shared inbox through the Gmail API.
type GmailGateway struct {
	svc     *gmail.Service
	breaker *resilience.Breaker
	limiter *rate.Limiter
}

var _ out.MailboxGateway = (*GmailGateway)(nil)

// NewGmailGateway builds a Gmail client whose access token is refreshed from
// cfg.RefreshToken on demand.
func NewGmailGateway(ctx context.Context, cfg GmailConfig) (*GmailGateway, error) {
	if strings.TrimSpace(cfg.RefreshToken) == "" {
		return nil, apperr.ConfigError("gmail refresh token is not configured; complete /auth first")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, apperr.ConfigError("google oauth client is not configured")
	}

	httpCtx := context.WithValue(ctx, oauth2.HTTPClient, httputil.NewClient(httputil.MailboxClientConfig()))
	token := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	client := oauthConfig(cfg).Client(httpCtx, token)

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewGmailGatewayWithService(svc, cfg), nil
}

// NewGmailGatewayWithService wraps an existing service.
func NewGmailGatewayWithService(svc *gmail.Service, cfg GmailConfig) *GmailGateway {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	breakerCfg := resilience.DefaultBreakerConfig("gmail-api")
	breakerCfg.Passthrough = isGmailCallerError

	return &GmailGateway{
		svc:     svc,
		breaker: resilience.NewBreaker(breakerCfg),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// BreakerState is exposed for readiness output.
func (g *GmailGateway) BreakerState() string {
	return g.breaker.State()
}

// ListRecent returns one page of messages matching query, newest first.
func (g *GmailGateway) ListRecent(ctx context.Context, query out.ListQuery) ([]out.MessageRef, error) {
	var resp *gmail.ListMessagesResponse
	err := g.execute(ctx, "ListRecent", func() error {
		var apiErr error
		call := g.svc.Users.Messages.List(gmailUser).Q(SearchQuery(query))
		if query.MaxResults > 0 {
			call = call.MaxResults(query.MaxResults)
		}
		resp, apiErr = call.Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, wrapError(err, "failed to list messages")
	}

	refs := make([]out.MessageRef, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		refs = append(refs, out.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return refs, nil
}

// GetMetadata fetches the named headers only.
func (g *GmailGateway) GetMetadata(ctx context.Context, id string, headers ...string) (*out.MessageMeta, error) {
	var msg *gmail.Message
	err := g.execute(ctx, "GetMetadata", func() error {
		var apiErr error
		msg, apiErr = g.svc.Users.Messages.Get(gmailUser, id).
			Format("metadata").
			MetadataHeaders(headers...).
			Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, wrapError(err, "failed to get message metadata")
	}
	meta := convertMeta(msg)
	return &meta, nil
}

// GetFull fetches headers and the MIME payload tree.
func (g *GmailGateway) GetFull(ctx context.Context, id string) (*out.FullMessage, error) {
	var msg *gmail.Message
	err := g.execute(ctx, "GetFull", func() error {
		var apiErr error
		msg, apiErr = g.svc.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, wrapError(err, "failed to get message")
	}
	return &out.FullMessage{
		MessageMeta: convertMeta(msg),
		Payload:     convertPart(msg.Payload),
	}, nil
}

// SearchQuery renders a ListQuery as a Gmail search expression.
func SearchQuery(q out.ListQuery) string {
	var parts []string
	if q.NewerThanDays > 0 {
		parts = append(parts, fmt.Sprintf("newer_than:%dd", q.NewerThanDays))
	}
	for _, folder := range q.ExcludeFolders {
		if folder = strings.TrimSpace(folder); folder != "" {
			parts = append(parts, "-in:"+folder)
		}
	}
	return strings.Join(parts, " ")
}

// execute rate-limits fn and runs it under the breaker.
func (g *GmailGateway) execute(ctx context.Context, operation string, fn func() error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	err := g.breaker.Execute(fn)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		logger.WithContext(ctx).WithField("operation", operation).Warn("[GmailGateway] circuit open, rejecting %s", operation)
	}
	return err
}

func convertMeta(msg *gmail.Message) out.MessageMeta {
	meta := out.MessageMeta{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Headers:  out.MessageHeaders{},
	}
	if msg.InternalDate > 0 {
		meta.InternalDate = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			meta.Headers.Set(h.Name, h.Value)
		}
	}
	return meta
}

func convertPart(part *gmail.MessagePart) *out.MessagePart {
	if part == nil {
		return nil
	}
	converted := &out.MessagePart{MimeType: part.MimeType}
	if part.Body != nil {
		converted.Body = &out.MessagePartBody{Data: part.Body.Data}
	}
	for _, child := range part.Parts {
		converted.Parts = append(converted.Parts, convertPart(child))
	}
	return converted
}

func isRateLimited(apiErr *googleapi.Error) bool {
	if apiErr.Code == 429 {
		return true
	}
	if apiErr.Code != 403 {
		return false
	}
	if strings.Contains(strings.ToLower(apiErr.Message), "rate limit") {
		return true
	}
	for _, item := range apiErr.Errors {
		if strings.Contains(strings.ToLower(item.Reason), "ratelimit") {
			return true
		}
	}
	return false
}

// isGmailCallerError keeps 4xx responses from tripping the breaker.
func isGmailCallerError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return !isRateLimited(apiErr) && httputil.IsClientError(apiErr.Code)
	}
	return false
}

func wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return out.NewMailboxError(providerGmail, out.MailboxErrServer, "Circuit open", err, true)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case isRateLimited(apiErr):
			return out.NewMailboxError(providerGmail, out.MailboxErrRateLimit, "Rate limit exceeded", err, true)
		case apiErr.Code == 400:
			return out.NewMailboxError(providerGmail, out.MailboxErrInvalidInput, "Invalid request", err, false)
		case apiErr.Code == 401:
			return out.NewMailboxError(providerGmail, out.MailboxErrTokenExpired, "Token expired", err, false)
		case apiErr.Code == 403:
			return out.NewMailboxError(providerGmail, out.MailboxErrAuth, "Access denied", err, false)
		case apiErr.Code == 404:
			return out.NewMailboxError(providerGmail, out.MailboxErrNotFound, "Not found", err, false)
		case apiErr.Code >= 500:
			return out.NewMailboxError(providerGmail, out.MailboxErrServer, "Server error", err, true)
		}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return out.NewMailboxError(providerGmail, out.MailboxErrTokenExpired, "Refresh token rejected", err, false)
	}

	return out.NewMailboxError(providerGmail, out.MailboxErrServer, defaultMsg, err, true)
}
