// Package oracle adapts hosted language-model APIs to the classification
// oracle port.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reply_tracker/core/port/out"
	"reply_tracker/pkg/apperr"
	"reply_tracker/pkg/httputil"
	"reply_tracker/pkg/resilience"
)

const (
	ProviderAssistant = "assistant"
	ProviderChat      = "chat"
	ProviderAnthropic = "anthropic"

	DefaultChatModel      = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
	DefaultMaxTokens      = 512

	systemPrompt = "You classify lender replies to loan submissions. Answer with a single JSON object and nothing else."
)

// Config selects and configures one backend.
type Config struct {
	Provider    string
	APIKey      string
	AssistantID string
	Model       string
	MaxTokens   int
	// BaseURL overrides the vendor endpoint.
	BaseURL string
	Timeout time.Duration
	Poll    resilience.PollPolicy
}

// New builds the configured backend behind a circuit breaker.
func New(cfg Config) (out.ClassificationOracle, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, apperr.ConfigError("oracle API key is not configured")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	var backend out.ClassificationOracle
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderAssistant, "":
		if strings.TrimSpace(cfg.AssistantID) == "" {
			return nil, apperr.ConfigError("assistant id is not configured")
		}
		backend = NewAssistantOracle(cfg)
	case ProviderChat:
		backend = NewChatOracle(cfg)
	case ProviderAnthropic:
		backend = NewAnthropicOracle(cfg)
	default:
		return nil, apperr.ConfigError(fmt.Sprintf("unknown oracle provider %q", cfg.Provider))
	}
	return WithBreaker(backend, resilience.DefaultBreakerConfig("oracle-"+backend.Name())), nil
}

// breakerOracle stops calling a backend that keeps failing.
type breakerOracle struct {
	inner   out.ClassificationOracle
	breaker *resilience.Breaker
}

// WithBreaker wraps inner so repeated server-side failures open the circuit.
// Caller errors and cancellations do not count.
func WithBreaker(inner out.ClassificationOracle, cfg resilience.BreakerConfig) out.ClassificationOracle {
	cfg.Passthrough = isCallerError
	return &breakerOracle{inner: inner, breaker: resilience.NewBreaker(cfg)}
}

func (b *breakerOracle) Name() string { return b.inner.Name() }

func (b *breakerOracle) Classify(ctx context.Context, prompt string) (string, error) {
	var answer string
	err := b.breaker.Execute(func() error {
		var err error
		answer, err = b.inner.Classify(ctx, prompt)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "", apperr.OracleFailed(b.inner.Name(), "circuit open", err)
	}
	return answer, err
}

func isCallerError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		if status, ok := appErr.Details["status"].(int); ok {
			return httputil.IsClientError(status)
		}
	}
	return false
}

// backendError maps a transport error to ORACLE_FAILED, keeping the HTTP
// status for breaker accounting.
func backendError(backend, op string, status int, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperr.ClassificationTimedOut(backend, err)
		}
		return err
	}
	appErr := apperr.OracleFailed(backend, op, err)
	if status > 0 {
		appErr.WithDetail("status", status)
	}
	return appErr
}
