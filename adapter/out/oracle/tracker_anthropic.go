package oracle

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"reply_tracker/pkg/apperr"
	"reply_tracker/pkg/httputil"
)

// AnthropicOracle sends the prompt to the Messages API.
type AnthropicOracle struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

func NewAnthropicOracle(cfg Config, opts ...option.RequestOption) *AnthropicOracle {
	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httputil.NewClient(httputil.OracleClientConfig(cfg.Timeout))),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	clientOpts = append(clientOpts, opts...)

	return &AnthropicOracle{
		client:    sdk.NewClient(clientOpts...),
		model:     model,
		maxTokens: int64(cfg.MaxTokens),
	}
}

func (o *AnthropicOracle) Name() string { return ProviderAnthropic }

func (o *AnthropicOracle) Classify(ctx context.Context, prompt string) (string, error) {
	msg, err := o.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(o.model),
		MaxTokens: o.maxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	})
	if err != nil {
		return "", backendError(o.Name(), "create message", anthropicStatus(err), err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", apperr.OracleFailed(o.Name(), "empty message", nil)
	}
	return sb.String(), nil
}

func anthropicStatus(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
