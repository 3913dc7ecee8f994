package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"reply_tracker/pkg/apperr"
	"reply_tracker/pkg/httputil"
	"reply_tracker/pkg/logger"
	"reply_tracker/pkg/resilience"
)

func newOpenAIClient(cfg Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.HTTPClient = httputil.NewClient(httputil.OracleClientConfig(cfg.Timeout))
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// =============================================================================
// Assistants backend
// =============================================================================

// AssistantOracle runs each prompt on a fresh thread of a preconfigured
// assistant and polls the run until it reaches a terminal state.
type AssistantOracle struct {
	client      *openai.Client
	assistantID string
	poll        resilience.PollPolicy
}

func NewAssistantOracle(cfg Config) *AssistantOracle {
	poll := cfg.Poll
	if poll.MaxAttempts <= 0 && poll.MaxElapsed <= 0 {
		poll = resilience.DefaultPollPolicy()
	}
	return &AssistantOracle{
		client:      newOpenAIClient(cfg),
		assistantID: cfg.AssistantID,
		poll:        poll,
	}
}

// go-openai only declares the transitional "cancelling" state. requires_action
// is terminal for us since no tool outputs are ever submitted.
const runStatusCancelled = openai.RunStatus("cancelled")

func (o *AssistantOracle) Name() string { return ProviderAssistant }

func (o *AssistantOracle) Classify(ctx context.Context, prompt string) (string, error) {
	thread, err := o.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", backendError(o.Name(), "create thread", openAIStatus(err), err)
	}

	if _, err := o.client.CreateMessage(ctx, thread.ID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	}); err != nil {
		return "", backendError(o.Name(), "create message", openAIStatus(err), err)
	}

	run, err := o.client.CreateRun(ctx, thread.ID, openai.RunRequest{AssistantID: o.assistantID})
	if err != nil {
		return "", backendError(o.Name(), "create run", openAIStatus(err), err)
	}

	attempts, err := o.poll.Poll(ctx, func(ctx context.Context) (bool, error) {
		current, err := o.client.RetrieveRun(ctx, thread.ID, run.ID)
		if err != nil {
			return false, backendError(o.Name(), "retrieve run", openAIStatus(err), err)
		}
		switch current.Status {
		case openai.RunStatusCompleted:
			return true, nil
		case openai.RunStatusFailed, openai.RunStatusExpired, runStatusCancelled, openai.RunStatusRequiresAction:
			reason := fmt.Sprintf("run %s", current.Status)
			if current.LastError != nil && current.LastError.Message != "" {
				reason += ": " + current.LastError.Message
			}
			return false, apperr.OracleFailed(o.Name(), reason, nil).WithDetail("run_id", run.ID)
		default:
			return false, nil
		}
	})
	if err != nil {
		if errors.Is(err, resilience.ErrPollExhausted) {
			return "", apperr.ClassificationTimedOut(o.Name(), err).WithDetail("run_id", run.ID)
		}
		return "", err
	}
	logger.WithContext(ctx).WithField("run_id", run.ID).Debug("Assistant run completed after %d polls", attempts)

	limit := 10
	order := "desc"
	messages, err := o.client.ListMessage(ctx, thread.ID, &limit, &order, nil, nil)
	if err != nil {
		return "", backendError(o.Name(), "list messages", openAIStatus(err), err)
	}
	for _, msg := range messages.Messages {
		if msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		for _, content := range msg.Content {
			if content.Text != nil && strings.TrimSpace(content.Text.Value) != "" {
				return content.Text.Value, nil
			}
		}
	}
	return "", apperr.OracleFailed(o.Name(), "no assistant reply on thread", nil).WithDetail("thread_id", thread.ID)
}

// =============================================================================
// Chat completions backend
// =============================================================================

// ChatOracle sends the prompt as a single JSON-mode chat completion.
type ChatOracle struct {
	client    *openai.Client
	model     string
	maxTokens int
}

func NewChatOracle(cfg Config) *ChatOracle {
	model := cfg.Model
	if model == "" {
		model = DefaultChatModel
	}
	return &ChatOracle{
		client:    newOpenAIClient(cfg),
		model:     model,
		maxTokens: cfg.MaxTokens,
	}
}

func (o *ChatOracle) Name() string { return ProviderChat }

func (o *ChatOracle) Classify(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   o.maxTokens,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", backendError(o.Name(), "chat completion", openAIStatus(err), err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", apperr.OracleFailed(o.Name(), "empty completion", nil)
	}
	return resp.Choices[0].Message.Content, nil
}
