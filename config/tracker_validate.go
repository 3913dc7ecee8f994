package config

import (
	"fmt"
	"strings"

	"reply_tracker/pkg/apperr"
)

const (
	OracleAssistant = "assistant"
	OracleChat      = "chat"
	OracleAnthropic = "anthropic"
)

// Validate checks settings every command relies on. Stage credentials are
// checked lazily by the Require* methods.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535 (got %d)", c.Server.Port)
	}
	switch c.Oracle.Provider {
	case OracleAssistant, OracleChat, OracleAnthropic:
	default:
		return fmt.Errorf("oracle.provider must be one of assistant, chat, anthropic (got %q)", c.Oracle.Provider)
	}
	switch strings.ToLower(c.Pipeline.SenderMatch) {
	case "exact", "contains":
	default:
		return fmt.Errorf("pipeline.sender_match must be exact or contains (got %q)", c.Pipeline.SenderMatch)
	}
	if c.Pipeline.MaxParseAttempts < 1 {
		return fmt.Errorf("pipeline.max_parse_attempts must be >= 1 (got %d)", c.Pipeline.MaxParseAttempts)
	}
	if c.Pipeline.ClassifyWindow <= 0 {
		return fmt.Errorf("pipeline.classify_window must be > 0 (got %s)", c.Pipeline.ClassifyWindow)
	}
	if c.Pipeline.CutoffSkew < 0 {
		return fmt.Errorf("pipeline.cutoff_skew must be >= 0 (got %s)", c.Pipeline.CutoffSkew)
	}
	if c.Pipeline.BodyLimit <= 0 {
		return fmt.Errorf("pipeline.body_limit must be > 0 (got %d)", c.Pipeline.BodyLimit)
	}
	if c.Oracle.PollInterval <= 0 {
		return fmt.Errorf("oracle.poll_interval must be > 0 (got %s)", c.Oracle.PollInterval)
	}
	for name, table := range map[string]string{
		"tables.submissions":     c.Tables.Submissions,
		"tables.declines":        c.Tables.Declines,
		"tables.classifier_log":  c.Tables.ClassifierLog,
		"tables.lender_contacts": c.Tables.LenderContacts,
	} {
		if strings.TrimSpace(table) == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	return nil
}

// RequireDatabase fails when no database URL is set.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return apperr.ConfigError("DATABASE_URL is required")
	}
	return nil
}

// RequireMailbox fails when Gmail credentials are incomplete.
func (c *Config) RequireMailbox() error {
	var missing []string
	if c.Google.ClientID == "" {
		missing = append(missing, "CLIENT_ID")
	}
	if c.Google.ClientSecret == "" {
		missing = append(missing, "CLIENT_SECRET")
	}
	if c.Google.RefreshToken == "" {
		missing = append(missing, "REFRESH_TOKEN")
	}
	if len(missing) > 0 {
		return apperr.ConfigError("mailbox credentials missing: " + strings.Join(missing, ", "))
	}
	return nil
}

// RequireOAuth fails when the consent flow cannot be started.
func (c *Config) RequireOAuth() error {
	if c.Google.ClientID == "" || c.Google.ClientSecret == "" || c.Google.RedirectURL == "" {
		return apperr.ConfigError("CLIENT_ID, CLIENT_SECRET and REDIRECT_URI are required for OAuth")
	}
	return nil
}

// RequireOracle fails when the selected provider lacks credentials.
func (c *Config) RequireOracle() error {
	if c.Oracle.APIKey() == "" {
		if c.Oracle.Provider == OracleAnthropic {
			return apperr.ConfigError("ANTHROPIC_API_KEY is required")
		}
		return apperr.ConfigError("OPENAI_API_KEY is required")
	}
	if c.Oracle.Provider == OracleAssistant && c.Oracle.AssistantID == "" {
		return apperr.ConfigError("OPENAI_ASSISTANT_ID is required for the assistant provider")
	}
	return nil
}
