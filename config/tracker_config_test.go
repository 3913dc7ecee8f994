package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reply_tracker/pkg/apperr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "assistant", cfg.Oracle.Provider)
	assert.Equal(t, time.Second, cfg.Oracle.PollInterval)
	assert.Equal(t, 8*time.Hour, cfg.Pipeline.ClassifyWindow)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.CutoffSkew)
	assert.Equal(t, 3, cfg.Pipeline.MaxParseAttempts)
	assert.Equal(t, 2000, cfg.Pipeline.BodyLimit)
	assert.True(t, cfg.Pipeline.UseRecipientEmails)
	assert.False(t, cfg.Pipeline.DryRun)
	assert.Equal(t, "Live submissions", cfg.Tables.Submissions)
	assert.Equal(t, "declines", cfg.Tables.Declines)
	assert.Equal(t, int64(100), cfg.Google.MaxResults)
	assert.Equal(t, 7, cfg.Google.NewerThanDays)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.StageTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "8081")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("ORACLE_PROVIDER", "anthropic")
	t.Setenv("TABLE_SUBMISSIONS", "submissions")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.True(t, cfg.Pipeline.DryRun)
	assert.Equal(t, "anthropic", cfg.Oracle.Provider)
	assert.Equal(t, "submissions", cfg.Tables.Submissions)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 9090
oracle:
  provider: chat
  openai_api_key: sk-test
pipeline:
  sender_match: contains
  max_parse_attempts: 5
scheduler:
  heuristic_interval: -1s
`)
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "chat", cfg.Oracle.Provider)
	assert.Equal(t, "contains", cfg.Pipeline.SenderMatch)
	assert.Equal(t, 5, cfg.Pipeline.MaxParseAttempts)
	assert.Equal(t, -time.Second, cfg.Scheduler.HeuristicInterval)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.ClassifyInterval)
	assert.NoError(t, cfg.RequireOracle())
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidProvider(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Chdir(t.TempDir())
	t.Setenv("ORACLE_PROVIDER", "sentiment")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle.provider")
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 3000},
		Oracle: OracleConfig{Provider: OracleAssistant, PollInterval: time.Second},
		Pipeline: PipelineConfig{
			ClassifyWindow:   8 * time.Hour,
			MaxParseAttempts: 3,
			BodyLimit:        2000,
			SenderMatch:      "exact",
		},
		Tables: TablesConfig{Submissions: "Live submissions", Declines: "declines", ClassifierLog: "classifier_log", LenderContacts: "lender_contacts"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"sender match", func(c *Config) { c.Pipeline.SenderMatch = "fuzzy" }, "sender_match"},
		{"parse attempts", func(c *Config) { c.Pipeline.MaxParseAttempts = 0 }, "max_parse_attempts"},
		{"window", func(c *Config) { c.Pipeline.ClassifyWindow = 0 }, "classify_window"},
		{"poll", func(c *Config) { c.Oracle.PollInterval = 0 }, "poll_interval"},
		{"table", func(c *Config) { c.Tables.Declines = " " }, "tables.declines"},
		{"scheduler disabled", func(c *Config) { c.Scheduler.ClassifyInterval = -time.Second }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRequireChecks(t *testing.T) {
	cfg := validConfig()

	err := cfg.RequireDatabase()
	assert.True(t, apperr.HasCode(err, apperr.CodeConfigError))
	cfg.Database.URL = "postgres://localhost/tracker"
	assert.NoError(t, cfg.RequireDatabase())

	err = cfg.RequireMailbox()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLIENT_ID, CLIENT_SECRET, REFRESH_TOKEN")
	cfg.Google = GoogleConfig{ClientID: "id", ClientSecret: "secret", RefreshToken: "rt"}
	assert.NoError(t, cfg.RequireMailbox())
	assert.Error(t, cfg.RequireOAuth())

	cfg.Oracle.OpenAIAPIKey = "sk"
	assert.Error(t, cfg.RequireOracle())
	cfg.Oracle.AssistantID = "asst_1"
	assert.NoError(t, cfg.RequireOracle())

	cfg.Oracle.Provider = OracleAnthropic
	assert.Error(t, cfg.RequireOracle())
	cfg.Oracle.AnthropicAPIKey = "ak"
	assert.NoError(t, cfg.RequireOracle())
}

func TestLoadLenders(t *testing.T) {
	path := writeFile(t, "lenders.yaml", `
Acme Capital:
  - deals@acme.com
  - UW@Acme.com
Fundbox: [submissions@fundbox.com]
`)
	lenders, err := LoadLenders(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"deals@acme.com", "UW@Acme.com"}, lenders["Acme Capital"])
	assert.Equal(t, []string{"submissions@fundbox.com"}, lenders["Fundbox"])

	empty, err := LoadLenders("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = LoadLenders(writeFile(t, "bad.yaml", "- just\n- a list\n"))
	assert.Error(t, err)
}
