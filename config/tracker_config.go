// Package config loads the reply tracker configuration from an optional YAML
// file and the environment.
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Google    GoogleConfig    `yaml:"google"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Tables    TablesConfig    `yaml:"tables"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"HOST"                    env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"PORT"                    env-default:"3000"`
	Environment     string        `yaml:"environment"      env:"ENV"                     env-default:"development"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"10m"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"15s"`
	// TriggerToken guards the run endpoints when set.
	TriggerToken string `yaml:"trigger_token" env:"TRIGGER_TOKEN"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY" env-default:"false"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string        `yaml:"url"                env:"DATABASE_URL"`
	MaxConns        int32         `yaml:"max_conns"          env:"DB_MAX_CONNS"          env-default:"10"`
	MinConns        int32         `yaml:"min_conns"          env:"DB_MIN_CONNS"          env-default:"1"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DB_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" env-default:"30m"`
	AutoMigrate     bool          `yaml:"auto_migrate"       env:"DB_AUTO_MIGRATE"       env-default:"false"`
}

// RedisConfig is optional. Without a URL the run lock falls back to the
// scheduler's in-process guard and OAuth state lives in memory.
type RedisConfig struct {
	URL             string        `yaml:"url"               env:"REDIS_URL"`
	PoolSize        int           `yaml:"pool_size"         env:"REDIS_POOL_SIZE"         env-default:"10"`
	LockTTL         time.Duration `yaml:"lock_ttl"          env:"RUN_LOCK_TTL"            env-default:"15m"`
	ContactCacheTTL time.Duration `yaml:"contact_cache_ttl" env:"LENDER_CONTACT_CACHE_TTL" env-default:"10m"`
}

// GoogleConfig holds Gmail OAuth credentials and listing settings.
type GoogleConfig struct {
	ClientID          string  `yaml:"client_id"           env:"CLIENT_ID"`
	ClientSecret      string  `yaml:"client_secret"       env:"CLIENT_SECRET"`
	RedirectURL       string  `yaml:"redirect_url"        env:"REDIRECT_URI"`
	RefreshToken      string  `yaml:"refresh_token"       env:"REFRESH_TOKEN"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"GMAIL_RPS"            env-default:"10"`
	Burst             int     `yaml:"burst"               env:"GMAIL_BURST"          env-default:"10"`
	NewerThanDays     int     `yaml:"newer_than_days"     env:"GMAIL_NEWER_THAN_DAYS" env-default:"7"`
	MaxResults        int64   `yaml:"max_results"         env:"GMAIL_MAX_RESULTS"    env-default:"100"`
}

// OracleConfig selects and tunes the classification backend.
type OracleConfig struct {
	Provider        string        `yaml:"provider"          env:"ORACLE_PROVIDER"          env-default:"assistant"`
	OpenAIAPIKey    string        `yaml:"openai_api_key"    env:"OPENAI_API_KEY"`
	AssistantID     string        `yaml:"assistant_id"      env:"OPENAI_ASSISTANT_ID"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key" env:"ANTHROPIC_API_KEY"`
	Model           string        `yaml:"model"             env:"ORACLE_MODEL"`
	MaxTokens       int           `yaml:"max_tokens"        env:"ORACLE_MAX_TOKENS"        env-default:"512"`
	BaseURL         string        `yaml:"base_url"          env:"ORACLE_BASE_URL"`
	Timeout         time.Duration `yaml:"timeout"           env:"ORACLE_TIMEOUT"           env-default:"60s"`
	PollInterval    time.Duration `yaml:"poll_interval"     env:"ORACLE_POLL_INTERVAL"     env-default:"1s"`
	PollMaxAttempts int           `yaml:"poll_max_attempts" env:"ORACLE_POLL_MAX_ATTEMPTS" env-default:"60"`
	PollMaxElapsed  time.Duration `yaml:"poll_max_elapsed"  env:"ORACLE_POLL_MAX_ELAPSED"  env-default:"90s"`
}

// APIKey returns the key for the selected provider.
func (o OracleConfig) APIKey() string {
	if o.Provider == OracleAnthropic {
		return o.AnthropicAPIKey
	}
	return o.OpenAIAPIKey
}

// PipelineConfig tunes matching and classification.
type PipelineConfig struct {
	ClassifyWindow     time.Duration `yaml:"classify_window"      env:"CLASSIFY_WINDOW"       env-default:"8h"`
	DryRun             bool          `yaml:"dry_run"              env:"DRY_RUN"               env-default:"false"`
	MaxParseAttempts   int           `yaml:"max_parse_attempts"   env:"MAX_PARSE_ATTEMPTS"    env-default:"3"`
	ClassifyBatchLimit uint64        `yaml:"classify_batch_limit" env:"CLASSIFY_BATCH_LIMIT"  env-default:"0"`
	CutoffSkew         time.Duration `yaml:"cutoff_skew"          env:"HEURISTIC_CUTOFF_SKEW" env-default:"30s"`
	BodyLimit          int           `yaml:"body_limit"           env:"REPLY_BODY_LIMIT"      env-default:"2000"`
	SenderMatch        string        `yaml:"sender_match"         env:"SENDER_MATCH"          env-default:"exact"`
	SearchSubject      bool          `yaml:"search_subject"       env:"SEARCH_SUBJECT"        env-default:"true"`
	SearchBody         bool          `yaml:"search_body"          env:"SEARCH_BODY"           env-default:"true"`
	UseRecipientEmails bool          `yaml:"use_recipient_emails" env:"USE_RECIPIENT_EMAILS"  env-default:"true"`
	StrictContent      bool          `yaml:"strict_content"       env:"STRICT_CONTENT"        env-default:"false"`
	MinContentLength   int           `yaml:"min_content_length"   env:"MIN_CONTENT_LENGTH"    env-default:"15"`
	LenderFile         string        `yaml:"lender_file"          env:"LENDER_FILE"`
}

// TablesConfig names the tables the pipeline reads and writes.
type TablesConfig struct {
	Submissions    string `yaml:"submissions"     env:"TABLE_SUBMISSIONS"     env-default:"Live submissions"`
	Declines       string `yaml:"declines"        env:"TABLE_DECLINES"        env-default:"declines"`
	ClassifierLog  string `yaml:"classifier_log"  env:"TABLE_CLASSIFIER_LOG"  env-default:"classifier_log"`
	LenderContacts string `yaml:"lender_contacts" env:"TABLE_LENDER_CONTACTS" env-default:"lender_contacts"`
}

// SchedulerConfig sets per-stage intervals. A non-positive interval disables
// the stage. Zero in a YAML file is replaced by the default, so files use a
// negative value such as -1s.
type SchedulerConfig struct {
	ThreadInterval    time.Duration `yaml:"thread_interval"    env:"SCHEDULE_THREAD"    env-default:"10m"`
	HeuristicInterval time.Duration `yaml:"heuristic_interval" env:"SCHEDULE_HEURISTIC" env-default:"15m"`
	ClassifyInterval  time.Duration `yaml:"classify_interval"  env:"SCHEDULE_CLASSIFY"  env-default:"10m"`

	// StageTimeout bounds one scheduled run.
	StageTimeout time.Duration `yaml:"stage_timeout" env:"SCHEDULE_STAGE_TIMEOUT" env-default:"10m"`
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}
