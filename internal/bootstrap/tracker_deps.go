// Package bootstrap wires configuration, stores and services into the
// runnable API, scheduler and CLI stages.
package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	httpadapter "reply_tracker/adapter/in/http"
	"reply_tracker/adapter/out/oracle"
	"reply_tracker/adapter/out/persistence"
	"reply_tracker/adapter/out/provider"
	"reply_tracker/config"
	"reply_tracker/core/domain"
	"reply_tracker/core/port/in"
	"reply_tracker/core/port/out"
	"reply_tracker/core/service/classification"
	"reply_tracker/core/service/pipeline"
	"reply_tracker/core/service/reply"
	"reply_tracker/infra/database"
	"reply_tracker/pkg/cache"
	"reply_tracker/pkg/logger"
	"reply_tracker/pkg/metrics"
	"reply_tracker/pkg/resilience"
)

const contactCachePrefix = "reply_tracker:"

type Dependencies struct {
	Config *config.Config
	DB     *pgxpool.Pool
	SQLDB  *sqlx.DB
	// Redis is nil when REDIS_URL is unset.
	Redis *redis.Client

	Submissions *persistence.SubmissionAdapter
	Outcomes    *persistence.OutcomeAdapter
	Contacts    out.LenderContactRepository
	Directory   *domain.LenderDirectory

	// Matcher and Classifier stay nil when their credentials are missing;
	// the runner then reports a config error for those stages.
	Matcher    in.ReplyMatcher
	Classifier in.ReplyClassifier
	Runner     *pipeline.Runner
	RunStats   *metrics.Registry

	OAuth       *provider.OAuthClient
	OAuthStates out.OAuthStateStore
}

// NewDependencies connects to the store (and Redis when configured) and
// builds every service. The returned cleanup closes all connections.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, nil, err
	}

	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, db.Close)

	deps.SQLDB = database.NewSQLX(db)
	cleanups = append(cleanups, func() { _ = deps.SQLDB.Close() })

	if cfg.Database.AutoMigrate {
		if _, err := database.Migrate(ctx, deps.SQLDB.DB); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	if cfg.Redis.URL != "" {
		rdb, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Redis = rdb
		cleanups = append(cleanups, func() { _ = rdb.Close() })
	} else {
		logger.Warn("REDIS_URL not set: run lock is process-local and OAuth state is kept in memory")
	}

	deps.Submissions = persistence.NewSubmissionAdapter(db, cfg.Tables.Submissions)
	deps.Outcomes = persistence.NewOutcomeAdapter(deps.SQLDB, cfg.Tables.Declines, cfg.Tables.ClassifierLog)

	var contacts out.LenderContactRepository = persistence.NewLenderContactAdapter(deps.SQLDB, cfg.Tables.LenderContacts)
	var lock out.RunLock
	if deps.Redis != nil {
		contacts = persistence.NewCachedLenderContactAdapter(contacts, cache.NewRedisCache(deps.Redis, contactCachePrefix), cfg.Redis.ContactCacheTTL)
		lock = persistence.NewRedisRunLock(deps.Redis)
		deps.OAuthStates = persistence.NewRedisOAuthStateStore(deps.Redis)
	} else {
		deps.OAuthStates = persistence.NewMemoryOAuthStateStore()
	}
	deps.Contacts = contacts

	directory, err := loadDirectory(ctx, cfg.Pipeline.LenderFile, contacts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Directory = directory

	gmailCfg := gmailConfig(cfg.Google)
	deps.OAuth = provider.NewOAuthClient(gmailCfg)
	if err := cfg.RequireOAuth(); err != nil {
		logger.WithError(err).Info("OAuth bootstrap endpoints will report a config error")
	}

	if err := cfg.RequireMailbox(); err != nil {
		logger.WithError(err).Warn("Reply matchers disabled")
	} else {
		gateway, err := provider.NewGmailGateway(ctx, gmailCfg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Matcher = reply.NewService(gateway, deps.Submissions, strategyConfig(cfg.Pipeline, directory), matcherConfig(cfg))
	}

	if err := cfg.RequireOracle(); err != nil {
		logger.WithError(err).Warn("Reply classifier disabled")
	} else {
		backend, err := oracle.New(oracleConfig(cfg.Oracle))
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Classifier = classification.NewService(deps.Submissions, deps.Outcomes, backend, classifierConfig(cfg.Pipeline))
	}

	deps.Runner = pipeline.NewRunner(deps.Matcher, deps.Classifier, lock, cfg.Redis.LockTTL)
	deps.RunStats = metrics.NewRegistry(metrics.DefaultWindow)
	deps.Runner.SetRecorder(deps.RunStats)

	logger.WithFields(map[string]any{
		"lenders":    directory.Len(),
		"redis":      deps.Redis != nil,
		"matcher":    deps.Matcher != nil,
		"classifier": deps.Classifier != nil,
		"dry_run":    cfg.Pipeline.DryRun,
	}).Info("Dependencies ready")

	return deps, cleanup, nil
}

// HealthChecks returns the readiness probes for the API.
func (d *Dependencies) HealthChecks() map[string]httpadapter.PingFunc {
	checks := map[string]httpadapter.PingFunc{
		"postgres": d.DB.Ping,
		"redis":    nil,
	}
	if d.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() }
	}
	return checks
}

// loadDirectory merges the static lender file with the lender_contacts
// table. A missing table only logs; the file alone is still usable.
func loadDirectory(ctx context.Context, path string, contacts out.LenderContactRepository) (*domain.LenderDirectory, error) {
	lenders, err := config.LoadLenders(path)
	if err != nil {
		return nil, err
	}
	directory := domain.NewLenderDirectory(lenders)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	stored, err := contacts.ListContacts(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		logger.WithError(err).Warn("Lender contacts unavailable, using lender file only")
		return directory, nil
	}
	for lender, emails := range stored {
		directory.Add(lender, emails...)
	}
	return directory, nil
}

func gmailConfig(g config.GoogleConfig) provider.GmailConfig {
	return provider.GmailConfig{
		ClientID:          g.ClientID,
		ClientSecret:      g.ClientSecret,
		RedirectURL:       g.RedirectURL,
		RefreshToken:      g.RefreshToken,
		RequestsPerSecond: g.RequestsPerSecond,
		Burst:             g.Burst,
	}
}

func matcherConfig(cfg *config.Config) reply.Config {
	rc := reply.DefaultConfig()
	rc.Query.NewerThanDays = cfg.Google.NewerThanDays
	rc.Query.MaxResults = cfg.Google.MaxResults
	rc.BodyLimit = cfg.Pipeline.BodyLimit
	rc.CutoffSkew = cfg.Pipeline.CutoffSkew
	return rc
}

func strategyConfig(p config.PipelineConfig, directory *domain.LenderDirectory) reply.Strategy {
	return reply.Strategy{
		Directory:          directory,
		SenderMatch:        reply.ParseSenderMatch(p.SenderMatch),
		SearchSubject:      p.SearchSubject,
		SearchBody:         p.SearchBody,
		UseRecipientEmails: p.UseRecipientEmails,
	}
}

func classifierConfig(p config.PipelineConfig) classification.Config {
	cc := classification.DefaultConfig()
	cc.Window = p.ClassifyWindow
	cc.DryRun = p.DryRun
	cc.MaxParseAttempts = p.MaxParseAttempts
	cc.BatchLimit = p.ClassifyBatchLimit
	cc.Content.Strict = p.StrictContent
	cc.Content.MinLength = p.MinContentLength
	return cc
}

func oracleConfig(o config.OracleConfig) oracle.Config {
	return oracle.Config{
		Provider:    o.Provider,
		APIKey:      o.APIKey(),
		AssistantID: o.AssistantID,
		Model:       o.Model,
		MaxTokens:   o.MaxTokens,
		BaseURL:     o.BaseURL,
		Timeout:     o.Timeout,
		Poll: resilience.PollPolicy{
			Interval:    o.PollInterval,
			MaxAttempts: o.PollMaxAttempts,
			MaxElapsed:  o.PollMaxElapsed,
		},
	}
}
