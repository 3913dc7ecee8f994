package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"reply_tracker/core/port/in"
	"reply_tracker/infra/database"
	"reply_tracker/internal/bootstrap"
	"reply_tracker/pkg/logger"
)

var (
	withScheduler bool
	dryRun        bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the trigger endpoints, OAuth bootstrap and health probes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), withScheduler)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the stage scheduler without the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		scheduler := bootstrap.NewScheduler(deps)
		if scheduler.Start(ctx) == 0 {
			return errors.New("every scheduler stage is disabled")
		}
		<-ctx.Done()
		scheduler.Stop()
		return nil
	},
}

func stageCmd(use, short, stage string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), stage)
		},
	}
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify replied, unclassified submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg = bootstrap.WithDryRun(cfg, dryRun)
		return runOnce(cmd.Context(), in.StageClassify)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSQL(cmd.Context(), func(ctx context.Context, db *sql.DB) error {
			results, err := database.Migrate(ctx, db)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				logger.Info("Schema is up to date")
			}
			for _, r := range results {
				logger.WithFields(map[string]any{"version": r.Version, "duration": r.Duration}).Info("Applied %s", r.Path)
			}
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSQL(cmd.Context(), func(ctx context.Context, db *sql.DB) error {
			statuses, err := database.Status(ctx, db)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				fmt.Fprintf(cmd.OutOrStdout(), "%05d  %-10s  %s\n", s.Version, s.State, s.Path)
			}
			return nil
		})
	},
}

func init() {
	serveCmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "also run the stage scheduler in this process")
	classifyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "audit only: write no outcomes and mark nothing classified")

	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
	rootCmd.AddCommand(
		serveCmd,
		workerCmd,
		stageCmd("check-replies", "Match replies by In-Reply-To", in.StageThread),
		stageCmd("check-heuristic", "Match replies by sender and business name", in.StageHeuristic),
		classifyCmd,
		stageCmd("run-all", "Run thread, heuristic and classify in order", "all"),
		migrateCmd,
	)
}

func runOnce(parent context.Context, stage string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	_, err = bootstrap.RunStage(ctx, deps.Runner, stage)
	return err
}

func serve(parent context.Context, scheduled bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	app := bootstrap.NewAPI(deps)
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))

	if cfg.IsDevelopment() && cfg.Google.RefreshToken == "" {
		logger.Info("No REFRESH_TOKEN set; open http://%s/auth to mint one", addr)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting API server on %s", addr)
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down API server (timeout: %v)...", cfg.Server.ShutdownTimeout)
		return app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout)
	})
	if scheduled {
		scheduler := bootstrap.NewScheduler(deps)
		scheduler.Start(gctx)
		g.Go(func() error {
			<-gctx.Done()
			scheduler.Stop()
			return nil
		})
	}
	return g.Wait()
}

func withSQL(parent context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	pool, err := database.NewPostgres(parent, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	db := database.NewSQLX(pool)
	defer db.Close()
	return fn(parent, db.DB)
}
