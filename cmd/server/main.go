package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tpia/config"
	"tpia/internal/app"
	"tpia/internal/auth"
	cronrunner "tpia/internal/cron"
	"tpia/internal/database"
	"tpia/internal/domain"
	"tpia/internal/logger"
	"tpia/internal/router"
)

type rootFlags struct {
	configPath string
	envOnly    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "tpia",
		Short:         "TPIA investment cycle and ledger engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "config/config.yaml", "path to the YAML config file")
	root.PersistentFlags().BoolVar(&f.envOnly, "env-only", false, "read configuration from TPIA_* environment variables only")

	root.AddCommand(
		serveCmd(f),
		migrateCmd(f),
		sweepCmd(f),
		startClustersCmd(f),
		tokenCmd(f),
	)
	return root
}

// bootstrap loads config, logger and database for a command.
func bootstrap(f *rootFlags) (*config.Config, *zap.Logger, func(), error) {
	cfg, err := config.Load(f.configPath, f.envOnly)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, func() { _ = log.Sync() }, nil
}

func openApp(ctx context.Context, f *rootFlags) (*app.App, func(), error) {
	cfg, log, syncLog, err := bootstrap(f)
	if err != nil {
		return nil, nil, err
	}
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		syncLog()
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	a, err := app.New(ctx, cfg, db, log)
	if err != nil {
		syncLog()
		return nil, nil, err
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		syncLog()
	}
	return a, cleanup, nil
}

func serveCmd(f *rootFlags) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the cycle scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := openApp(ctx, f)
			if err != nil {
				return err
			}
			defer cleanup()
			log := a.Log

			if migrate {
				if err := database.AutoMigrate(a.DB); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				if err := app.Seed(ctx, a.DB); err != nil {
					return fmt.Errorf("seed: %w", err)
				}
			}

			var runner *cronrunner.Runner
			if a.Config.Scheduler.Enabled {
				runner = cronrunner.New(log.Named("cron"), ctx)
				if err := a.Scheduler.Register(runner, a.Config.Scheduler); err != nil {
					return err
				}
				runner.Start()
			} else {
				log.Info("scheduler disabled")
			}

			srv := &http.Server{
				Addr:         ":" + a.Config.Server.Port,
				Handler:      router.Setup(ctx, a),
				ReadTimeout:  a.Config.Server.ReadTimeout,
				WriteTimeout: a.Config.Server.WriteTimeout,
			}
			errCh := make(chan error, 1)
			go func() {
				log.Info("server listening", zap.String("addr", srv.Addr), zap.String("tx_mode", string(a.Runner.Mode())))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					log.Error("listen failed", zap.Error(err))
				}
			}
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("server shutdown", zap.Error(err))
			}
			if runner != nil {
				runner.Stop()
			}
			log.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "run migrations and seed settings before serving")
	return cmd
}

func migrateCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and seed default economic settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, syncLog, err := bootstrap(f)
			if err != nil {
				return err
			}
			defer syncLog()
			db, err := database.NewDB(&cfg.Database)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			if err := database.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := app.Seed(cmd.Context(), db); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			log.Info("migration complete")
			return nil
		},
	}
}

func sweepCmd(f *rootFlags) *cobra.Command {
	var clusterID uint
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Complete every due cycle once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := openApp(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer cleanup()
			if clusterID != 0 {
				report, err := a.Cycles.SweepCluster(cmd.Context(), clusterID)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			}
			report, err := a.Cycles.SweepAll(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().UintVar(&clusterID, "cluster", 0, "sweep a single cluster")
	return cmd
}

func startClustersCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start-clusters",
		Short: "Start every filled cluster whose members are approved",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := openApp(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer cleanup()
			n, err := a.Clusters.StartFilledClusters(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"started_clusters": n})
		},
	}
}

// tokenCmd mints an access token for operators and integration tests. Users
// are owned by the identity service, so the engine has no login endpoint.
func tokenCmd(f *rootFlags) *cobra.Command {
	var role, email string
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint an access token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			cfg, err := config.Load(f.configPath, f.envOnly)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			tok, err := auth.GenerateAccessToken(&cfg.JWT, uint(id), email, role)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&role, "role", domain.RoleInvestor, "token role (INVESTOR or ADMIN)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
