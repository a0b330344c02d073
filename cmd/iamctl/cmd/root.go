package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/iam-service/internal/auth"
	"github.com/spec-kit/iam-service/internal/config"
	"github.com/spec-kit/iam-service/internal/gateway"
	"github.com/spec-kit/iam-service/internal/observability"
	"github.com/spec-kit/iam-service/internal/persistence"
	"github.com/spec-kit/iam-service/internal/service"
)

// Session is an opened IAM service plus whatever must be released afterwards.
type Session struct {
	IAM   *service.IAMService
	close func()
}

// Close releases the session's connections.
func (s *Session) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

// Opener builds a loaded session. Tests swap it for an in-memory one.
type Opener func(ctx context.Context) (*Session, error)

type rootOptions struct {
	actor string
	open  Opener
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd(OpenFromEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCmd assembles the iamctl command tree.
func NewRootCmd(open Opener) *cobra.Command {
	opts := &rootOptions{open: open}

	root := &cobra.Command{
		Use:   "iamctl",
		Short: "iamctl - administer users, roles and permissions",
		Long: `iamctl works directly against the IAM system of record. Every change goes
through the same command executor as the HTTP API, so the same validation,
system-role protection and membership bookkeeping apply.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.actor, "actor", "iamctl", "Actor recorded on emitted events")

	root.AddCommand(newUsersCmd(opts))
	root.AddCommand(newRolesCmd(opts))
	root.AddCommand(newPermissionsCmd(opts))
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newTokenCmd())
	return root
}

// session opens a loaded service and a context carrying the actor.
func (o *rootOptions) session(cmd *cobra.Command) (context.Context, *Session, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sess, err := o.open(ctx)
	if err != nil {
		return nil, nil, err
	}
	return service.WithActor(ctx, o.actor), sess, nil
}

// OpenFromEnv connects using the same environment as the API server. Without
// POSTGRES_DSN it falls back to an empty in-memory catalog.
func OpenFromEnv(ctx context.Context) (*Session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cliLogging(cfg.Logger))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	var gw gateway.Gateway
	if pool := pg.PoolHandle(); pool != nil {
		gw = gateway.NewPostgres(pool, hasher, cfg.IAM.GatewayTimeout())
	} else {
		mem := gateway.NewMemory(hasher)
		mem.SeedDefaults(cfg.IAM.SystemRoleName)
		gw = mem
	}

	iam := service.NewIAMService(cfg.IAM, service.Dependencies{Gateway: gw, Logger: logger})
	if err := iam.Load(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return &Session{
		IAM: iam,
		close: func() {
			pg.Close()
			_ = logger.Sync()
		},
	}, nil
}

func newMigrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations to the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Postgres.DSN == "" {
				return fmt.Errorf("POSTGRES_DSN is required")
			}
			if dir == "" {
				dir = cfg.Postgres.MigrationsDir
			}
			logger, err := observability.NewLogger(cliLogging(cfg.Logger))
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pg.Close()

			if err := persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), dir, logger); err != nil {
				logger.Error("migration failed", zap.Error(err))
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Migrations directory (defaults to POSTGRES_MIGRATIONS_DIR)")
	return cmd
}

// cliLogging keeps stdout for command output.
func cliLogging(cfg config.LoggerConfig) config.LoggerConfig {
	if cfg.Level == "" || cfg.Level == "info" {
		cfg.Level = "warn"
	}
	cfg.Format = "console"
	cfg.Output = "stderr"
	return cfg
}
