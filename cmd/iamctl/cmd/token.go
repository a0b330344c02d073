package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/iam-service/internal/auth"
	"github.com/spec-kit/iam-service/internal/config"
)

// newTokenCmd mints an operator bearer token signed with AUTH_JWT_SECRET, for
// scripts and consoles that call the HTTP API.
func newTokenCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an operator token for the admin API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
			token, expires, err := tokens.GenerateToken(args[0], name)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name carried in the token")
	return cmd
}
