package main

import (
	"fmt"
	"time"

	"codeberg.org/crawlsearch/server/internal/auth"
	"codeberg.org/crawlsearch/server/internal/config"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		user  string
		email string
		admin bool
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed JWT for the admin endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadEnvironmentVariables()
			if err != nil {
				return err
			}

			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET environment variable is required")
			}

			token, err := auth.New(cfg.JWTSecret, ttl).GenerateJWT(user, email, admin)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "operator", "Subject of the token")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().BoolVar(&admin, "admin", true, "Grant admin access")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "Token lifetime")

	return cmd
}
