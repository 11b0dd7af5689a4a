package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"forex_backend/internal/platform/config"
	jwtmw "forex_backend/internal/platform/jwt"
)

func newTokenCmd(g *globalOptions) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := jwtmw.NewGenerator(cfg.Auth.JWTSecret, ttl).GenerateToken(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "ingest-cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.tokenTTL)")
	return cmd
}
