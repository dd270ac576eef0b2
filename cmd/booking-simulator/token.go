package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/pkg/config"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/middleware"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	c := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for the HTTP API using JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.JWT.AccessTokenTTL
			}

			token, err := middleware.GenerateToken(userID, &middleware.AuthConfig{
				Secret: cfg.JWT.Secret,
				Issuer: cfg.JWT.Issuer,
			}, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	c.Flags().StringVar(&userID, "user", "", "user id placed in the token")
	c.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default JWT_ACCESS_TOKEN_TTL)")
	return c
}
