package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cronwatch/config"
	"cronwatch/middleware"
)

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			token, err := middleware.GenerateToken([]byte(cfg.JWTSecret), subject, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cronwatch-client", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 7*24*time.Hour, "Token lifetime")
	return cmd
}
