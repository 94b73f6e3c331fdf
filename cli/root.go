package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"cronwatch/config"
	"cronwatch/db"
)

// Version is stamped at build time with -ldflags "-X cronwatch/cli.Version=...".
var Version = "dev"

func Execute() error {
	rootCmd := &cobra.Command{
		Use:           "cronwatch",
		Short:         "Dead man's switch for scheduled jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(dbCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(nextCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	})

	return rootCmd.Execute()
}

func setupLogging(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))
}

// openStore returns the Postgres store when DATABASE_URL is set, otherwise an
// in-memory store whose state is lost on exit.
func openStore(ctx context.Context, cfg config.Config) (db.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory store")
		return db.NewMemoryStore(), func() {}, nil
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, nil, err
	}
	slog.Info("database schema verified")
	st := db.NewPostgresStore(conn)
	return st, func() { _ = st.Close() }, nil
}
