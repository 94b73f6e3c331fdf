package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cronwatch/config"
	"cronwatch/db"
)

func dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database utilities",
	}
	cmd.AddCommand(dbInitCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the embedded schema",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), db.Schema())
		},
	})
	return cmd
}

func dbInitCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Apply the schema to PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				dsn = cfg.DatabaseURL
			}
			if dsn == "" {
				return fmt.Errorf("missing --dsn (or set DATABASE_URL)")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			conn, err := db.Open(ctx, dsn)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := db.Migrate(ctx, conn); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok: schema applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN (defaults to DATABASE_URL)")
	return cmd
}
