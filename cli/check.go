package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cronwatch/config"
	"cronwatch/services"
)

// checkCmd runs a single detection pass, for use from an external scheduler
// instead of the built-in loop.
func checkCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one detection pass and print open alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// A fresh in-memory store has no history to check.
			if cfg.DatabaseURL == "" {
				return errors.New("check needs DATABASE_URL: it reads the state a running server persisted")
			}
			setupLogging(cfg.LogLevel)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			var sinks []services.AlertSink
			if cfg.SlackWebhookURL != "" {
				sinks = append(sinks, services.NewSlackSink(cfg.SlackWebhookURL))
			}
			if cfg.EmailEnabled() {
				sinks = append(sinks, services.NewEmailSink(cfg.SendGridAPIKey, cfg.AlertEmail))
			}
			monitor := services.New(services.Options{
				Store:        store,
				Sinks:        sinks,
				StoreTimeout: cfg.StoreTimeout,
				Workers:      cfg.DetectionWorkers,
			})
			defer monitor.Wait()

			if cfg.JobsFile != "" {
				jobs, err := config.LoadJobsFile(cfg.JobsFile)
				if err != nil {
					return err
				}
				if err := monitor.Seed(ctx, jobs); err != nil {
					return err
				}
			}

			if err := monitor.Tick(ctx); err != nil {
				return fmt.Errorf("detection failed: %w", err)
			}

			alerts, err := monitor.ListAlerts(ctx, false, "")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(alerts)
			}
			if len(alerts) == 0 {
				fmt.Fprintln(out, "ok: no open alerts")
				return nil
			}
			for _, a := range alerts {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", a.DetectedTime.Format(time.RFC3339), a.Type, a.JobID, a.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print alerts as JSON")
	return cmd
}
