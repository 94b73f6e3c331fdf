package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cronwatch/services"
)

func nextCmd() *cobra.Command {
	var (
		count    int
		timezone string
		after    string
	)
	cmd := &cobra.Command{
		Use:   "next <schedule>",
		Short: "Print the next occurrences of a cron expression",
		Example: `  cronwatch next "*/15 9-17 * * mon-fri" --count 3
  cronwatch next @daily --tz Europe/Berlin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := services.ParseScheduleIn(args[0], timezone)
			if err != nil {
				return err
			}
			from := time.Now()
			if after != "" {
				if from, err = time.Parse(time.RFC3339, after); err != nil {
					return fmt.Errorf("--after: %w", err)
				}
			}
			for i := 0; i < count; i++ {
				next, err := sched.Next(from)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), next.Format(time.RFC3339))
				from = next
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "Number of occurrences")
	cmd.Flags().StringVar(&timezone, "tz", "UTC", "IANA timezone to evaluate in")
	cmd.Flags().StringVar(&after, "after", "", "Start from this RFC3339 time instead of now")
	return cmd
}
