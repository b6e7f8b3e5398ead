package cmd

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/opencorpdata/corpmap/pkg/logging"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refetch stale entities from their sources",
	Long: `Refresh finds every entity in the registry that is flagged stale or
past its refresh due time, requeries its sources, and persists the fresh
data. Entities that fail to refresh stay stale for the next run.

With --watch the command keeps running and refreshes on a cron schedule.

Examples:

  corpmap refresh
  corpmap refresh --watch
  corpmap refresh --watch --schedule "0 3 * * *"`,
	RunE: runRefresh,
}

func init() {
	flags := refreshCmd.Flags()
	flags.Bool("watch", false, "keep running and refresh on a schedule")
	flags.String("schedule", "@hourly", "cron schedule for --watch")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	refresh := func() error {
		stats, err := client.RefreshStale(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Refreshed %d entities, %d failed\n", stats.Refreshed, stats.Failed)
		return nil
	}

	watch, _ := cmd.Flags().GetBool("watch")
	if !watch {
		return refresh()
	}

	schedule, _ := cmd.Flags().GetString("schedule")
	scheduler := cron.New()
	_, err = scheduler.AddFunc(schedule, func() {
		if err := refresh(); err != nil {
			logging.Error().Err(err).Msg("Scheduled refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	fmt.Printf("Watching for stale entities (schedule %q), Ctrl-C to stop\n", schedule)
	scheduler.Start()
	<-cmd.Context().Done()
	<-scheduler.Stop().Done()
	return nil
}
