package cmd

import (
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/cloudguard/cli/pkg/output"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show signin service processing counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := printer(cmd)
		if err != nil {
			return err
		}
		stats, err := signinClient(cmd).Stats(cmd.Context())
		if err != nil {
			return err
		}

		return p.Print(stats, func() *output.Table {
			t := output.NewTable("METRIC", "VALUE")
			t.AddRow("since", stats.Since.Format(time.RFC3339))
			t.AddRow("received", strconv.FormatInt(stats.Received, 10))
			t.AddRow("ignored", strconv.FormatInt(stats.Ignored, 10))
			t.AddRow("rejected", strconv.FormatInt(stats.Rejected, 10))
			t.AddRow("stored", strconv.FormatInt(stats.Stored, 10))
			t.AddRow("no alert", strconv.FormatInt(stats.NoAlert, 10))
			t.AddRow("alerts", strconv.FormatInt(stats.Alerts, 10))
			t.AddRow("failed", strconv.FormatInt(stats.Failed, 10))
			for _, reason := range slices.Sorted(maps.Keys(stats.ByReason)) {
				t.AddRow("alerts."+reason, strconv.FormatInt(stats.ByReason[reason], 10))
			}
			return t
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
