package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/claimcheck/internal/metrics"
	"github.com/sells-group/claimcheck/internal/store"
)

var (
	historySummary bool
	historyHours   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the performance history used to tune extraction",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		if historySummary {
			snap, err := metrics.NewCollector(st).Collect(ctx, historyHours)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), snap)
		}

		recs, err := st.ListRecords(ctx)
		if err != nil {
			return eris.Wrap(err, "list records")
		}
		return writeJSON(cmd.OutOrStdout(), recs)
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historySummary, "summary", false, "aggregate records by archetype and backend")
	historyCmd.Flags().IntVar(&historyHours, "hours", 0, "only summarise records from the last N hours (0 = all)")
	rootCmd.AddCommand(historyCmd)
}
