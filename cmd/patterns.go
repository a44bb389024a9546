package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/claimcheck/internal/extract"
	"github.com/sells-group/claimcheck/internal/store"
)

var patternsAll bool

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List learned extraction patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		learned, err := st.LoadPatterns(ctx)
		if err != nil {
			return eris.Wrap(err, "load learned patterns")
		}
		if !patternsAll {
			return writeJSON(cmd.OutOrStdout(), learned)
		}
		ex := extract.New(extract.OptionsFromConfig(cfg.Extract), learned)
		return writeJSON(cmd.OutOrStdout(), ex.Patterns())
	},
}

func init() {
	patternsCmd.Flags().BoolVar(&patternsAll, "all", false, "include the base pattern library")
	rootCmd.AddCommand(patternsCmd)
}
