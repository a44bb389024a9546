package main

import (
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Profile a document and extract tables, amounts and numerals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		doc, err := openDocument(ctx, args[0])
		if err != nil {
			return err
		}
		rep, err := env.Runner.Run(ctx, doc, nil)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), rep)
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
