package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claimcheck/internal/config"
)

var cfg *config.Config

// Flag overrides applied on top of file and environment configuration.
var (
	catalogFlag     string
	storeDriverFlag string
	logLevelFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "claimcheck",
	Short: "Adaptive extraction and validation of per-diem claims",
	Long:  "Profiles documents, picks an extraction strategy from past runs, extracts amounts and regulation numerals across several backends, and validates claimed concepts against a normative catalog.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyOverrides(cmd, c)
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		zap.L().Debug("claimcheck: config loaded",
			zap.String("command", cmd.Name()),
			zap.String("store_driver", cfg.Store.Driver),
			zap.String("catalog", cfg.Catalog.Path),
		)
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&catalogFlag, "catalog", "", "path to the normative catalog (overrides catalog.path)")
	f.StringVar(&storeDriverFlag, "store-driver", "", "pattern and history store: sqlite, postgres or memory")
	f.StringVar(&logLevelFlag, "log-level", "", "log level (overrides log.level)")
}

// applyOverrides copies explicitly set persistent flags into c.
func applyOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("catalog") {
		c.Catalog.Path = catalogFlag
	}
	if flags.Changed("store-driver") {
		c.Store.Driver = storeDriverFlag
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevelFlag
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
