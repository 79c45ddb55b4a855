package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gregLibert/cardemu/pkg/apdutable"
	"github.com/gregLibert/cardemu/pkg/config"
	"github.com/gregLibert/cardemu/pkg/dispatch"
	"github.com/gregLibert/cardemu/pkg/logging"
	"github.com/gregLibert/cardemu/pkg/relay"
	"github.com/gregLibert/cardemu/pkg/resolver"
)

var (
	// Global flags
	cfgFile   string
	logLevel  string
	tableFlag string
	modeFlag  string

	// Shared state set during PersistentPreRun
	cfg    config.Config
	logger zerolog.Logger
)

// rootCmd is the base command for cardemu.
var rootCmd = &cobra.Command{
	Use:   "cardemu",
	Short: "Emulate a contactless smart card from a command/response table or a network relay",
	Long: `cardemu answers ISO 7816-4 command APDUs the way an emulated card would.
Responses come from a local definition table or are relayed over TCP to an
oracle that owns a real card (or another table).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c := config.Default()
		if cfgFile != "" {
			var err error
			c, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
		}

		// Override config with flags
		if logLevel != "" {
			c.LogLevel = logLevel
		}
		if tableFlag != "" {
			c.Table = tableFlag
		}
		if modeFlag != "" {
			mode, err := dispatch.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			c.Mode = mode
		}

		cfg = c
		logger = logging.Configure(logging.ProfileRuntime, cfg.LogLevel)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// RootCmd returns the root cobra.Command for testing purposes.
func RootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error, off (default \"info\")")
	rootCmd.PersistentFlags().StringVar(&tableFlag, "table", "", "command/response definition file, .toml or .yaml (default is the built-in sample card)")
	rootCmd.PersistentFlags().StringVar(&modeFlag, "mode", "", "response source: local or relay (default \"local\")")
}

// loadTable reads the configured definition file, or the built-in sample card.
func loadTable() (*apdutable.Table, error) {
	if cfg.Table == "" {
		return apdutable.ParseTOML(sampleCard)
	}
	return apdutable.Load(cfg.Table)
}

// newCoordinator wires the table, the relay client and the configured mode.
// In relay mode it waits for the connection attempt so the first command is
// not raced against the dial.
func newCoordinator(ctx context.Context) (*dispatch.Coordinator, error) {
	table, err := loadTable()
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("entries", table.Len()).Str("table", cfg.Table).Msg("table loaded")

	client := relay.NewClient(cfg.Relay, logger)
	coord := dispatch.New(resolver.New(table), client, logger)
	if cfg.Mode != dispatch.ModeLocalTable {
		coord.SetMode(ctx, cfg.Mode)
		if err := coord.Wait(); err != nil {
			return nil, err
		}
	}
	return coord, nil
}
