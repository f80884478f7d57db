// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/krylovex/gridpick-cli/internal/config"
	"github.com/krylovex/gridpick-cli/internal/observability"
)

var (
	cfgFile string

	// cfg holds the resolved configuration. The root PersistentPreRunE
	// populates it before any subcommand runs; `solve` re-resolves it after
	// binding its flags so overrides land with the right precedence.
	cfg *config.Config
)

// rootCmd is the base command. Execute runs it; tests build pristine copies
// through newRootCmd to avoid state leaking between cases.
var rootCmd = newRootCmd()

// newRootCmd assembles the root command with its persistent flags and all
// subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "gridpick-cli",
		Short:   "Gridpick resolves coordinate-selection image captchas.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Runs before every subcommand, setting up config and logging.
			if err := initializeConfig(); err != nil {
				return err
			}

			resolved, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				// Fall back to a plain console logger so the failure is
				// at least readable.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "gridpick-cli"})
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			cfg = resolved

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting gridpick-cli", zap.String("version", Version))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./gridpick.yaml, then ~/.gridpick/gridpick.yaml)")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(newSolveCmd())
	cmd.AddCommand(newBalanceCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command under the given context. main.go passes a
// signal-aware context so Ctrl-C cancels the run cleanly.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		observability.Sync()
		os.Exit(1)
	}
	observability.Sync()
}

// initializeConfig seeds viper with defaults, then layers in the config file
// and GRIDPICK_* environment variables.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".gridpick"))
		}
		v.SetConfigName("gridpick")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("GRIDPICK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file found; defaults and environment cover everything.
	}
	return nil
}
