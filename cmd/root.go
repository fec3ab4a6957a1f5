// Package cmd contains the CLI commands of vintage-mod-manager.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"vintage-mod-manager/config"
	"vintage-mod-manager/logger"
	"vintage-mod-manager/ui"

	"github.com/spf13/cobra"
)

var (
	verbose  bool
	settings config.Settings

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "vintage-mod-manager",
		Short: "Download Vintage Story mods that match your game version",
		Long: `vintage-mod-manager finds your Vintage Story installation, works out
which game version tag the mod database uses for it, and downloads
compatible releases of the mods you ask for.

Mod lists can be shared as a compact mod string (see 'export').`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			settings, err = config.LoadSettings(".")
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			if err := logger.InitLogger(settings.ConfigDir, verbose); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			logger.Log.Debugw("Settings loaded", "command", cmd.CommandPath(), "mods_dir", settings.ModsDir, "config_dir", settings.ConfigDir)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}
