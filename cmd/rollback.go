package cmd

import (
	"errors"
	"fmt"

	"vintage-mod-manager/archive"
	"vintage-mod-manager/db"
	"vintage-mod-manager/download"
	"vintage-mod-manager/logger"
	"vintage-mod-manager/modset"
	"vintage-mod-manager/ui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rollbackCmd represents the rollback command
var rollbackCmd = &cobra.Command{
	Use:   "rollback <modid>",
	Short: "Reinstall the previously installed version of a mod",
	Long: `Reinstall the version of a mod that was installed before the current one.
Example: vintage-mod-manager rollback carrycapacity

The previous release is downloaded again from the mod database.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modID := args[0]
		return withSession(cmd.Context(), true, func(s *session) error {
			ledger, err := s.openLedger()
			if err != nil {
				return err
			}
			defer ledger.Close()

			current, ok, err := ledger.Installed(modID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s is not installed", modID)
			}
			history, err := ledger.History(modID)
			if err != nil {
				return err
			}
			prev, ok := previousVersion(current, history)
			if !ok {
				return fmt.Errorf("no previous version of %s recorded", modID)
			}

			log := logger.Log.With(zap.String("mod", modID))
			log.Infow("Attempting rollback", zap.String("from", current.Version), zap.String("to", prev.Version))

			orch := &download.Orchestrator{
				Catalog:   s.client,
				Installer: archive.Zip{},
				Ledger:    ledger,
				Effective: s.effective(),
				ModsDir:   s.settings.ModsDir,
				Force:     true,
				Log:       logger.Log,
				Metrics:   s.metrics,
			}
			outcomes := orch.Run(cmd.Context(), []modset.Reference{{ModID: modID, Version: prev.Version}}, 1)
			out := outcomes[0]
			if out.Status == download.Failed {
				return fmt.Errorf("rollback %s: %w", modID, out.Err)
			}
			if out.Release.Version != prev.Version {
				return errors.New("version " + prev.Version + " is no longer available, installed " + out.Release.Version)
			}

			log.Infow("Rollback successful", zap.String("version", out.Release.Version))
			fmt.Fprintf(cmd.OutOrStdout(), "%s Rolled back %s to version %s\n", ui.SuccessStyle.Render("✓"), modID, prev.Version)
			return nil
		})
	},
}

// previousVersion returns the newest history entry whose version differs
// from the installed one. history is newest first.
func previousVersion(current db.InstalledMod, history []db.ModVersion) (db.ModVersion, bool) {
	for _, h := range history {
		if h.Version != current.Version {
			return h, true
		}
	}
	return db.ModVersion{}, false
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
}
