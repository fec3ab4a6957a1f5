package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"vintage-mod-manager/archive"
	"vintage-mod-manager/compat"
	"vintage-mod-manager/db"
	"vintage-mod-manager/logger"
	"vintage-mod-manager/ui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List installed mods and record unknown ones",
	Long: `Read modinfo.json of every mod in the mods directory. Mods that were
installed by hand are added to the database so later downloads can
replace them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), false, func(s *session) error {
			ledger, err := s.openLedger()
			if err != nil {
				return err
			}
			defer ledger.Close()

			mods := scanModsDir(s.settings.ModsDir)
			imported := importInstalledMods(ledger, mods, s.store.DetectedTag())
			writeInstalled(cmd.OutOrStdout(), mods)
			if imported > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\nRecorded %d mod(s) installed outside the manager\n", imported)
			}
			return nil
		})
	},
}

// scanModsDir reads every mod in dir. Unreadable entries are logged and
// left out.
func scanModsDir(dir string) []archive.ModInfo {
	logger.Log.Infow("Scanning for existing mods...", zap.String("dir", dir))
	mods, errs := archive.ScanMods(dir)
	for _, err := range errs {
		logger.Log.Warnw("Skipping unreadable mod", zap.Error(err))
	}
	return mods
}

// importInstalledMods adds mods found on disk that the ledger does not know
// and returns how many were added.
func importInstalledMods(ledger *db.Ledger, mods []archive.ModInfo, tag compat.Tag) int {
	imported := 0
	for _, m := range mods {
		if m.ModID == "" {
			continue
		}
		_, ok, err := ledger.Installed(m.ModID)
		if err != nil {
			logger.Log.Warnw("Failed to query database", zap.String("mod", m.ModID), zap.Error(err))
			continue
		}
		if ok {
			continue
		}
		err = ledger.RecordInstall(db.InstalledMod{
			ModID:       m.ModID,
			Version:     m.Version,
			FileName:    filepath.Base(m.Path),
			InstallPath: m.Path,
			Tag:         string(tag),
		})
		if err != nil {
			logger.Log.Errorw("Failed to save imported mod to DB", zap.String("mod", m.ModID), zap.Error(err))
			continue
		}
		logger.Log.Infow("Imported existing mod", zap.String("mod", m.ModID), zap.String("version", m.Version))
		imported++
	}
	return imported
}

func writeInstalled(w io.Writer, mods []archive.ModInfo) {
	if len(mods) == 0 {
		fmt.Fprintln(w, "No mods installed.")
		return
	}
	fmt.Fprintln(w, ui.TitleStyle.Render(fmt.Sprintf("%-30s %-12s %s", "Mod", "Version", "Name")))
	for _, m := range mods {
		fmt.Fprintf(w, "%-30s %-12s %s\n", m.ModID, m.Version, m.Name)
	}
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
