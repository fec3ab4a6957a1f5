package cmd

import (
	"errors"
	"fmt"
	"os"

	"vintage-mod-manager/archive"
	"vintage-mod-manager/modset"
	"vintage-mod-manager/ui"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print a mod string for the installed mods",
	Long: `Scan the mods directory and print a mod string that 'download
--modstring' can install elsewhere. With --archive the mod files are also
bundled into one zip.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		interactive, _ := cmd.Flags().GetBool("interactive")
		archivePath, _ := cmd.Flags().GetString("archive")

		mods := scanModsDir(settings.ModsDir)
		if len(mods) == 0 {
			return fmt.Errorf("no mods found in %s", settings.ModsDir)
		}

		if interactive {
			items := make([]ui.Item, len(mods))
			for i, m := range mods {
				items[i] = ui.Item{Label: m.ModID, Detail: m.Version + " " + m.Name, Selected: true}
			}
			chosen, err := ui.RunPicker("Select mods to export", items)
			if errors.Is(err, ui.ErrCancelled) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Nothing exported")
				return nil
			}
			if err != nil {
				return err
			}
			picked := make([]archive.ModInfo, 0, len(chosen))
			for _, i := range chosen {
				picked = append(picked, mods[i])
			}
			mods = picked
		}
		if len(mods) == 0 {
			return errors.New("no mods selected")
		}

		if archivePath != "" {
			if err := writeArchive(archivePath, mods); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d mod(s) to %s\n", len(mods), archivePath)
		}

		fmt.Fprintln(cmd.OutOrStdout(), modset.Encode(exportRefs(mods)))
		return nil
	},
}

// exportRefs pins every mod to its installed version.
func exportRefs(mods []archive.ModInfo) []modset.Reference {
	refs := make([]modset.Reference, 0, len(mods))
	for _, m := range mods {
		if m.ModID == "" {
			continue
		}
		refs = append(refs, modset.Reference{ModID: m.ModID, Version: m.Version})
	}
	return refs
}

func writeArchive(path string, mods []archive.ModInfo) error {
	paths := make([]string, len(mods))
	for i, m := range mods {
		paths[i] = m.Path
	}
	data, err := archive.Pack(paths)
	if err != nil {
		return fmt.Errorf("pack mods: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	return nil
}

func init() {
	exportCmd.Flags().BoolP("interactive", "i", false, "choose which mods to export")
	exportCmd.Flags().String("archive", "", "also bundle the mod files into this zip")
	rootCmd.AddCommand(exportCmd)
}
