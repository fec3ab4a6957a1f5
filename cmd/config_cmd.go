package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"vintage-mod-manager/compat"
	"vintage-mod-manager/logger"
	"vintage-mod-manager/ui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change the manager configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Find the game installation and fetch the version table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return withSession(cmd.Context(), false, func(s *session) error {
			out := cmd.OutOrStdout()
			if s.store.GamePath() != "" && !force {
				return fmt.Errorf("already configured with %s (use --force to probe again)", s.store.GamePath())
			}

			path, ok := compat.FindInstallation()
			if !ok {
				fmt.Fprintln(out, "No installation found in the usual places:")
				for _, p := range compat.GuessInstallPaths() {
					fmt.Fprintf(out, "  %s\n", p)
				}
				return errors.New("set the game path with 'config set-path <path>'")
			}
			s.store.SetGamePath(path)
			s.detect()
			fmt.Fprintf(out, "Game path: %s\n", path)

			if _, err := s.refreshTable(cmd.Context()); err != nil {
				logger.Log.Warnw("Could not fetch version table", zap.Error(err))
				fmt.Fprintln(out, ui.WarningStyle.Render("Version table not fetched: "+err.Error()))
			}
			fmt.Fprintf(out, "Game version: %s\n", ui.ConfidenceBadge(s.effective()))
			return nil
		})
	},
}

var configSetPathCmd = &cobra.Command{
	Use:   "set-path <path>",
	Short: "Set the game installation directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if !compat.IsInstallation(path) {
			return &compat.DetectionError{Kind: compat.ErrNotInstallation, Path: path}
		}
		return withSession(cmd.Context(), false, func(s *session) error {
			s.store.SetGamePath(path)
			s.detect()
			fmt.Fprintf(cmd.OutOrStdout(), "Game path set to %s\n", path)
			if s.detectErr != nil {
				fmt.Fprintln(cmd.OutOrStdout(), ui.WarningStyle.Render("Game version not detected: "+s.detectErr.Error()))
			}
			return nil
		})
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), false, func(s *session) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config file:     %s\n", s.store.Path())
			fmt.Fprintf(out, "Mods directory:  %s\n", s.settings.ModsDir)
			fmt.Fprintf(out, "Game path:       %s\n", orNone(s.store.GamePath()))
			if s.detected != nil {
				fmt.Fprintf(out, "Detected:        %s\n", s.detected)
			} else {
				fmt.Fprintf(out, "Detected:        %s\n", ui.MutedStyle.Render("none ("+errString(s.detectErr)+")"))
			}
			fmt.Fprintf(out, "Manual override: %s\n", orNone(s.store.ManualGameVersion()))
			fmt.Fprintf(out, "Effective tag:   %s\n", ui.ConfidenceBadge(s.effective()))

			table := s.tables.Current()
			refreshed := "never"
			if !s.store.LastRefreshed().IsZero() {
				refreshed = s.store.LastRefreshed().Local().Format(time.DateTime)
			}
			fmt.Fprintf(out, "Version table:   %d entries, refreshed %s\n", table.Len(), refreshed)

			ledger, err := s.openLedger()
			if err != nil {
				return err
			}
			defer ledger.Close()
			mods, err := ledger.List()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Installed mods:  %d\n", len(mods))
			return nil
		})
	},
}

var configUpdateVersionsCmd = &cobra.Command{
	Use:   "update-versions",
	Short: "Fetch the game version table from the mod database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), false, func(s *session) error {
			t, err := s.refreshTable(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d game versions\n", t.Len())
			return nil
		})
	},
}

var configListVersionsCmd = &cobra.Command{
	Use:   "list-versions",
	Short: "List the cached game version table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), true, func(s *session) error {
			writeVersionTable(cmd.OutOrStdout(), s.tables.Current(), s.effective())
			return nil
		})
	},
}

// writeVersionTable prints the table newest first and marks the effective
// tag.
func writeVersionTable(w io.Writer, t compat.Table, eff compat.Effective) {
	entries := t.Entries()
	if len(entries) == 0 {
		fmt.Fprintln(w, "No game versions cached. Run 'config update-versions'.")
		return
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Range.Floor().Compare(entries[j].Range.Floor()) > 0
	})
	for _, e := range entries {
		line := fmt.Sprintf("  %-12s %s", e.Tag, e.Range)
		if e.Tag == eff.Tag {
			line = ui.SuccessStyle.Render("* " + line[2:] + "  (" + eff.Confidence.String() + ")")
		}
		fmt.Fprintln(w, line)
	}
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the configuration is usable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), false, func(s *session) error {
			problems := validate(s, time.Now())
			out := cmd.OutOrStdout()
			if len(problems) == 0 {
				fmt.Fprintln(out, ui.SuccessStyle.Render("Configuration is valid"))
				return nil
			}
			for _, p := range problems {
				fmt.Fprintf(out, "%s %s\n", ui.ErrorStyle.Render("✗"), p)
			}
			return fmt.Errorf("%d configuration problem(s)", len(problems))
		})
	},
}

func validate(s *session, now time.Time) []string {
	var problems []string
	switch {
	case s.store.GamePath() == "":
		problems = append(problems, "game path is not set")
	case !compat.IsInstallation(s.store.GamePath()):
		problems = append(problems, fmt.Sprintf("%s is not a game installation", s.store.GamePath()))
	case s.detectErr != nil && s.store.ManualGameVersion() == "":
		problems = append(problems, "game version not detected and no manual version set: "+s.detectErr.Error())
	}
	if s.tables.Current().Len() == 0 {
		problems = append(problems, "version table is empty")
	} else if !s.store.CacheFresh(s.settings.CacheTTL, now) {
		problems = append(problems, "version table is older than "+s.settings.CacheTTL.String())
	}
	if st, err := os.Stat(s.settings.ModsDir); err != nil || !st.IsDir() {
		problems = append(problems, fmt.Sprintf("mods directory %s is missing", s.settings.ModsDir))
	}
	return problems
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the game path, overrides and cached versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Reset configuration?") {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
			return nil
		}
		return withSession(cmd.Context(), false, func(s *session) error {
			s.store.Reset()
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration reset")
			return nil
		})
	},
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

var configSetGameVersionCmd = &cobra.Command{
	Use:   "set-game-version <version>",
	Short: `Pin the game version used for filtering ("" clears it)`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := strings.TrimSpace(args[0])
		return withSession(cmd.Context(), false, func(s *session) error {
			s.store.SetManualGameVersion(v)
			if v == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Manual game version cleared")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Game version: %s\n", ui.ConfidenceBadge(s.effective()))
			return nil
		})
	},
}

func orNone(s string) string {
	if s == "" {
		return ui.MutedStyle.Render("none")
	}
	return s
}

func errString(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}

func init() {
	configInitCmd.Flags().Bool("force", false, "probe for an installation even if one is configured")
	configResetCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	configCmd.AddCommand(
		configInitCmd,
		configSetPathCmd,
		configShowCmd,
		configUpdateVersionsCmd,
		configListVersionsCmd,
		configValidateCmd,
		configResetCmd,
		configSetGameVersionCmd,
	)
	rootCmd.AddCommand(configCmd)
}
