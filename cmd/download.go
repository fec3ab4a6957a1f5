package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"vintage-mod-manager/archive"
	"vintage-mod-manager/catalog"
	"vintage-mod-manager/compat"
	"vintage-mod-manager/download"
	"vintage-mod-manager/logger"
	"vintage-mod-manager/modset"
	"vintage-mod-manager/ui"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errBatchFailed = errors.New("some mods failed to download")

var downloadCmd = &cobra.Command{
	Use:   "download [search text]",
	Short: "Download mods compatible with your game version",
	Long: `Download mods by id, by a comma separated list, from a mod string made
with 'export', or by picking search results with --interactive.

A reference may pin a version with modid@version. A pinned version that
does not list your game version is installed anyway, with a warning.`,
	Example: `  vintage-mod-manager download --mod carrycapacity
  vintage-mod-manager download --mods "fancyrug,primitivesurvival@3.7.4"
  vintage-mod-manager download --modstring "$(cat modlist.txt)"
  vintage-mod-manager download --interactive "storage"`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := downloadOptionsFromFlags(cmd)
		if err != nil {
			return err
		}
		opts.search = strings.Join(args, " ")
		return withSession(cmd.Context(), true, func(s *session) error {
			return runDownload(cmd.Context(), cmd.OutOrStdout(), s, opts)
		})
	},
}

type downloadOptions struct {
	mod         string
	mods        string
	modString   string
	interactive bool
	search      string
	force       bool
	plain       bool
	concurrency int
}

func downloadOptionsFromFlags(cmd *cobra.Command) (downloadOptions, error) {
	var o downloadOptions
	f := cmd.Flags()
	o.mod, _ = f.GetString("mod")
	o.mods, _ = f.GetString("mods")
	o.modString, _ = f.GetString("modstring")
	o.interactive, _ = f.GetBool("interactive")
	o.force, _ = f.GetBool("force")
	o.plain, _ = f.GetBool("plain")
	o.concurrency, _ = f.GetInt("concurrency")
	if o.concurrency < 0 {
		return o, fmt.Errorf("--concurrency must not be negative")
	}
	return o, nil
}

// collectRefs merges the references given on the command line. A mod
// string that fails to decode is an error and nothing is downloaded.
func collectRefs(o downloadOptions) ([]modset.Reference, error) {
	var refs []modset.Reference
	if o.mod != "" {
		r, err := modset.ParseReference(o.mod)
		if err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	if o.mods != "" {
		list, err := modset.ParseList(o.mods)
		if err != nil {
			return nil, err
		}
		refs = append(refs, list...)
	}
	if o.modString != "" {
		decoded, err := modset.Decode(o.modString)
		if err != nil {
			return nil, fmt.Errorf("mod string: %w", err)
		}
		refs = append(refs, decoded...)
	}
	return modset.Dedupe(refs), nil
}

func runDownload(ctx context.Context, out io.Writer, s *session, o downloadOptions) error {
	refs, err := collectRefs(o)
	if err != nil {
		return err
	}

	if o.interactive {
		picked, err := pickFromSearch(ctx, s.client, o.search)
		if errors.Is(err, ui.ErrCancelled) {
			fmt.Fprintln(out, "Nothing selected")
			return nil
		}
		if err != nil {
			return err
		}
		refs = modset.Dedupe(append(refs, picked...))
	}
	if len(refs) == 0 {
		return errors.New("nothing to download: use --mod, --mods, --modstring or --interactive")
	}

	eff := s.effective()
	fmt.Fprintf(out, "Game version: %s\n", ui.ConfidenceBadge(eff))
	if eff.Confidence != compat.Exact {
		fmt.Fprintln(out, ui.WarningStyle.Render("Game version was guessed; run 'config init' or 'config set-game-version' to be sure"))
	}

	if err := os.MkdirAll(s.settings.ModsDir, 0755); err != nil {
		return fmt.Errorf("create mods directory: %w", err)
	}

	ledger, err := s.openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()
	importInstalledMods(ledger, scanModsDir(s.settings.ModsDir), eff.Tag)

	orch := &download.Orchestrator{
		Catalog:   s.client,
		Installer: archive.Zip{},
		Ledger:    ledger,
		Effective: eff,
		ModsDir:   s.settings.ModsDir,
		Force:     o.force,
		Log:       logger.Log,
		Metrics:   s.metrics,
	}

	limit := o.concurrency
	if limit == 0 {
		limit = s.settings.Concurrency
	}
	logger.Log.Infow("Starting download batch", zap.Int("mods", len(refs)), zap.Int("concurrency", limit), zap.String("tag", string(eff.Tag)))

	var outcomes []download.Outcome
	if !o.plain && isTerminal(out) {
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		err := ui.RunProgress(len(refs), func(emit func(download.Event)) {
			orch.OnProgress = emit
			outcomes = orch.Run(runCtx, refs, limit)
		}, cancel)
		if err != nil {
			return err
		}
	} else {
		outcomes = orch.Run(ctx, refs, limit)
	}

	writeSummary(out, outcomes)
	suggestAlternatives(ctx, out, s.client, outcomes)
	if countStatus(outcomes, download.Failed) > 0 {
		return errBatchFailed
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func pickFromSearch(ctx context.Context, client *catalog.Client, text string) ([]modset.Reference, error) {
	q := catalog.NewQuery().WithOrder(catalog.OrderDownloads, catalog.Desc)
	if text != "" {
		q = q.WithText(text)
	}
	hits, err := client.SearchMods(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search mods: %w", err)
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("no mods match %q", text)
	}

	items := make([]ui.Item, len(hits))
	for i, h := range hits {
		items[i] = ui.Item{Label: h.Name, Detail: fmt.Sprintf("%s · %d downloads · %s", h.PrimaryID(), h.Downloads, h.Summary)}
	}
	chosen, err := ui.RunPicker("Select mods to download", items)
	if err != nil {
		return nil, err
	}

	refs := make([]modset.Reference, 0, len(chosen))
	for _, i := range chosen {
		refs = append(refs, modset.Reference{ModID: hits[i].PrimaryID()})
	}
	return refs, nil
}

func countStatus(outcomes []download.Outcome, st download.Status) int {
	n := 0
	for _, o := range outcomes {
		if o.Status == st {
			n++
		}
	}
	return n
}

func writeSummary(w io.Writer, outcomes []download.Outcome) {
	for _, o := range outcomes {
		switch o.Status {
		case download.Success:
			line := fmt.Sprintf("%s %s %s", ui.SuccessStyle.Render("✓"), o.Ref.ModID, o.Release.Version)
			if o.Warning != "" {
				line += " " + ui.WarningStyle.Render("("+o.Warning+")")
			}
			fmt.Fprintln(w, line)
		case download.Skipped:
			fmt.Fprintf(w, "%s %s %s %s\n", ui.MutedStyle.Render("="), o.Ref.ModID, o.Release.Version, ui.MutedStyle.Render("(already installed)"))
		case download.Failed:
			fmt.Fprintf(w, "%s %s: %v\n", ui.ErrorStyle.Render("✗"), o.Ref.ModID, o.Err)
		}
	}
	fmt.Fprintf(w, "\n%d installed, %d up to date, %d failed\n",
		countStatus(outcomes, download.Success), countStatus(outcomes, download.Skipped), countStatus(outcomes, download.Failed))
}

// suggestAlternatives searches by name for mods the catalog did not know by
// id.
func suggestAlternatives(ctx context.Context, w io.Writer, client *catalog.Client, outcomes []download.Outcome) {
	for _, o := range outcomes {
		if o.Status != download.Failed || !errors.Is(o.Err, catalog.ErrNotFound) {
			continue
		}
		hits, err := client.SearchMods(ctx, catalog.NewQuery().WithText(o.Ref.ModID).WithOrder(catalog.OrderDownloads, catalog.Desc))
		if err != nil || len(hits) == 0 {
			continue
		}
		ids := make([]string, 0, 3)
		for _, h := range hits[:min(len(hits), 3)] {
			ids = append(ids, h.PrimaryID())
		}
		fmt.Fprintf(w, "No mod with id %q. Did you mean: %s?\n", o.Ref.ModID, strings.Join(ids, ", "))
	}
}

func init() {
	f := downloadCmd.Flags()
	f.String("mod", "", "mod id to download, optionally modid@version")
	f.String("mods", "", "comma separated mod ids")
	f.String("modstring", "", "mod string created by 'export'")
	f.BoolP("interactive", "i", false, "search the mod database and pick mods")
	f.BoolP("force", "f", false, "reinstall mods that are already up to date")
	f.Bool("plain", false, "print plain output instead of the progress view")
	f.IntP("concurrency", "c", 0, "parallel downloads (default from VSMM_CONCURRENCY)")
	rootCmd.AddCommand(downloadCmd)
}
