// Package download fetches and installs a batch of mods concurrently.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vintage-mod-manager/compat"
	"vintage-mod-manager/db"
	"vintage-mod-manager/logger"
	"vintage-mod-manager/metrics"
	"vintage-mod-manager/modset"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoCompatibleRelease means no release of the mod fits the effective tag.
var ErrNoCompatibleRelease = errors.New("no compatible release")

// Catalog is the part of the catalog client the orchestrator needs.
type Catalog interface {
	FetchModReleases(ctx context.Context, modID string) ([]compat.ModRelease, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Installer unpacks an archive into dest, all or nothing.
type Installer interface {
	Extract(data []byte, dest string) error
}

// Ledger remembers installed versions.
type Ledger interface {
	Installed(modID string) (db.InstalledMod, bool, error)
	RecordInstall(m db.InstalledMod) error
}

type Status int

const (
	Success Status = iota
	Failed
	Skipped
)

func (s Status) String() string {
	switch s {
	case Success:
		return metrics.StatusSuccess
	case Failed:
		return metrics.StatusFailed
	case Skipped:
		return metrics.StatusSkipped
	default:
		return "unknown"
	}
}

// Outcome is the result for one requested reference. Ref is always the
// reference as it was passed to Run.
type Outcome struct {
	Ref     modset.Reference
	Release compat.ModRelease
	Status  Status
	Err     error
	// Path is where the mod is installed (Success, Skipped).
	Path string
	// Mismatch is set when the installed release does not list the
	// effective tag.
	Mismatch bool
	Warning  string
	Bytes    int
}

type EventKind int

const (
	EventStarted EventKind = iota
	EventDownloading
	EventFinished
)

// Event reports progress. Outcome is set for EventFinished only.
type Event struct {
	Kind    EventKind
	Ref     modset.Reference
	Version string
	Outcome *Outcome
}

// Orchestrator drives a download batch. Catalog and Installer are required;
// Ledger, Metrics and OnProgress are optional.
type Orchestrator struct {
	Catalog   Catalog
	Installer Installer
	Ledger    Ledger
	Effective compat.Effective
	ModsDir   string
	// Force reinstalls versions the ledger already has.
	Force   bool
	Log     *zap.SugaredLogger
	Metrics *metrics.Recorder
	// OnProgress is called from worker goroutines, one call at a time.
	OnProgress func(Event)

	emitMu sync.Mutex
}

// Run processes refs with at most limit items in flight and returns one
// outcome per reference, in completion order. A failing item never stops
// the others. Once ctx is cancelled, items not yet started fail with the
// context error.
func (o *Orchestrator) Run(ctx context.Context, refs []modset.Reference, limit int) []Outcome {
	if limit < 1 {
		limit = 1
	}

	var (
		mu       sync.Mutex
		outcomes = make([]Outcome, 0, len(refs))
	)

	claims := &claimSet{owners: make(map[string]modset.Reference)}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, ref := range refs {
		g.Go(func() error {
			out := o.runOne(ctx, ref, claims)
			o.Metrics.RecordDownload(out.Status.String(), out.Bytes)

			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()

			o.emit(Event{Kind: EventFinished, Ref: ref, Version: out.Release.Version, Outcome: &out})
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// claimSet makes sure one batch installs each catalog mod id once, even
// when it was requested under two names (numeric asset id and string id).
type claimSet struct {
	mu     sync.Mutex
	owners map[string]modset.Reference
}

// claim records ref as the owner of modID. It returns the existing owner
// and false when another reference got there first.
func (c *claimSet) claim(modID string, ref modset.Reference) (modset.Reference, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, ok := c.owners[modID]; ok {
		return owner, false
	}
	c.owners[modID] = ref
	return ref, true
}

func (o *Orchestrator) log() *zap.SugaredLogger {
	if o.Log == nil {
		return logger.Log
	}
	return o.Log
}

func (o *Orchestrator) emit(ev Event) {
	if o.OnProgress == nil {
		return
	}
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.OnProgress(ev)
}

func (o *Orchestrator) runOne(ctx context.Context, ref modset.Reference, claims *claimSet) Outcome {
	out := Outcome{Ref: ref}
	fail := func(err error) Outcome {
		out.Status = Failed
		out.Err = err
		return out
	}

	modLog := o.log().With(zap.String("mod", ref.ModID))
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	o.emit(Event{Kind: EventStarted, Ref: ref})

	releases, err := o.Catalog.FetchModReleases(ctx, ref.ModID)
	if err != nil {
		modLog.Warnw("Failed to fetch releases", "error", err)
		return fail(err)
	}

	rel, warning, mismatch, err := o.choose(ref, releases)
	if err != nil {
		modLog.Warnw("No installable release", "tag", o.Effective.Tag, "error", err)
		return fail(err)
	}
	out.Release, out.Warning, out.Mismatch = rel, warning, mismatch
	if warning != "" {
		modLog.Warnw(warning, "version", rel.Version)
	}

	if owner, ok := claims.claim(rel.ModID, ref); !ok {
		modLog.Infow("Same mod requested twice in batch", "mod_id", rel.ModID, "other", owner.String())
		out.Status = Skipped
		out.Warning = joinWarning(out.Warning, fmt.Sprintf("same mod as %s", owner))
		return out
	}

	var previous string
	if o.Ledger != nil {
		inst, ok, err := o.Ledger.Installed(rel.ModID)
		if err != nil {
			modLog.Warnw("Ledger lookup failed, installing anyway", "error", err)
		} else if ok {
			if inst.Version == rel.Version && !o.Force {
				modLog.Infow("Already installed", "version", rel.Version)
				out.Status = Skipped
				out.Path = inst.InstallPath
				return out
			}
			previous = inst.InstallPath
		}
	}

	dest, err := o.destination(rel)
	if err != nil {
		return fail(err)
	}

	o.emit(Event{Kind: EventDownloading, Ref: ref, Version: rel.Version})
	data, err := o.Catalog.Download(ctx, rel.FileURL)
	if err != nil {
		modLog.Warnw("Download failed", "url", rel.FileURL, "error", err)
		return fail(err)
	}
	out.Bytes = len(data)

	// A cancelled batch must not install anything new.
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if err := o.Installer.Extract(data, dest); err != nil {
		modLog.Errorw("Extraction failed", "dest", dest, "error", err)
		return fail(fmt.Errorf("install %s: %w", rel.ModID, err))
	}
	out.Status = Success
	out.Path = dest
	modLog.Infow("Installed", "version", rel.Version, "path", dest)

	if previous != "" && filepath.Clean(previous) != filepath.Clean(dest) {
		if err := os.RemoveAll(previous); err != nil {
			modLog.Warnw("Could not remove previous version", "path", previous, "error", err)
		}
	}

	if o.Ledger != nil {
		err := o.Ledger.RecordInstall(db.InstalledMod{
			ModID:       rel.ModID,
			Version:     rel.Version,
			FileName:    rel.FileName,
			InstallPath: dest,
			Tag:         string(o.Effective.Tag),
			Mismatch:    mismatch,
			InstalledAt: time.Now(),
		})
		if err != nil {
			modLog.Warnw("Failed to record install", "error", err)
			out.Warning = joinWarning(out.Warning, "install not recorded: "+err.Error())
		}
	}
	return out
}

// choose picks the release to install for ref.
//
// A pinned version is used when it exists, flagged as a mismatch if it does
// not list the effective tag. Otherwise the newest eligible release is
// used. With no effective tag at all the newest release is used.
func (o *Orchestrator) choose(ref modset.Reference, releases []compat.ModRelease) (compat.ModRelease, string, bool, error) {
	if len(releases) == 0 {
		return compat.ModRelease{}, "", false, fmt.Errorf("%s: %w: catalog lists no releases", ref.ModID, ErrNoCompatibleRelease)
	}
	filtered := compat.Filter(releases, o.Effective, nil)

	var note string
	if ref.Version != "" {
		for _, r := range filtered.Eligible {
			if r.Version == ref.Version {
				return r, "", false, nil
			}
		}
		for _, r := range releases {
			if r.Version == ref.Version {
				return r, fmt.Sprintf("%s does not list game version %q", ref, o.Effective.Tag), true, nil
			}
		}
		note = fmt.Sprintf("version %s not in catalog", ref.Version)
	}

	if len(filtered.Eligible) > 0 {
		best := filtered.Eligible[0]
		if note != "" {
			note += ", using " + best.Version
		}
		return best, note, false, nil
	}

	if o.Effective.Tag == "" {
		all := append([]compat.ModRelease(nil), releases...)
		compat.SortNewest(all)
		return all[0], joinWarning(note, "game version unknown, using newest release "+all[0].Version), true, nil
	}
	return compat.ModRelease{}, "", false, fmt.Errorf("%s: %w for %s", ref.ModID, ErrNoCompatibleRelease, o.Effective.Tag)
}

func (o *Orchestrator) destination(rel compat.ModRelease) (string, error) {
	clean := func(s string) string {
		return strings.Map(func(r rune) rune {
			switch r {
			case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
				return '_'
			}
			return r
		}, s)
	}
	name := clean(rel.ModID) + "_" + clean(rel.Version)
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("refusing install directory %q", name)
	}
	return filepath.Join(o.ModsDir, name), nil
}

func joinWarning(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "; " + b
}
