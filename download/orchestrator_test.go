package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vintage-mod-manager/catalog"
	"vintage-mod-manager/compat"
	"vintage-mod-manager/db"
	"vintage-mod-manager/metrics"
	"vintage-mod-manager/modset"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	releases map[string][]compat.ModRelease
	errs     map[string]error
	delay    time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeCatalog) FetchModReleases(ctx context.Context, modID string) ([]compat.ModRelease, error) {
	if err := f.errs[modID]; err != nil {
		return nil, err
	}
	rs, ok := f.releases[modID]
	if !ok {
		return nil, &catalog.ClientError{Kind: catalog.ErrNotFound, Target: modID}
	}
	return rs, nil
}

func (f *fakeCatalog) Download(ctx context.Context, url string) ([]byte, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []byte("zip:" + url), nil
}

type fakeInstaller struct {
	mu    sync.Mutex
	dests []string
	fail  map[string]error
}

func (f *fakeInstaller) Extract(data []byte, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[filepath.Base(dest)]; err != nil {
		return err
	}
	f.dests = append(f.dests, dest)
	return os.MkdirAll(dest, 0755)
}

func (f *fakeInstaller) installed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dests...)
}

type fakeLedger struct {
	mu   sync.Mutex
	rows map[string]db.InstalledMod
}

func newFakeLedger() *fakeLedger { return &fakeLedger{rows: map[string]db.InstalledMod{}} }

func (f *fakeLedger) Installed(modID string) (db.InstalledMod, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.rows[modID]
	return m, ok, nil
}

func (f *fakeLedger) RecordInstall(m db.InstalledMod) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[m.ModID] = m
	return nil
}

func rel(id, version string, tags ...compat.Tag) compat.ModRelease {
	return compat.ModRelease{
		ModID:         id,
		Version:       version,
		SupportedTags: compat.NewTagSet(tags...),
		FileURL:       "https://cdn.example/" + id + "_" + version + ".zip",
	}
}

func TestRunIsolatesNotFound(t *testing.T) {
	cat := &fakeCatalog{releases: map[string][]compat.ModRelease{
		"mod1": {rel("mod1", "1.0.0", "v1.20")},
		"mod2": {rel("mod2", "1.0.0", "v1.20")},
		"mod4": {rel("mod4", "1.0.0", "v1.20")},
		"mod5": {rel("mod5", "1.0.0", "v1.20")},
	}}
	inst := &fakeInstaller{}
	rec := metrics.New()
	o := &Orchestrator{
		Catalog:   cat,
		Installer: inst,
		Effective: compat.Effective{Tag: "v1.20", Confidence: compat.Exact},
		ModsDir:   t.TempDir(),
		Metrics:   rec,
	}

	refs := []modset.Reference{{ModID: "mod1"}, {ModID: "mod2"}, {ModID: "mod3"}, {ModID: "mod4"}, {ModID: "mod5"}}
	outcomes := o.Run(context.Background(), refs, 2)

	require.Len(t, outcomes, 5)
	failed := 0
	for _, out := range outcomes {
		if out.Status == Failed {
			failed++
			assert.Equal(t, "mod3", out.Ref.ModID)
			assert.ErrorIs(t, out.Err, catalog.ErrNotFound)
		} else {
			assert.Equal(t, Success, out.Status, out.Ref.ModID)
		}
	}
	assert.Equal(t, 1, failed)

	installed := inst.installed()
	assert.Len(t, installed, 4)
	for _, d := range installed {
		assert.NotContains(t, filepath.Base(d), "mod3")
	}

	expected := `
# HELP vsmm_downloads_total Mod downloads by outcome
# TYPE vsmm_downloads_total counter
vsmm_downloads_total{status="failed"} 1
vsmm_downloads_total{status="success"} 4
`
	assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(expected), "vsmm_downloads_total"))
}

func TestRunRespectsLimit(t *testing.T) {
	releases := map[string][]compat.ModRelease{}
	var refs []modset.Reference
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		releases[id] = []compat.ModRelease{rel(id, "1.0.0", "x")}
		refs = append(refs, modset.Reference{ModID: id})
	}
	cat := &fakeCatalog{releases: releases, delay: 20 * time.Millisecond}
	o := &Orchestrator{Catalog: cat, Installer: &fakeInstaller{}, Effective: compat.Effective{Tag: "x"}, ModsDir: t.TempDir()}

	outcomes := o.Run(context.Background(), refs, 3)
	assert.Len(t, outcomes, len(refs))
	assert.LessOrEqual(t, cat.maxInFlight.Load(), int32(3))
	assert.GreaterOrEqual(t, cat.maxInFlight.Load(), int32(2), "work should overlap")
}

func TestRunSameModUnderTwoIDs(t *testing.T) {
	carry := rel("carrycapacity", "1.2.0", "v1.20")
	cat := &fakeCatalog{releases: map[string][]compat.ModRelease{
		"3351":          {carry},
		"carrycapacity": {carry},
	}, delay: 10 * time.Millisecond}
	inst := &fakeInstaller{}
	o := &Orchestrator{Catalog: cat, Installer: inst, Effective: compat.Effective{Tag: "v1.20"}, ModsDir: t.TempDir()}

	outcomes := o.Run(context.Background(), []modset.Reference{{ModID: "3351"}, {ModID: "carrycapacity"}}, 2)

	require.Len(t, outcomes, 2)
	counts := map[Status]int{}
	for _, out := range outcomes {
		counts[out.Status]++
		if out.Status == Skipped {
			assert.Contains(t, out.Warning, "same mod as")
		}
	}
	assert.Equal(t, map[Status]int{Success: 1, Skipped: 1}, counts)
	assert.Len(t, inst.installed(), 1)
}

func TestRunCancelled(t *testing.T) {
	cat := &fakeCatalog{releases: map[string][]compat.ModRelease{
		"a": {rel("a", "1.0.0", "x")},
		"b": {rel("b", "1.0.0", "x")},
	}}
	inst := &fakeInstaller{}
	o := &Orchestrator{Catalog: cat, Installer: inst, Effective: compat.Effective{Tag: "x"}, ModsDir: t.TempDir()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcomes := o.Run(ctx, []modset.Reference{{ModID: "a"}, {ModID: "b"}}, 1)

	require.Len(t, outcomes, 2)
	for _, out := range outcomes {
		assert.Equal(t, Failed, out.Status)
		assert.ErrorIs(t, out.Err, context.Canceled)
	}
	assert.Empty(t, inst.installed())
}

func TestRunCancelledMidDownload(t *testing.T) {
	cat := &fakeCatalog{
		releases: map[string][]compat.ModRelease{"slow": {rel("slow", "1.0.0", "x")}},
		delay:    time.Minute,
	}
	inst := &fakeInstaller{}
	o := &Orchestrator{Catalog: cat, Installer: inst, Effective: compat.Effective{Tag: "x"}, ModsDir: t.TempDir()}

	ctx, cancel := context.WithCancel(context.Background())
	o.OnProgress = func(ev Event) {
		if ev.Kind == EventDownloading {
			cancel()
		}
	}
	outcomes := o.Run(ctx, []modset.Reference{{ModID: "slow"}}, 1)

	require.Len(t, outcomes, 1)
	assert.Equal(t, Failed, outcomes[0].Status)
	assert.Empty(t, inst.installed())
}

func TestReleaseChoice(t *testing.T) {
	releases := []compat.ModRelease{
		rel("fancyrug", "1.9.0", "v1.19"),
		rel("fancyrug", "2.0.1", "v1.20"),
		rel("fancyrug", "2.0.2", "v1.20"),
		rel("fancyrug", "3.0.0", "v1.21"),
	}

	tests := []struct {
		name         string
		tag          compat.Tag
		version      string
		wantVersion  string
		wantMismatch bool
		wantWarning  bool
		wantErr      error
	}{
		{"newest eligible", "v1.20", "", "2.0.2", false, false, nil},
		{"pinned eligible", "v1.20", "2.0.1", "2.0.1", false, false, nil},
		{"pinned mismatch", "v1.20", "1.9.0", "1.9.0", true, true, nil},
		{"pinned missing", "v1.20", "9.9.9", "2.0.2", false, true, nil},
		{"nothing eligible", "v1.18", "", "", false, false, ErrNoCompatibleRelease},
		{"unknown game version", "", "", "3.0.0", true, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := &fakeCatalog{releases: map[string][]compat.ModRelease{"fancyrug": releases}}
			inst := &fakeInstaller{}
			o := &Orchestrator{Catalog: cat, Installer: inst, Effective: compat.Effective{Tag: tt.tag}, ModsDir: t.TempDir()}

			outcomes := o.Run(context.Background(), []modset.Reference{{ModID: "fancyrug", Version: tt.version}}, 1)
			require.Len(t, outcomes, 1)
			out := outcomes[0]

			if tt.wantErr != nil {
				assert.Equal(t, Failed, out.Status)
				assert.ErrorIs(t, out.Err, tt.wantErr)
				assert.Empty(t, inst.installed())
				return
			}
			require.Equal(t, Success, out.Status, "err: %v", out.Err)
			assert.Equal(t, tt.wantVersion, out.Release.Version)
			assert.Equal(t, tt.wantMismatch, out.Mismatch)
			assert.Equal(t, tt.wantWarning, out.Warning != "", out.Warning)
			assert.Equal(t, filepath.Join(o.ModsDir, "fancyrug_"+tt.wantVersion), out.Path)
		})
	}
}

func TestLedgerSkipAndReplace(t *testing.T) {
	modsDir := t.TempDir()
	old := filepath.Join(modsDir, "fancyrug_2.0.1")
	require.NoError(t, os.MkdirAll(old, 0755))

	ledger := newFakeLedger()
	ledger.rows["fancyrug"] = db.InstalledMod{ModID: "fancyrug", Version: "2.0.1", InstallPath: old}

	cat := &fakeCatalog{releases: map[string][]compat.ModRelease{
		"fancyrug": {rel("fancyrug", "2.0.1", "v1.20"), rel("fancyrug", "2.0.2", "v1.20")},
	}}
	inst := &fakeInstaller{}
	o := &Orchestrator{Catalog: cat, Installer: inst, Ledger: ledger, Effective: compat.Effective{Tag: "v1.20"}, ModsDir: modsDir}

	out := o.Run(context.Background(), []modset.Reference{{ModID: "fancyrug", Version: "2.0.1"}}, 1)[0]
	assert.Equal(t, Skipped, out.Status)
	assert.Equal(t, old, out.Path)
	assert.Empty(t, inst.installed())

	out = o.Run(context.Background(), []modset.Reference{{ModID: "fancyrug"}}, 1)[0]
	require.Equal(t, Success, out.Status)
	assert.Equal(t, "2.0.2", ledger.rows["fancyrug"].Version)
	assert.Equal(t, "v1.20", ledger.rows["fancyrug"].Tag)
	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err), "previous version removed")

	o.Force = true
	out = o.Run(context.Background(), []modset.Reference{{ModID: "fancyrug"}}, 1)[0]
	assert.Equal(t, Success, out.Status)
	assert.Len(t, inst.installed(), 2)
}

func TestInstallFailureLeavesLedgerUntouched(t *testing.T) {
	ledger := newFakeLedger()
	cat := &fakeCatalog{releases: map[string][]compat.ModRelease{"a": {rel("a", "1.0.0", "x")}}}
	boom := errors.New("disk full")
	inst := &fakeInstaller{fail: map[string]error{"a_1.0.0": boom}}
	o := &Orchestrator{Catalog: cat, Installer: inst, Ledger: ledger, Effective: compat.Effective{Tag: "x"}, ModsDir: t.TempDir()}

	out := o.Run(context.Background(), []modset.Reference{{ModID: "a"}}, 1)[0]
	assert.Equal(t, Failed, out.Status)
	assert.ErrorIs(t, out.Err, boom)
	_, ok, _ := ledger.Installed("a")
	assert.False(t, ok)
}

func TestProgressEvents(t *testing.T) {
	cat := &fakeCatalog{releases: map[string][]compat.ModRelease{"a": {rel("a", "1.0.0", "x")}}}
	o := &Orchestrator{Catalog: cat, Installer: &fakeInstaller{}, Effective: compat.Effective{Tag: "x"}, ModsDir: t.TempDir()}

	var kinds []EventKind
	o.OnProgress = func(ev Event) { kinds = append(kinds, ev.Kind) }
	o.Run(context.Background(), []modset.Reference{{ModID: "a"}}, 1)

	assert.Equal(t, []EventKind{EventStarted, EventDownloading, EventFinished}, kinds)
}
