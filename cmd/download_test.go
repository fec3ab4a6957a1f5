package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vintage-mod-manager/archive"
	"vintage-mod-manager/config"
	"vintage-mod-manager/db"
	"vintage-mod-manager/download"
	"vintage-mod-manager/modset"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fancyrugModInfo = `{"modid": "fancyrug", "name": "Fancy Rugs", "version": "2.0.1",}`

func modZip(t *testing.T, modinfo string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("modinfo.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(modinfo))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// catalogServer serves a small mod database with one mod, fancyrug.
func catalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	zipData := modZip(t, fancyrugModInfo)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/gameversions", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"statuscode":"200","gameversions":[
			{"tagid":-1,"name":"v1.19.8"},
			{"tagid":-2,"name":"v1.20.0"}
		]}`)
	})
	mux.HandleFunc("/api/mod/fancyrug", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"statuscode":"200","mod":{"modid":1,"assetid":2,"name":"Fancy Rugs","releases":[
			{"releaseid":2,"mainfile":"files/fancyrug_2.0.1.zip","filename":"fancyrug_2.0.1.zip","fileid":20,
			 "tags":["v1.19.8","v1.20.0"],"modidstr":"fancyrug","modversion":"2.0.1","created":"2024-05-01 10:00:00"}
		]}}`)
	})
	mux.HandleFunc("/api/mod/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"statuscode":"404"}`)
	})
	mux.HandleFunc("/api/mods", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"statuscode":"200","mods":[{"modid":1,"assetid":2,"name":"Fancy Rugs","modidstrs":["fancyrug"],"downloads":5}]}`)
	})
	mux.HandleFunc("/files/fancyrug_2.0.1.zip", func(w http.ResponseWriter, _ *http.Request) {
		w.Write(zipData)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func useSettings(t *testing.T, apiURL string) config.Settings {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Settings{
		APIURL:       apiURL,
		UserAgent:    "vsmm-test",
		ModsDir:      filepath.Join(dir, "Mods"),
		ConfigDir:    dir,
		Concurrency:  2,
		Timeout:      5 * time.Second,
		MetricsFile:  filepath.Join(dir, "vsmm.prom"),
		CacheTTL:     time.Hour,
		DatabasePath: filepath.Join(dir, "mods.db"),
		StorePath:    filepath.Join(dir, "config.toml"),
	}
	old := settings
	settings = cfg
	t.Cleanup(func() { settings = old })
	return cfg
}

func TestCollectRefs(t *testing.T) {
	str := modset.Encode([]modset.Reference{{ModID: "carrycapacity", Version: "1.0.0"}, {ModID: "fancyrug"}})

	refs, err := collectRefs(downloadOptions{
		mod:       "primitivesurvival@3.7.4",
		mods:      "fancyrug@2.0.0, expandedfoods",
		modString: str,
	})
	require.NoError(t, err)
	assert.Equal(t, []modset.Reference{
		{ModID: "primitivesurvival", Version: "3.7.4"},
		{ModID: "expandedfoods"},
		{ModID: "carrycapacity", Version: "1.0.0"},
		{ModID: "fancyrug"},
	}, refs)

	_, err = collectRefs(downloadOptions{mod: "fancyrug", modString: "not a mod string!"})
	assert.ErrorIs(t, err, modset.ErrInvalidAlphabet)
}

func TestRunDownload(t *testing.T) {
	srv := catalogServer(t)
	cfg := useSettings(t, srv.URL)
	ctx := context.Background()

	var out bytes.Buffer
	err := withSession(ctx, true, func(s *session) error {
		return runDownload(ctx, &out, s, downloadOptions{mods: "fancyrug,nosuchmod", plain: true})
	})
	require.ErrorIs(t, err, errBatchFailed)
	assert.Contains(t, out.String(), "1 installed, 0 up to date, 1 failed")
	assert.Contains(t, out.String(), `No mod with id "nosuchmod". Did you mean: fancyrug?`)

	info, err := archive.ReadModInfo(filepath.Join(cfg.ModsDir, "fancyrug_2.0.1"))
	require.NoError(t, err)
	assert.Equal(t, "2.0.1", info.Version)

	store, err := config.LoadStore(cfg.StorePath)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Table().Len(), "refreshed table is cached")
	assert.Equal(t, "v1.20.0", string(store.DetectedTag()))

	prom, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `vsmm_downloads_total{status="success"} 1`)

	out.Reset()
	err = withSession(ctx, true, func(s *session) error {
		return runDownload(ctx, &out, s, downloadOptions{mod: "fancyrug", plain: true})
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "0 installed, 1 up to date, 0 failed")
}

func TestRunDownloadNothingRequested(t *testing.T) {
	srv := catalogServer(t)
	useSettings(t, srv.URL)
	ctx := context.Background()

	err := withSession(ctx, false, func(s *session) error {
		return runDownload(ctx, &bytes.Buffer{}, s, downloadOptions{plain: true})
	})
	assert.ErrorContains(t, err, "nothing to download")
}

func TestImportInstalledMods(t *testing.T) {
	ledger, err := db.OpenLedger(filepath.Join(t.TempDir(), "mods.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	require.NoError(t, ledger.RecordInstall(db.InstalledMod{ModID: "fancyrug", Version: "2.0.1"}))

	mods := []archive.ModInfo{
		{ModID: "fancyrug", Version: "1.0.0", Path: "/mods/fancyrug.zip"},
		{ModID: "carrycapacity", Version: "1.2.0", Path: "/mods/carrycapacity.zip"},
		{Version: "0.1.0", Path: "/mods/broken"},
	}
	assert.Equal(t, 1, importInstalledMods(ledger, mods, "v1.20"))

	m, ok, err := ledger.Installed("carrycapacity")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "carrycapacity.zip", m.FileName)
	assert.Equal(t, "v1.20", m.Tag)

	m, _, _ = ledger.Installed("fancyrug")
	assert.Equal(t, "2.0.1", m.Version, "known mods are left alone")
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	writeSummary(&buf, []download.Outcome{
		{Ref: modset.Reference{ModID: "a"}, Status: download.Success, Warning: "a@1 does not list game version \"v1.20\""},
		{Ref: modset.Reference{ModID: "b"}, Status: download.Skipped},
		{Ref: modset.Reference{ModID: "c"}, Status: download.Failed, Err: errors.New("boom")},
	})
	assert.Contains(t, buf.String(), "does not list game version")
	assert.Contains(t, buf.String(), "c: boom")
	assert.Contains(t, buf.String(), "1 installed, 1 up to date, 1 failed")
}

func TestExportRefs(t *testing.T) {
	refs := exportRefs([]archive.ModInfo{
		{ModID: "carrycapacity", Version: "1.2.0"},
		{Version: "0.1.0"},
		{ModID: "fancyrug", Version: "2.0.1"},
	})
	decoded, err := modset.Decode(modset.Encode(refs))
	require.NoError(t, err)
	assert.Equal(t, []modset.Reference{
		{ModID: "carrycapacity", Version: "1.2.0"},
		{ModID: "fancyrug", Version: "2.0.1"},
	}, decoded)
}

func TestWriteArchive(t *testing.T) {
	dir := t.TempDir()
	modDir := filepath.Join(dir, "fancyrug_2.0.1")
	require.NoError(t, os.MkdirAll(modDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(modDir, "modinfo.json"), []byte(fancyrugModInfo), 0644))

	target := filepath.Join(dir, "pack.zip")
	require.NoError(t, writeArchive(target, []archive.ModInfo{{ModID: "fancyrug", Path: modDir}}))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	out := filepath.Join(dir, "out")
	require.NoError(t, archive.Zip{}.Extract(data, out))
	_, err = os.Stat(filepath.Join(out, "fancyrug_2.0.1", "modinfo.json"))
	assert.NoError(t, err)
}
