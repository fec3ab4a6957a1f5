package compat

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

var (
	// ErrNotInstallation means the path does not look like a game install.
	ErrNotInstallation = errors.New("not a game installation")
	// ErrUnparseable means the version string could not be read as semver.
	ErrUnparseable = errors.New("unparseable game version")
)

// DetectionError carries the path and cause of a failed detection.
type DetectionError struct {
	Kind error // ErrNotInstallation or ErrUnparseable
	Path string
	Err  error
}

func (e *DetectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Kind)
}

func (e *DetectionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Files or directories whose presence marks an installation root.
var installMarkers = []string{
	"assets",
	"Lib",
	"VintageStory.exe",
	"VintageStory",
	"Vintagestory.app",
}

// IsInstallation reports whether root looks like a game installation.
func IsInstallation(root string) bool {
	for _, m := range installMarkers {
		if _, err := os.Stat(filepath.Join(root, m)); err == nil {
			return true
		}
	}
	return false
}

// DetectVersion reads the game version of the installation at root.
//
// The game ships its version as the file name assets/version-<ver>.txt; an
// assets/version.txt holding the version as text is used as a fallback.
func DetectVersion(root string) (GameVersion, error) {
	if root == "" || !IsInstallation(root) {
		return GameVersion{}, &DetectionError{Kind: ErrNotInstallation, Path: root}
	}

	assets := filepath.Join(root, "assets")
	raw, err := versionFromAssets(assets)
	if err != nil {
		return GameVersion{}, &DetectionError{Kind: ErrNotInstallation, Path: root, Err: err}
	}

	v, err := ParseGameVersion(cleanVersionString(raw))
	if err != nil {
		return GameVersion{}, &DetectionError{Kind: ErrUnparseable, Path: root, Err: err}
	}
	return v, nil
}

// versionFromAssets picks the highest parseable version-<v>.txt name in
// assets, then falls back to the contents of version.txt.
func versionFromAssets(assets string) (string, error) {
	entries, err := os.ReadDir(assets)
	if err != nil {
		return "", fmt.Errorf("read assets directory: %w", err)
	}
	var (
		best     GameVersion
		bestRaw  string
		firstBad string
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "version-") || !strings.HasSuffix(name, ".txt") {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, "version-"), ".txt")
		v, err := ParseGameVersion(cleanVersionString(raw))
		if err != nil {
			if firstBad == "" {
				firstBad = raw
			}
			continue
		}
		if bestRaw == "" || v.Compare(best) > 0 {
			best, bestRaw = v, raw
		}
	}
	if bestRaw != "" {
		return bestRaw, nil
	}
	data, err := os.ReadFile(filepath.Join(assets, "version.txt"))
	if err != nil {
		if firstBad != "" {
			return firstBad, nil
		}
		return "", fmt.Errorf("no version file in %s: %w", assets, err)
	}
	return string(data), nil
}

// cleanVersionString trims whitespace, drops build metadata and anything
// after the first space, then strips non-numeric trailing segments until the
// string parses ("1.20.3.final" -> "1.20.3").
func cleanVersionString(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, " \t\r\n"); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '+'); i >= 0 {
		s = s[:i]
	}
	for {
		if _, err := ParseGameVersion(s); err == nil {
			return s
		}
		i := strings.LastIndexAny(s, ".-_")
		if i <= 0 {
			return s
		}
		if _, err := strconv.ParseUint(s[i+1:], 10, 64); err == nil {
			return s
		}
		s = s[:i]
	}
}

// GuessInstallPaths lists the usual installation directories for this
// platform, in probe order.
func GuessInstallPaths() []string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		return []string{
			filepath.Join(appData, "Vintagestory"),
			`C:\Program Files\Vintage Story`,
			`C:\Program Files (x86)\Vintage Story`,
		}
	case "darwin":
		return []string{
			"/Applications/Vintage Story.app",
			filepath.Join(home, "Applications", "Vintage Story.app"),
		}
	default:
		return []string{
			filepath.Join(home, ".local", "share", "vintagestory"),
			filepath.Join(home, ".local", "share", "VintageStory"),
			"/opt/vintagestory",
			"/usr/share/vintagestory",
		}
	}
}

// FindInstallation returns the first guessed path that is an installation.
func FindInstallation() (string, bool) {
	for _, p := range GuessInstallPaths() {
		if IsInstallation(p) {
			return p, true
		}
	}
	return "", false
}
