package archive

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScanMods reads the modinfo of every zip and folder directly inside dir.
// Entries that cannot be read are returned as errors next to the mods that
// could; hidden entries (staging dirs, dotfiles) are ignored.
func ScanMods(dir string) ([]ModInfo, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{err}
	}

	var mods []ModInfo
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !e.IsDir() && !strings.EqualFold(filepath.Ext(name), ".zip") {
			continue
		}
		info, err := ReadModInfo(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		mods = append(mods, info)
	}

	sort.Slice(mods, func(i, j int) bool { return mods[i].ModID < mods[j].ModID })
	return mods, errs
}
