package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/klauspost/compress/zip"
)

// ErrNoModInfo means a zip or folder carries no modinfo.json.
var ErrNoModInfo = errors.New("modinfo.json not found")

const modInfoName = "modinfo.json"

// ModInfo is the subset of modinfo.json the manager cares about.
type ModInfo struct {
	ModID   string
	Name    string
	Version string
	Type    string
	Side    string
	Authors []string
	// Path is the zip file or folder the info was read from.
	Path string
}

// ReadModInfo reads modinfo.json from a mod zip or an unpacked mod folder.
// Keys match case-insensitively, trailing commas are tolerated and fields of
// an unexpected type are ignored. A missing modid is derived from the name.
func ReadModInfo(p string) (ModInfo, error) {
	st, err := os.Stat(p)
	if err != nil {
		return ModInfo{}, err
	}

	var raw []byte
	if st.IsDir() {
		raw, err = os.ReadFile(filepath.Join(p, modInfoName))
		if errors.Is(err, os.ErrNotExist) {
			return ModInfo{}, fmt.Errorf("%s: %w", p, ErrNoModInfo)
		}
	} else {
		raw, err = readFromZip(p)
	}
	if err != nil {
		return ModInfo{}, err
	}

	info, err := parseModInfo(raw)
	if err != nil {
		return ModInfo{}, fmt.Errorf("%s: %w", p, err)
	}
	info.Path = p
	return info, nil
}

func readFromZip(p string) ([]byte, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	defer zr.Close()

	// Prefer the root entry; some archives wrap everything in one folder.
	var found *zip.File
	for _, f := range zr.File {
		if !strings.EqualFold(path.Base(f.Name), modInfoName) {
			continue
		}
		if found == nil || strings.Count(f.Name, "/") < strings.Count(found.Name, "/") {
			found = f
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%s: %w", p, ErrNoModInfo)
	}

	rc, err := found.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, 1<<20))
}

func parseModInfo(raw []byte) (ModInfo, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	var fields map[string]any
	if err := json.Unmarshal(stripTrailingCommas(raw), &fields); err != nil {
		return ModInfo{}, fmt.Errorf("parse %s: %w", modInfoName, err)
	}
	lower := make(map[string]any, len(fields))
	for k, v := range fields {
		lower[strings.ToLower(k)] = v
	}
	str := func(key string) string {
		s, _ := lower[key].(string)
		return strings.TrimSpace(s)
	}

	info := ModInfo{
		ModID:   strings.ToLower(str("modid")),
		Name:    str("name"),
		Version: str("version"),
		Type:    strings.ToLower(str("type")),
		Side:    strings.ToLower(str("side")),
	}
	if list, ok := lower["authors"].([]any); ok {
		for _, a := range list {
			if s, ok := a.(string); ok {
				info.Authors = append(info.Authors, s)
			}
		}
	}
	if info.ModID == "" {
		info.ModID = modIDFromName(info.Name)
	}
	if info.ModID == "" {
		return ModInfo{}, errors.New("no modid or name")
	}
	return info, nil
}

// modIDFromName lowercases name and keeps only letters and digits, which is
// how the game derives an id for mods that omit one.
func modIDFromName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripTrailingCommas drops commas that directly precede a closing brace or
// bracket, ignoring anything inside string literals.
func stripTrailingCommas(in []byte) []byte {
	out := make([]byte, 0, len(in))
	inString, escaped := false, false

	for i := 0; i < len(in); i++ {
		c := in[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			out = append(out, c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(in) && isJSONSpace(in[j]) {
				j++
			}
			if j < len(in) && (in[j] == '}' || in[j] == ']') {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
