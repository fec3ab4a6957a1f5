package compat

import (
	"fmt"
	"strconv"
	"strings"
)

// Specificity of a range; higher values are narrower.
const (
	specAny   = 0 // "*"
	specMajor = 1 // "1.*"
	specMinor = 2 // "1.20.*"
	specExact = 3 // "1.20.3"
)

// Range is a set of game versions that share one catalog tag.
//
// Two forms are understood: an exact version ("1.20.3", "v1.15.3-rc.1") and
// a trailing wildcard ("1.20.*", "1.20.x", "1.*", "*"). Wildcards ignore
// pre-release labels, so "1.20.*" contains "1.20.0-rc.2".
type Range struct {
	raw   string
	floor GameVersion
	spec  int
}

// ParseRange parses an exact or wildcard version range.
func ParseRange(raw string) (Range, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Range{}, fmt.Errorf("parse range: empty")
	}
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "v"), "V")

	parts := strings.Split(trimmed, ".")
	last := parts[len(parts)-1]
	if last != "*" && last != "x" && last != "X" {
		v, err := ParseGameVersion(trimmed)
		if err != nil {
			return Range{}, fmt.Errorf("parse range %q: %w", raw, err)
		}
		return Range{raw: s, floor: v, spec: specExact}, nil
	}

	fixed := parts[:len(parts)-1]
	if len(fixed) > 2 {
		return Range{}, fmt.Errorf("parse range %q: too many components", raw)
	}
	nums := make([]uint64, 3)
	for i, p := range fixed {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Range{}, fmt.Errorf("parse range %q: component %q is not numeric", raw, p)
		}
		nums[i] = n
	}
	return Range{
		raw:   s,
		floor: newGameVersion(nums[0], nums[1], nums[2]),
		spec:  len(fixed),
	}, nil
}

// MustParseRange is like ParseRange but panics on error.
func MustParseRange(raw string) Range {
	r, err := ParseRange(raw)
	if err != nil {
		panic(err)
	}
	return r
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v GameVersion) bool {
	if v.IsZero() || r.floor.IsZero() {
		return false
	}
	switch r.spec {
	case specExact:
		return r.floor.Equal(v)
	case specMinor:
		return v.Major() == r.floor.Major() && v.Minor() == r.floor.Minor()
	case specMajor:
		return v.Major() == r.floor.Major()
	default:
		return true
	}
}

// Floor is the lowest release version inside the range.
func (r Range) Floor() GameVersion { return r.floor }

// Exact reports whether the range names a single version.
func (r Range) Exact() bool { return r.spec == specExact }

// Specificity orders ranges from widest (0) to a single version (3).
func (r Range) Specificity() int { return r.spec }

func (r Range) IsZero() bool { return r.raw == "" }

// String returns the range as it was written.
func (r Range) String() string { return r.raw }
