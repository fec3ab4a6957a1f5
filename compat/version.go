// Package compat maps a local game installation to the compatibility tags
// used by the mod catalog and decides which mod releases fit it.
//
// Everything in this package is synchronous and free of I/O except the
// installation detector, which only reads files.
package compat

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// GameVersion is an immutable semantic game version.
//
// The zero value is not a valid version; use IsZero to check for it.
type GameVersion struct {
	v *semver.Version
}

// ParseGameVersion parses a semantic version. A leading "v" and a missing
// patch component are accepted ("v1.20" == "1.20.0").
func ParseGameVersion(raw string) (GameVersion, error) {
	v, err := semver.NewVersion(strings.TrimSpace(raw))
	if err != nil {
		return GameVersion{}, fmt.Errorf("parse game version %q: %w", raw, err)
	}
	return GameVersion{v: v}, nil
}

// MustParseGameVersion is like ParseGameVersion but panics on error.
func MustParseGameVersion(raw string) GameVersion {
	v, err := ParseGameVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func newGameVersion(major, minor, patch uint64) GameVersion {
	return GameVersion{v: semver.New(major, minor, patch, "", "")}
}

func (g GameVersion) IsZero() bool { return g.v == nil }

func (g GameVersion) Major() uint64 {
	if g.v == nil {
		return 0
	}
	return g.v.Major()
}

func (g GameVersion) Minor() uint64 {
	if g.v == nil {
		return 0
	}
	return g.v.Minor()
}

func (g GameVersion) Patch() uint64 {
	if g.v == nil {
		return 0
	}
	return g.v.Patch()
}

func (g GameVersion) Prerelease() string {
	if g.v == nil {
		return ""
	}
	return g.v.Prerelease()
}

// Compare returns -1, 0 or 1. The zero version sorts before every other.
func (g GameVersion) Compare(o GameVersion) int {
	switch {
	case g.v == nil && o.v == nil:
		return 0
	case g.v == nil:
		return -1
	case o.v == nil:
		return 1
	}
	return g.v.Compare(o.v)
}

func (g GameVersion) Equal(o GameVersion) bool { return g.Compare(o) == 0 }

// String renders the normalized form, without a "v" prefix.
func (g GameVersion) String() string {
	if g.v == nil {
		return ""
	}
	return g.v.String()
}
