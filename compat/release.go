package compat

import (
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// TagSet is the set of catalog tags a release declares support for.
type TagSet map[Tag]struct{}

func NewTagSet(tags ...Tag) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

func (s TagSet) Has(t Tag) bool {
	_, ok := s[t]
	return ok
}

// ModRelease is one downloadable release of a mod as listed by the catalog.
type ModRelease struct {
	ModID         string
	Version       string
	SupportedTags TagSet
	FileURL       string
	FileName      string
	Created       time.Time
}

// newerThan orders releases by recency. Versions that parse as semver rank
// above ones that don't; then the creation time decides (unknown is
// oldest), then plain string order.
func (r ModRelease) newerThan(o ModRelease) bool {
	a, errA := semver.NewVersion(r.Version)
	b, errB := semver.NewVersion(o.Version)
	switch {
	case errA == nil && errB == nil:
		if c := a.Compare(b); c != 0 {
			return c > 0
		}
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	if !r.Created.Equal(o.Created) {
		return r.Created.After(o.Created)
	}
	return strings.Compare(r.Version, o.Version) > 0
}

// SortNewest orders releases newest first, in place.
func SortNewest(rs []ModRelease) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].newerThan(rs[j]) })
}
