package compat

import (
	"fmt"
	"time"
)

// Tag is the catalog's opaque compatibility label, e.g. "v1.19" or "1.20.3".
type Tag string

// Entry maps one game version range to a catalog tag.
type Entry struct {
	Range     Range
	Tag       Tag
	FetchedAt time.Time
}

// NewEntry parses rawRange and builds an entry.
func NewEntry(rawRange string, tag Tag, fetchedAt time.Time) (Entry, error) {
	if tag == "" {
		return Entry{}, fmt.Errorf("entry %q: empty tag", rawRange)
	}
	r, err := ParseRange(rawRange)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Range: r, Tag: tag, FetchedAt: fetchedAt}, nil
}

// Table is an immutable, ordered list of entries. Order is the order in
// which the remote source listed them.
type Table struct {
	entries []Entry
}

// NewTable copies entries into a new table.
func NewTable(entries []Entry) Table {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return Table{entries: cp}
}

func (t Table) Len() int { return len(t.entries) }

// Entries returns a copy of the table rows.
func (t Table) Entries() []Entry {
	cp := make([]Entry, len(t.entries))
	copy(cp, t.entries)
	return cp
}

// Lookup returns the tag of the most specific range containing v. An exact
// version beats a wildcard; among equally specific ranges the earlier row
// wins. The source's ordering is not relied upon.
func (t Table) Lookup(v GameVersion) (Tag, bool) {
	best := -1
	for i, e := range t.entries {
		if !e.Range.Contains(v) {
			continue
		}
		if best < 0 || e.Range.Specificity() > t.entries[best].Range.Specificity() {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return t.entries[best].Tag, true
}

// NearestLower returns the row with the highest floor not above v.
func (t Table) NearestLower(v GameVersion) (Entry, bool) {
	return t.pick(func(e, cur Entry) bool {
		return e.Range.Floor().Compare(v) <= 0 &&
			(cur.Range.IsZero() || e.Range.Floor().Compare(cur.Range.Floor()) > 0)
	})
}

// Lowest returns the row with the lowest floor.
func (t Table) Lowest() (Entry, bool) {
	return t.pick(func(e, cur Entry) bool {
		return cur.Range.IsZero() || e.Range.Floor().Compare(cur.Range.Floor()) < 0
	})
}

// Highest returns the row with the highest floor, i.e. the newest known tag.
func (t Table) Highest() (Entry, bool) {
	return t.pick(func(e, cur Entry) bool {
		return cur.Range.IsZero() || e.Range.Floor().Compare(cur.Range.Floor()) > 0
	})
}

// HasTag reports whether any row carries tag.
func (t Table) HasTag(tag Tag) bool {
	for _, e := range t.entries {
		if e.Tag == tag {
			return true
		}
	}
	return false
}

func (t Table) pick(better func(e, cur Entry) bool) (Entry, bool) {
	var cur Entry
	found := false
	for _, e := range t.entries {
		if better(e, cur) {
			cur = e
			found = true
		}
	}
	return cur, found
}
