package modset

import (
	"fmt"
	"strings"
)

// Reference names one mod and, optionally, the version to install. An empty
// Version means "newest compatible".
type Reference struct {
	ModID   string
	Version string
}

func (r Reference) String() string {
	if r.Version == "" {
		return r.ModID
	}
	return r.ModID + "@" + r.Version
}

// ParseReference reads "modid" or "modid@version".
func ParseReference(s string) (Reference, error) {
	s = strings.TrimSpace(s)
	id, version, _ := strings.Cut(s, "@")
	id = strings.TrimSpace(id)
	if id == "" {
		return Reference{}, fmt.Errorf("mod reference %q: empty mod id", s)
	}
	return Reference{ModID: id, Version: strings.TrimSpace(version)}, nil
}

// ParseList splits a comma separated list of references.
func ParseList(s string) ([]Reference, error) {
	var refs []Reference
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		r, err := ParseReference(part)
		if err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return Dedupe(refs), nil
}

// Dedupe keeps the last occurrence of every mod id, at the position of that
// last occurrence. References with an empty mod id are dropped.
func Dedupe(refs []Reference) []Reference {
	last := make(map[string]int, len(refs))
	for i, r := range refs {
		if r.ModID != "" {
			last[r.ModID] = i
		}
	}
	out := make([]Reference, 0, len(last))
	for i, r := range refs {
		if r.ModID != "" && last[r.ModID] == i {
			out = append(out, r)
		}
	}
	return out
}
