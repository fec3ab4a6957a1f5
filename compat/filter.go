package compat

// Reason explains why a release or a mod was left out.
type Reason int

const (
	// ReasonTagMismatch: the release does not list the effective tag.
	ReasonTagMismatch Reason = iota + 1
	// ReasonNoCompatibleRelease: the mod has no eligible release at all.
	ReasonNoCompatibleRelease
)

func (r Reason) String() string {
	switch r {
	case ReasonTagMismatch:
		return "tag mismatch"
	case ReasonNoCompatibleRelease:
		return "no compatible release"
	default:
		return "unknown"
	}
}

// Exclusion records a release or mod that did not make it. For
// ReasonNoCompatibleRelease Release is the zero value.
type Exclusion struct {
	ModID   string
	Release ModRelease
	Reason  Reason
}

// Outcome is the result of Filter.
type Outcome struct {
	// Eligible releases, newest first.
	Eligible []ModRelease
	Excluded []Exclusion
}

// Filter splits releases into those supporting eff.Tag and the rest.
//
// requested lists mod ids the caller asked for; it may contain ids that have
// no releases in the input at all. Every requested or present mod without an
// eligible release is reported once with ReasonNoCompatibleRelease.
func Filter(releases []ModRelease, eff Effective, requested []string) Outcome {
	var out Outcome
	hasEligible := make(map[string]bool)
	var order []string

	note := func(id string) {
		if _, seen := hasEligible[id]; !seen {
			hasEligible[id] = false
			order = append(order, id)
		}
	}
	for _, id := range requested {
		note(id)
	}

	for _, r := range releases {
		note(r.ModID)
		if eff.Tag != "" && r.SupportedTags.Has(eff.Tag) {
			out.Eligible = append(out.Eligible, r)
			hasEligible[r.ModID] = true
			continue
		}
		out.Excluded = append(out.Excluded, Exclusion{ModID: r.ModID, Release: r, Reason: ReasonTagMismatch})
	}

	SortNewest(out.Eligible)

	for _, id := range order {
		if !hasEligible[id] {
			out.Excluded = append(out.Excluded, Exclusion{ModID: id, Reason: ReasonNoCompatibleRelease})
		}
	}
	return out
}

// Best returns the newest eligible release of modID.
func (o Outcome) Best(modID string) (ModRelease, bool) {
	for _, r := range o.Eligible {
		if r.ModID == modID {
			return r, true
		}
	}
	return ModRelease{}, false
}

// Find returns the eligible release of modID with the given version.
func (o Outcome) Find(modID, version string) (ModRelease, bool) {
	for _, r := range o.Eligible {
		if r.ModID == modID && r.Version == version {
			return r, true
		}
	}
	return ModRelease{}, false
}

// Missing lists the mod ids reported with ReasonNoCompatibleRelease.
func (o Outcome) Missing() []string {
	var ids []string
	for _, e := range o.Excluded {
		if e.Reason == ReasonNoCompatibleRelease {
			ids = append(ids, e.ModID)
		}
	}
	return ids
}
