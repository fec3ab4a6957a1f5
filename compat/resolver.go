package compat

// Confidence describes how the effective tag was chosen.
type Confidence int

const (
	// Exact: manual override, or the detected version is inside a known range.
	Exact Confidence = iota
	// RangeFallback: detected version is unknown; the nearest lower range was used.
	RangeFallback
	// DefaultFallback: no version was detected; the newest known tag was used.
	DefaultFallback
)

func (c Confidence) String() string {
	switch c {
	case Exact:
		return "exact"
	case RangeFallback:
		return "range-fallback"
	case DefaultFallback:
		return "default-fallback"
	default:
		return "unknown"
	}
}

// Effective is the tag used for this session's filtering decisions.
type Effective struct {
	Tag        Tag
	Confidence Confidence
}

// Resolve picks the effective tag. It never fails: each branch below is
// terminal and the first that applies wins.
//
//  1. a non-empty override is returned as Exact;
//  2. a detected version inside a table range is Exact;
//  3. a detected version outside every range falls back to the nearest
//     lower range, or the lowest one, as RangeFallback;
//  4. without a detected version the newest tag is a DefaultFallback.
//
// With an empty table and no override the result has an empty Tag.
func Resolve(detected *GameVersion, table Table, override Tag) Effective {
	if override != "" {
		return Effective{Tag: override, Confidence: Exact}
	}

	if detected != nil && !detected.IsZero() {
		if tag, ok := table.Lookup(*detected); ok {
			return Effective{Tag: tag, Confidence: Exact}
		}
		if e, ok := table.NearestLower(*detected); ok {
			return Effective{Tag: e.Tag, Confidence: RangeFallback}
		}
		e, _ := table.Lowest()
		return Effective{Tag: e.Tag, Confidence: RangeFallback}
	}

	e, _ := table.Highest()
	return Effective{Tag: e.Tag, Confidence: DefaultFallback}
}
