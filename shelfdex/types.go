package shelfdex

// SearchConfig carries the switches the query evaluator needs. It is
// threaded into each search explicitly; the engine keeps no ambient
// search state.
type SearchConfig struct {
	// TriStateBools keeps "unset" as its own bucket for boolean
	// fields. When false, unset collapses into false.
	TriStateBools bool

	// LimitToFields restricts unqualified searches to the named
	// fields. Empty means every searchable field.
	LimitToFields []string

	// Logf receives recovered per-row coercion warnings. Nil drops
	// them.
	Logf func(format string, args ...any)
}

// DefaultSearchConfig returns the binary-boolean, unrestricted config.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{}
}

// SortConfig carries sort-time settings.
type SortConfig struct {
	// Locale is a BCP 47 tag selecting the collation rules. Empty
	// uses the root collation.
	Locale string

	// TriStateBools must match the search-side setting so boolean
	// ordering and boolean matching agree on what "unset" means.
	TriStateBools bool
}

// DefaultSortConfig returns the root-collation config.
func DefaultSortConfig() SortConfig {
	return SortConfig{}
}

// SortField names one sort key, highest priority first.
type SortField struct {
	Key       string
	Ascending bool
}
