package domain

import "time"

// EntryState records how a cache entry came to hold its current contents.
type EntryState int

const (
	StateFresh EntryState = iota
	StateStale
	StateMigrating
)

// String returns a human-readable representation of the entry state.
func (s EntryState) String() string {
	switch s {
	case StateFresh:
		return "Fresh"
	case StateStale:
		return "Stale"
	case StateMigrating:
		return "Migrating"
	default:
		return "Unknown"
	}
}

// CacheEntry is one show's cached episode list together with its refresh
// metadata. FetchedAt never moves backwards for a given key.
type CacheEntry struct {
	Key        string     // Show key the entry belongs to
	Episodes   []Episode  // Episode list in feed order, local state included
	FetchedAt  time.Time  // When the contents were last accepted
	SourceHint string     // Server-provided modification marker, opaque
	State      EntryState // Lifecycle state at last persist
}

// Changeset describes what a refresh changed about a show's episode list.
// An episode ID appears in at most one of the three buckets.
type Changeset struct {
	Added   []Episode // Present now, absent before
	Removed []Episode // Present before, absent now
	Updated []Episode // Present in both with different feed content
}

// IsEmpty returns true if the refresh changed nothing.
func (c Changeset) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Updated) == 0
}
