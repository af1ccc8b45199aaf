package library

import (
	"time"

	"github.com/podkeep/podkeep/internal/domain"
)

// DefaultMinTTL is how long a successful fetch satisfies reads before a
// refresh is considered.
const DefaultMinTTL = time.Hour

// Freshness classifies a cached entry relative to the refresh TTL.
type Freshness int

const (
	FreshnessMissing Freshness = iota
	FreshnessFresh
	FreshnessStale
)

// String returns a human-readable representation of the freshness class.
func (f Freshness) String() string {
	switch f {
	case FreshnessMissing:
		return "Missing"
	case FreshnessFresh:
		return "Fresh"
	case FreshnessStale:
		return "Stale"
	default:
		return "Unknown"
	}
}

// Classify reports whether entry can serve reads without a network refresh.
// An entry is Fresh while strictly less than minTTL has elapsed since its
// FetchedAt. A non-positive minTTL selects DefaultMinTTL. Pure function:
// the answer depends only on the arguments.
func Classify(entry *domain.CacheEntry, now time.Time, minTTL time.Duration) Freshness {
	if entry == nil {
		return FreshnessMissing
	}
	if minTTL <= 0 {
		minTTL = DefaultMinTTL
	}
	if now.Sub(entry.FetchedAt) < minTTL {
		return FreshnessFresh
	}
	return FreshnessStale
}
