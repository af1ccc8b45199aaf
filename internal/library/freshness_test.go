package library

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/podkeep/podkeep/internal/domain"
)

func TestClassify(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	entryAged := func(age time.Duration) *domain.CacheEntry {
		return &domain.CacheEntry{Key: "abc", FetchedAt: now.Add(-age)}
	}

	tests := []struct {
		name   string
		entry  *domain.CacheEntry
		minTTL time.Duration
		want   Freshness
	}{
		{name: "nil entry", entry: nil, minTTL: time.Hour, want: FreshnessMissing},
		{name: "just fetched", entry: entryAged(0), minTTL: time.Hour, want: FreshnessFresh},
		{name: "inside ttl", entry: entryAged(59 * time.Minute), minTTL: time.Hour, want: FreshnessFresh},
		{name: "exactly at ttl", entry: entryAged(time.Hour), minTTL: time.Hour, want: FreshnessStale},
		{name: "past ttl", entry: entryAged(61 * time.Minute), minTTL: time.Hour, want: FreshnessStale},
		{name: "zero ttl uses default", entry: entryAged(59 * time.Minute), minTTL: 0, want: FreshnessFresh},
		{name: "negative ttl uses default", entry: entryAged(2 * time.Hour), minTTL: -1, want: FreshnessStale},
		{name: "future fetch time", entry: entryAged(-time.Minute), minTTL: time.Hour, want: FreshnessFresh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.entry, now, tt.minTTL))
		})
	}
}

func TestClassify_ShortTTL(t *testing.T) {
	now := time.Now()
	entry := &domain.CacheEntry{Key: "abc", FetchedAt: now.Add(-30 * time.Second)}

	assert.Equal(t, FreshnessStale, Classify(entry, now, 10*time.Second))
	assert.Equal(t, FreshnessFresh, Classify(entry, now, time.Minute))
}

func TestFreshness_String(t *testing.T) {
	assert.Equal(t, "Missing", FreshnessMissing.String())
	assert.Equal(t, "Fresh", FreshnessFresh.String())
	assert.Equal(t, "Stale", FreshnessStale.String())
	assert.Equal(t, "Unknown", Freshness(99).String())
}
