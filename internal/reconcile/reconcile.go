// Package reconcile computes what changed between two fetches of a show's
// episode list. All functions are pure: identity comes from episode IDs,
// content comparison ignores local listening state, and carry-over moves
// that state forward unchanged.
package reconcile

import "github.com/podkeep/podkeep/internal/domain"

// Dedupe collapses duplicate episode IDs, keeping the last occurrence of
// each. The surviving episodes keep their relative order; dups lists every
// ID that appeared more than once.
func Dedupe(episodes []domain.Episode) ([]domain.Episode, []string) {
	counts := make(map[string]int, len(episodes))
	for _, e := range episodes {
		counts[e.ID]++
	}

	var dups []string
	seen := make(map[string]bool, len(counts))
	out := make([]domain.Episode, 0, len(counts))
	for i := len(episodes) - 1; i >= 0; i-- {
		e := episodes[i]
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
		if counts[e.ID] > 1 {
			dups = append(dups, e.ID)
		}
	}

	// Walking backwards reversed the order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, dups
}

// Diff computes the changeset between two episode lists keyed by ID.
// An ID lands in exactly one bucket: Added when only next has it, Removed
// when only old has it, Updated when both have it with different content.
func Diff(old, next []domain.Episode) domain.Changeset {
	oldByID := make(map[string]domain.Episode, len(old))
	for _, e := range old {
		oldByID[e.ID] = e
	}
	nextIDs := make(map[string]struct{}, len(next))

	var cs domain.Changeset
	for _, e := range next {
		nextIDs[e.ID] = struct{}{}
		prev, ok := oldByID[e.ID]
		if !ok {
			cs.Added = append(cs.Added, e)
			continue
		}
		if !e.ContentEquals(prev) {
			cs.Updated = append(cs.Updated, e)
		}
	}
	for _, e := range old {
		if _, ok := nextIDs[e.ID]; !ok {
			cs.Removed = append(cs.Removed, e)
		}
	}
	return cs
}

// CarryOver copies local listening state from old onto next for every ID
// present in both lists. The result is in next's order; episodes new to the
// feed keep zero state.
func CarryOver(old, next []domain.Episode) []domain.Episode {
	oldByID := make(map[string]domain.Episode, len(old))
	for _, e := range old {
		oldByID[e.ID] = e
	}

	merged := make([]domain.Episode, len(next))
	for i, e := range next {
		if prev, ok := oldByID[e.ID]; ok {
			e.Position = prev.Position
			e.Played = prev.Played
			e.LocalFile = prev.LocalFile
		}
		merged[i] = e
	}
	return merged
}
