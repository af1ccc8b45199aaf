package search

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/podkeep/podkeep/internal/domain"
)

// FindShow resolves a human-typed query against subscribed show titles and
// returns the best match. Exact keys should be tried before falling back
// to this.
func (s *Service) FindShow(query string) (domain.Show, bool) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return domain.Show{}, false
	}

	shows := s.library.Shows()
	titles := make([]string, len(shows))
	for i, show := range shows {
		titles[i] = strings.ToLower(show.Title)
	}

	ranks := fuzzy.RankFindFold(query, titles)
	if len(ranks) == 0 {
		return domain.Show{}, false
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i].Distance < ranks[j].Distance })
	return shows[ranks[0].OriginalIndex], true
}

// matchScore ranks how well title matches query. Lower is better: exact
// match, then prefix, then substring, then edit distance.
func matchScore(query, title string) int {
	if title == query {
		return 0
	}
	if strings.HasPrefix(title, query) {
		return 10
	}
	if strings.Contains(title, query) {
		return 50
	}
	return 100 + fuzzy.LevenshteinDistance(query, title)
}

// RankShows orders all subscriptions by how well they match query.
func (s *Service) RankShows(query string) []domain.Show {
	query = strings.ToLower(strings.TrimSpace(query))
	shows := s.library.Shows()
	if query == "" {
		return shows
	}

	type scored struct {
		show  domain.Show
		score int
	}
	ranked := make([]scored, len(shows))
	for i, show := range shows {
		ranked[i] = scored{show: show, score: matchScore(query, strings.ToLower(show.Title))}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score < ranked[j].score })

	out := make([]domain.Show, len(ranked))
	for i, r := range ranked {
		out[i] = r.show
	}
	return out
}
