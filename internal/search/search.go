// Package search provides local fuzzy search over cached shows and
// episodes. It only reads what the cache already holds; it never triggers
// a network refresh.
package search

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"

	"github.com/podkeep/podkeep/internal/domain"
)

// Entry is one searchable record in the index.
type Entry struct {
	Key       string // Show key
	EpisodeID string // Empty for the show record itself
	Title     string
	ShowTitle string
}

// Result pairs an index entry with match metadata for highlighting.
type Result struct {
	Entry
	MatchedIndexes []int
	Score          int
}

// Index implements fuzzy.Source over lowercased entry titles.
type Index struct {
	entries     []Entry
	lowerTitles []string
}

// String returns the lowercase title at index i (implements fuzzy.Source)
func (ix *Index) String(i int) string { return ix.lowerTitles[i] }

// Len returns the number of entries (implements fuzzy.Source)
func (ix *Index) Len() int { return len(ix.entries) }

func (ix *Index) add(e Entry) {
	ix.entries = append(ix.entries, e)
	ix.lowerTitles = append(ix.lowerTitles, strings.ToLower(e.Title))
}

// Library is the slice of the cache service the index reads from.
type Library interface {
	Shows() []domain.Show
	CachedEpisodes(key string) ([]domain.Episode, bool)
}

// Service ranks cached shows and episodes against free-text queries.
type Service struct {
	library Library
	logger  *slog.Logger

	mu    sync.RWMutex
	index *Index
}

// NewService creates a search service over library. Call Rebuild before
// the first query.
func NewService(library Library, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{library: library, logger: logger, index: &Index{}}
}

// Rebuild recomputes the index from currently cached data.
func (s *Service) Rebuild() {
	ix := &Index{}
	for _, show := range s.library.Shows() {
		ix.add(Entry{Key: show.ID, Title: show.Title, ShowTitle: show.Title})
		episodes, ok := s.library.CachedEpisodes(show.ID)
		if !ok {
			continue
		}
		for _, ep := range episodes {
			ix.add(Entry{Key: show.ID, EpisodeID: ep.ID, Title: ep.Title, ShowTitle: show.Title})
		}
	}

	s.mu.Lock()
	s.index = ix
	s.mu.Unlock()
	s.logger.Debug("rebuilt search index", "entries", ix.Len())
}

// Search returns entries matching query, best first.
func (s *Service) Search(query string) []Result {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	s.mu.RLock()
	ix := s.index
	s.mu.RUnlock()
	if ix.Len() == 0 {
		return nil
	}

	matches := fuzzy.FindFrom(query, ix)
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{
			Entry:          ix.entries[m.Index],
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		})
	}
	return results
}
