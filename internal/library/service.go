package library

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/podkeep/podkeep/internal/domain"
	"github.com/podkeep/podkeep/internal/feed"
	"github.com/podkeep/podkeep/internal/reconcile"
)

const (
	defaultMaxParallel = 4
	maxParallelCap     = 8
)

// FeedSource retrieves and decodes a show's feed. Implemented by
// feed.Source; tests substitute their own.
type FeedSource interface {
	FetchShow(ctx context.Context, url string) (*feed.Document, error)
}

// Options tunes the cache service.
type Options struct {
	MinTTL      time.Duration // Refresh threshold, DefaultMinTTL when zero
	MaxParallel int           // Batch refresh concurrency, clamped to 1..8
	LegacyPath  string        // Pre-BoltDB cache file, empty disables migration
}

// Result is what a caller gets back from Episodes. On a failed refresh with
// cached data available, Episodes is still populated and the error reports
// the failure (check Stale). Warn carries non-fatal persistence problems.
type Result struct {
	Episodes  []domain.Episode
	Changes   *domain.Changeset // nil when served from cache
	FromCache bool              // No network fetch produced this data
	Stale     bool              // Data is older than the TTL
	Warn      error             // Refresh succeeded but could not be persisted
}

// refreshOutcome is the value shared between coalesced callers.
type refreshOutcome struct {
	episodes []domain.Episode
	changes  *domain.Changeset
	warn     error
}

// Service orchestrates feed refreshes and the local episode cache.
// The in-memory index is authoritative; the durable store follows it on a
// best-effort basis.
type Service struct {
	source FeedSource
	store  domain.Store
	opts   Options
	logger *slog.Logger

	mu    sync.RWMutex // Protects shows and index
	shows map[string]domain.Show
	index map[string]*domain.CacheEntry

	group singleflight.Group
}

// NewService creates the cache service and loads the subscription list
// from the store. Cached episode lists load lazily on first access.
func NewService(source FeedSource, store domain.Store, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MinTTL <= 0 {
		opts.MinTTL = DefaultMinTTL
	}
	s := &Service{
		source: source,
		store:  store,
		opts:   opts,
		logger: logger,
		shows:  make(map[string]domain.Show),
		index:  make(map[string]*domain.CacheEntry),
	}
	if shows, ok := store.GetShows(); ok {
		for _, show := range shows {
			s.shows[show.ID] = show
		}
	}
	return s
}

// Episodes returns the episode list for a subscribed show. A fresh cached
// entry is served directly unless force is set; otherwise the feed is
// refreshed. Concurrent calls for the same key share a single refresh and
// observe the same changeset. A caller whose ctx ends stops waiting, but
// the refresh itself runs to completion and updates the cache.
func (s *Service) Episodes(ctx context.Context, key string, force bool) (*Result, error) {
	s.mu.RLock()
	show, subscribed := s.shows[key]
	s.mu.RUnlock()
	if !subscribed {
		return nil, domain.ErrShowNotFound
	}

	entry := s.entry(key)
	if !force && Classify(entry, time.Now(), s.opts.MinTTL) == FreshnessFresh {
		s.logger.Debug("cache fresh", "key", key, "episodes", len(entry.Episodes))
		return &Result{Episodes: entry.Episodes, FromCache: true}, nil
	}

	refreshCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.refresh(refreshCtx, show)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return s.staleFallback(key, res.Err)
		}
		out := res.Val.(*refreshOutcome)
		return &Result{Episodes: out.episodes, Changes: out.changes, Warn: out.warn}, nil
	case <-ctx.Done():
		return s.staleFallback(key, &feed.FetchError{Sentinel: feed.ErrCancelled, URL: show.FeedURL, Err: ctx.Err()})
	}
}

// refresh fetches the feed, reconciles it against the cached entry, and
// installs the result. Runs at most once per key at a time (singleflight).
func (s *Service) refresh(ctx context.Context, show domain.Show) (*refreshOutcome, error) {
	doc, err := s.source.FetchShow(ctx, show.FeedURL)
	if err != nil {
		return nil, err
	}
	next, dups := reconcile.Dedupe(doc.Episodes)
	if len(dups) > 0 {
		s.logger.Warn("duplicate episode ids in feed", "key", show.ID, "ids", dups)
	}

	// Pull any durable entry into the index before diffing against it
	s.entry(show.ID)

	s.mu.Lock()
	var old []domain.Episode
	prev := s.index[show.ID]
	if prev != nil {
		old = prev.Episodes
	}
	changes := reconcile.Diff(old, next)
	merged := reconcile.CarryOver(old, next)

	now := time.Now()
	if prev != nil && now.Before(prev.FetchedAt) {
		// Wall clock moved backwards; FetchedAt never does
		now = prev.FetchedAt
	}
	entry := &domain.CacheEntry{
		Key:        show.ID,
		Episodes:   merged,
		FetchedAt:  now,
		SourceHint: doc.Hint,
		State:      domain.StateFresh,
	}
	s.index[show.ID] = entry
	s.mu.Unlock()

	warn := s.persistEntry(entry)

	s.logger.Info("refreshed show", "key", show.ID, "episodes", len(merged),
		"added", len(changes.Added), "removed", len(changes.Removed), "updated", len(changes.Updated))
	return &refreshOutcome{episodes: merged, changes: &changes, warn: warn}, nil
}

// staleFallback serves the cached entry alongside the refresh error, or
// just the error when nothing is cached. A failed refresh never evicts.
func (s *Service) staleFallback(key string, refreshErr error) (*Result, error) {
	s.mu.Lock()
	entry := s.index[key]
	var episodes []domain.Episode
	if entry != nil {
		entry.State = domain.StateStale
		episodes = entry.Episodes
	}
	s.mu.Unlock()

	if entry == nil {
		return nil, refreshErr
	}
	s.logger.Warn("refresh failed, serving cached episodes", "key", key, "error", refreshErr)
	return &Result{Episodes: episodes, FromCache: true, Stale: true}, refreshErr
}

// entry returns the cached entry for key, loading it from the durable
// store on first access. Returns nil when nothing is cached.
func (s *Service) entry(key string) *domain.CacheEntry {
	s.mu.RLock()
	e := s.index[key]
	s.mu.RUnlock()
	if e != nil {
		return e
	}

	data, ok := s.store.GetEntry(key)
	if !ok {
		return nil
	}
	loaded, err := decodeEntry(data)
	if err != nil {
		s.logger.Warn("ignoring undecodable cache entry", "key", key, "error", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.index[key]; cur != nil {
		return cur
	}
	s.index[key] = loaded
	return loaded
}

// persistEntry writes entry to the durable store. Failures are reported,
// not fatal: the in-memory index stays authoritative.
func (s *Service) persistEntry(entry *domain.CacheEntry) error {
	data, err := encodeEntry(entry)
	if err == nil {
		err = s.store.SaveEntry(entry.Key, data)
	}
	if err != nil {
		s.logger.Error("failed to persist cache entry", "key", entry.Key, "error", err)
		return fmt.Errorf("cache entry for %s not persisted: %w", entry.Key, err)
	}
	return nil
}

// Subscribe fetches feedURL once and registers the show with its initial
// episode list. Subscribing to an already-registered feed returns the
// existing show without a fetch.
func (s *Service) Subscribe(ctx context.Context, feedURL string) (*domain.Show, error) {
	key := domain.ShowKey(feedURL)

	s.mu.RLock()
	existing, ok := s.shows[key]
	s.mu.RUnlock()
	if ok {
		s.logger.Debug("already subscribed", "key", key, "url", feedURL)
		return &existing, nil
	}

	doc, err := s.source.FetchShow(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	episodes, dups := reconcile.Dedupe(doc.Episodes)
	if len(dups) > 0 {
		s.logger.Warn("duplicate episode ids in feed", "key", key, "ids", dups)
	}

	title := doc.Title
	if title == "" {
		title = feedURL
	}
	show := domain.Show{
		ID:          key,
		Title:       title,
		FeedURL:     feedURL,
		Author:      doc.Author,
		Description: doc.Description,
		ImageURL:    doc.ImageURL,
		AddedAt:     time.Now().Unix(),
	}
	entry := &domain.CacheEntry{
		Key:        key,
		Episodes:   episodes,
		FetchedAt:  time.Now(),
		SourceHint: doc.Hint,
		State:      domain.StateFresh,
	}

	s.mu.Lock()
	if cur, ok := s.shows[key]; ok {
		// Lost a subscribe race for the same feed
		s.mu.Unlock()
		return &cur, nil
	}
	s.shows[key] = show
	s.index[key] = entry
	shows := s.showsLocked()
	s.mu.Unlock()

	if err := s.store.SaveShows(shows); err != nil {
		s.logger.Error("failed to save subscriptions", "error", err)
	}
	s.persistEntry(entry)

	s.logger.Info("subscribed", "key", key, "title", show.Title, "episodes", len(episodes))
	return &show, nil
}

// Unsubscribe removes the show and evicts its cached episodes.
func (s *Service) Unsubscribe(key string) error {
	s.mu.Lock()
	if _, ok := s.shows[key]; !ok {
		s.mu.Unlock()
		return domain.ErrShowNotFound
	}
	delete(s.shows, key)
	delete(s.index, key)
	shows := s.showsLocked()
	s.mu.Unlock()

	if err := s.store.SaveShows(shows); err != nil {
		s.logger.Error("failed to save subscriptions", "error", err)
	}
	if err := s.store.DeleteEntry(key); err != nil {
		s.logger.Error("failed to delete cache entry", "key", key, "error", err)
	}
	s.logger.Info("unsubscribed", "key", key)
	return nil
}

// Shows lists subscriptions sorted by title.
func (s *Service) Shows() []domain.Show {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.showsLocked()
}

// showsLocked builds the sorted subscription list. Callers hold s.mu.
func (s *Service) showsLocked() []domain.Show {
	out := make([]domain.Show, 0, len(s.shows))
	for _, show := range s.shows {
		out = append(out, show)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Show returns a subscription by key.
func (s *Service) Show(key string) (domain.Show, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	show, ok := s.shows[key]
	return show, ok
}

// CachedEpisodes returns episodes only if already cached. Never touches
// the network.
func (s *Service) CachedEpisodes(key string) ([]domain.Episode, bool) {
	entry := s.entry(key)
	if entry == nil {
		return nil, false
	}
	return entry.Episodes, true
}

// MarkPlayed sets an episode's played flag. Marking played also rewinds
// the saved position.
func (s *Service) MarkPlayed(key, episodeID string, played bool) error {
	return s.updateEpisode(key, episodeID, func(e *domain.Episode) {
		e.Played = played
		if played {
			e.Position = 0
		}
	})
}

// SavePosition records playback progress for an episode.
func (s *Service) SavePosition(key, episodeID string, pos time.Duration) error {
	if pos < 0 {
		pos = 0
	}
	return s.updateEpisode(key, episodeID, func(e *domain.Episode) {
		e.Position = pos
	})
}

// updateEpisode applies a local-state mutation to one cached episode and
// persists the entry best-effort.
func (s *Service) updateEpisode(key, episodeID string, apply func(*domain.Episode)) error {
	if s.entry(key) == nil {
		return domain.ErrNotCached
	}

	s.mu.Lock()
	entry := s.index[key]
	if entry == nil {
		s.mu.Unlock()
		return domain.ErrNotCached
	}
	idx := -1
	for i := range entry.Episodes {
		if entry.Episodes[i].ID == episodeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return domain.ErrEpisodeNotFound
	}

	// Published episode slices are immutable; replace the entry instead
	episodes := make([]domain.Episode, len(entry.Episodes))
	copy(episodes, entry.Episodes)
	apply(&episodes[idx])
	updated := &domain.CacheEntry{
		Key:        entry.Key,
		Episodes:   episodes,
		FetchedAt:  entry.FetchedAt,
		SourceHint: entry.SourceHint,
		State:      entry.State,
	}
	s.index[key] = updated
	s.mu.Unlock()

	s.persistEntry(updated)
	return nil
}

// Invalidate drops the cached entry for key. Idempotent; the subscription
// itself stays.
func (s *Service) Invalidate(key string) {
	s.mu.Lock()
	delete(s.index, key)
	s.mu.Unlock()

	if err := s.store.DeleteEntry(key); err != nil {
		s.logger.Error("failed to delete cache entry", "key", key, "error", err)
	}
	s.logger.Info("invalidated cache", "key", key)
}

// InvalidateAll drops every cached entry. Subscriptions stay.
func (s *Service) InvalidateAll() {
	s.mu.Lock()
	s.index = make(map[string]*domain.CacheEntry)
	s.mu.Unlock()

	if err := s.store.ClearEntries(); err != nil {
		s.logger.Error("failed to clear cache entries", "error", err)
	}
	s.logger.Info("invalidated all cache")
}

// Stats summarizes the in-memory index.
type Stats struct {
	TotalKeys  int
	FreshCount int
	StaleCount int
}

// Stats reports on entries currently in the index. Entries still sitting
// unloaded in the durable store are not counted; call Preload first for a
// full picture.
func (s *Service) Stats() Stats {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	for _, entry := range s.index {
		st.TotalKeys++
		switch Classify(entry, now, s.opts.MinTTL) {
		case FreshnessFresh:
			st.FreshCount++
		case FreshnessStale:
			st.StaleCount++
		}
	}
	return st
}

// Preload pulls every subscribed show's durable entry into the index.
// Purely local, no network.
func (s *Service) Preload() {
	for _, show := range s.Shows() {
		s.entry(show.ID)
	}
}

// RefreshOutcome reports one show's result from a batch refresh.
type RefreshOutcome struct {
	Key   string
	Title string
	Count int
	Err   error
}

// RefreshAll force-refreshes every subscription with bounded parallelism.
// Outcomes line up with Shows() order.
func (s *Service) RefreshAll(ctx context.Context) []RefreshOutcome {
	shows := s.Shows()
	outcomes := make([]RefreshOutcome, len(shows))

	g := new(errgroup.Group)
	g.SetLimit(clampParallel(s.opts.MaxParallel))
	for i, show := range shows {
		g.Go(func() error {
			res, err := s.Episodes(ctx, show.ID, true)
			out := RefreshOutcome{Key: show.ID, Title: show.Title, Err: err}
			if res != nil {
				out.Count = len(res.Episodes)
			}
			outcomes[i] = out
			return nil
		})
	}
	// Failures land in outcomes, never in the group error
	g.Wait()
	return outcomes
}

func clampParallel(n int) int {
	if n <= 0 {
		return defaultMaxParallel
	}
	if n > maxParallelCap {
		return maxParallelCap
	}
	return n
}
