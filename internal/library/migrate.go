package library

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/podkeep/podkeep/internal/domain"
)

// legacyEntry is one show's record in the pre-BoltDB cache file: a keyed
// map of these, with the episode list base64-wrapped inside.
type legacyEntry struct {
	Items     string  `json:"items"`              // base64 of a JSON episode array
	FetchedAt float64 `json:"fetchedAt"`          // unix seconds with fraction
	Modified  string  `json:"modified,omitempty"` // free-form server hint
}

// legacyEpisode matches the old cache's episode field names.
type legacyEpisode struct {
	GUID        string  `json:"guid"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Audio       string  `json:"audio"`
	Image       string  `json:"image,omitempty"`
	DurationSec int     `json:"duration_sec,omitempty"`
	Published   int64   `json:"published,omitempty"` // unix seconds
	PositionSec float64 `json:"position_sec,omitempty"`
	IsPlayed    bool    `json:"is_played,omitempty"`
	File        string  `json:"file,omitempty"`
}

// MigrationReport summarizes a legacy cache migration.
type MigrationReport struct {
	Migrated int
	Skipped  int
}

// MigrateIfNeeded rewrites the single-file legacy cache into the current
// store representation and removes the legacy file afterwards. Unreadable
// entries are skipped individually; only a legacy file that cannot be
// enumerated at all fails the migration, and then the file is kept.
// Safe to call on every start: once the file is gone this is a no-op.
func (s *Service) MigrateIfNeeded() (MigrationReport, error) {
	var report MigrationReport
	path := s.opts.LegacyPath
	if path == "" {
		return report, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return report, nil
		}
		return report, fmt.Errorf("reading legacy cache: %w", err)
	}

	var legacy map[string]legacyEntry
	if err := json.Unmarshal(data, &legacy); err != nil {
		return report, fmt.Errorf("parsing legacy cache: %w", err)
	}

	for key, le := range legacy {
		if s.store.HasEntry(key) {
			// Current-format data wins over the legacy copy
			s.logger.Debug("legacy entry superseded by current cache", "key", key)
			report.Skipped++
			continue
		}
		entry, err := convertLegacyEntry(key, le)
		if err != nil {
			s.logger.Warn("skipping unreadable legacy entry", "key", key, "error", err)
			report.Skipped++
			continue
		}
		blob, err := encodeEntry(entry)
		if err == nil {
			err = s.store.SaveEntry(key, blob)
		}
		if err != nil {
			s.logger.Warn("skipping legacy entry, save failed", "key", key, "error", err)
			report.Skipped++
			continue
		}
		s.mu.Lock()
		s.index[key] = entry
		s.mu.Unlock()
		report.Migrated++
	}

	// Every entry has been attempted; the file is no longer the source of truth
	if err := os.Remove(path); err != nil {
		s.logger.Error("failed to remove legacy cache file", "path", path, "error", err)
	}
	s.logger.Info("migrated legacy cache", "migrated", report.Migrated, "skipped", report.Skipped)
	return report, nil
}

// convertLegacyEntry decodes one legacy record into a cache entry.
func convertLegacyEntry(key string, le legacyEntry) (*domain.CacheEntry, error) {
	raw, err := base64.StdEncoding.DecodeString(le.Items)
	if err != nil {
		return nil, fmt.Errorf("decoding items: %w", err)
	}
	var old []legacyEpisode
	if err := json.Unmarshal(raw, &old); err != nil {
		return nil, fmt.Errorf("parsing items: %w", err)
	}

	episodes := make([]domain.Episode, 0, len(old))
	for _, lep := range old {
		id := lep.GUID
		if id == "" {
			id = lep.Audio
		}
		if id == "" {
			continue
		}
		ep := domain.Episode{
			ID:          id,
			Title:       lep.Title,
			Description: lep.Description,
			AudioURL:    lep.Audio,
			ImageURL:    lep.Image,
			Duration:    time.Duration(lep.DurationSec) * time.Second,
			Position:    time.Duration(lep.PositionSec * float64(time.Second)),
			Played:      lep.IsPlayed,
			LocalFile:   lep.File,
		}
		if lep.Published > 0 {
			ep.PublishedAt = time.Unix(lep.Published, 0)
		}
		episodes = append(episodes, ep)
	}

	sec, frac := math.Modf(le.FetchedAt)
	return &domain.CacheEntry{
		Key:        key,
		Episodes:   episodes,
		FetchedAt:  time.Unix(int64(sec), int64(frac*float64(time.Second))),
		SourceHint: le.Modified,
		State:      domain.StateMigrating,
	}, nil
}
