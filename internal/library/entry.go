package library

import (
	"encoding/json"

	"github.com/podkeep/podkeep/internal/domain"
)

// encodeEntry serializes a cache entry for the store. Timestamps keep
// their sub-second precision so FetchedAt round-trips exactly.
func encodeEntry(entry *domain.CacheEntry) ([]byte, error) {
	return json.Marshal(entry)
}

// decodeEntry restores a cache entry written by encodeEntry.
func decodeEntry(data []byte) (*domain.CacheEntry, error) {
	var entry domain.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
