package domain

// Store handles durable local persistence for subscriptions and cached
// episode lists. Entry payloads are opaque bytes; the cache service owns
// the encoding.
type Store interface {
	// === Subscriptions ===
	GetShows() ([]Show, bool)
	SaveShows(shows []Show) error

	// === Cache Entries ===
	GetEntry(key string) ([]byte, bool)
	SaveEntry(key string, data []byte) error
	DeleteEntry(key string) error
	HasEntry(key string) bool
	ClearEntries() error

	// === Lifecycle ===
	Close() error
}
