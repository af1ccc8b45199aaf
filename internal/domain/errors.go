package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrShowNotFound indicates the requested show is not subscribed
	ErrShowNotFound = errors.New("show not found")

	// ErrEpisodeNotFound indicates the requested episode does not exist
	ErrEpisodeNotFound = errors.New("episode not found")

	// ErrNotCached indicates no cached episodes exist for the show yet
	ErrNotCached = errors.New("no cached episodes for show")
)
