package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Show represents a subscribed podcast feed.
type Show struct {
	ID          string // Stable key derived from the feed URL
	Title       string // Display title from the feed channel
	FeedURL     string // Canonical feed URL used for refreshes
	Author      string // Channel author or owner
	Description string // Channel summary
	ImageURL    string // Channel artwork URL
	AddedAt     int64  // Unix timestamp when subscribed
}

// ShowKey derives the stable cache key for a feed URL. Trailing slashes
// and surrounding whitespace do not change the key.
func ShowKey(feedURL string) string {
	normalized := strings.TrimRight(strings.TrimSpace(feedURL), "/")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:6])
}

// Episode represents a single entry in a show's feed.
type Episode struct {
	ID          string        // GUID from the feed, falling back to enclosure URL or link
	Title       string        // Display title
	Description string        // Show notes / summary
	AudioURL    string        // Enclosure URL
	ImageURL    string        // Episode artwork URL (may be empty)
	Duration    time.Duration // Total runtime as declared by the feed
	PublishedAt time.Time     // Publication date from the feed

	// Local listening state. Never sourced from the feed; survives refreshes.
	Position  time.Duration // Playback progress
	Played    bool          // Whether the episode is marked as played
	LocalFile string        // Path of a downloaded copy, empty if none
}

// ContentEquals reports whether two episodes carry the same feed content.
// Local listening state is ignored.
func (e Episode) ContentEquals(other Episode) bool {
	return e.Title == other.Title &&
		e.Description == other.Description &&
		e.AudioURL == other.AudioURL &&
		e.ImageURL == other.ImageURL &&
		e.Duration == other.Duration &&
		e.PublishedAt.Equal(other.PublishedAt)
}

// PlayStatus returns the listening state of the episode.
func (e Episode) PlayStatus() PlayStatus {
	if e.Played {
		return PlayStatusPlayed
	}
	if e.Position > 0 {
		return PlayStatusInProgress
	}
	return PlayStatusUnplayed
}

// ShouldResume returns true if playback should resume from the saved position.
func (e Episode) ShouldResume() bool {
	return e.Position > 0 && !e.Played
}

// Downloaded returns true if a local copy of the audio exists.
func (e Episode) Downloaded() bool {
	return e.LocalFile != ""
}

// FormattedDuration returns the duration in a human-readable format.
func (e Episode) FormattedDuration() string {
	h := int(e.Duration.Hours())
	mins := int(e.Duration.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

// PlayStatus represents the listening state of an episode.
type PlayStatus int

const (
	PlayStatusUnplayed PlayStatus = iota
	PlayStatusInProgress
	PlayStatusPlayed
)

// String returns a human-readable representation of the play status.
func (p PlayStatus) String() string {
	switch p {
	case PlayStatusUnplayed:
		return "Unplayed"
	case PlayStatusInProgress:
		return "In Progress"
	case PlayStatusPlayed:
		return "Played"
	default:
		return "Unknown"
	}
}
