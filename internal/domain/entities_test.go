package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowKey_Normalization(t *testing.T) {
	base := ShowKey("https://example.com/feed.xml")
	require.NotEmpty(t, base)
	assert.Len(t, base, 12)

	// Trailing slashes and padding don't produce a different key
	assert.Equal(t, base, ShowKey("https://example.com/feed.xml/"))
	assert.Equal(t, base, ShowKey("  https://example.com/feed.xml  "))

	assert.NotEqual(t, base, ShowKey("https://example.com/other.xml"))
}

func TestEpisode_ContentEquals(t *testing.T) {
	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ep := Episode{
		ID:          "ep-1",
		Title:       "Pilot",
		Description: "The first one",
		AudioURL:    "https://example.com/1.mp3",
		Duration:    30 * time.Minute,
		PublishedAt: published,
	}

	// Local listening state never affects content comparison
	listened := ep
	listened.Position = 12 * time.Minute
	listened.Played = true
	listened.LocalFile = "/tmp/1.mp3"
	assert.True(t, ep.ContentEquals(listened))
	assert.True(t, listened.ContentEquals(ep))

	retitled := ep
	retitled.Title = "Pilot (remastered)"
	assert.False(t, ep.ContentEquals(retitled))

	moved := ep
	moved.AudioURL = "https://cdn.example.com/1.mp3"
	assert.False(t, ep.ContentEquals(moved))

	republished := ep
	republished.PublishedAt = published.Add(time.Hour)
	assert.False(t, ep.ContentEquals(republished))
}

func TestEpisode_PlayStatus(t *testing.T) {
	tests := []struct {
		name     string
		position time.Duration
		played   bool
		want     PlayStatus
	}{
		{"unplayed", 0, false, PlayStatusUnplayed},
		{"in progress", 5 * time.Minute, false, PlayStatusInProgress},
		{"played", 0, true, PlayStatusPlayed},
		{"played with leftover position", 5 * time.Minute, true, PlayStatusPlayed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := Episode{Position: tt.position, Played: tt.played}
			assert.Equal(t, tt.want, ep.PlayStatus())
		})
	}
}

func TestEpisode_ShouldResume(t *testing.T) {
	assert.False(t, Episode{}.ShouldResume())
	assert.True(t, Episode{Position: time.Minute}.ShouldResume())
	assert.False(t, Episode{Position: time.Minute, Played: true}.ShouldResume())
}
