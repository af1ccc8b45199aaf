package feed

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/podkeep/podkeep/internal/domain"
)

// Document is a decoded show feed.
type Document struct {
	Title       string
	Description string
	Author      string
	ImageURL    string
	Hint        string // Feed-level updated marker, may be empty
	Episodes    []domain.Episode
}

// Parse decodes an RSS or Atom payload into a Document. Items without any
// usable identity are dropped.
func Parse(data []byte) (*Document, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &FetchError{Sentinel: ErrParse, Err: err}
	}

	doc := &Document{
		Title:       parsed.Title,
		Description: parsed.Description,
		Hint:        parsed.Updated,
	}
	if parsed.Image != nil {
		doc.ImageURL = parsed.Image.URL
	}
	if parsed.ITunesExt != nil {
		doc.Author = parsed.ITunesExt.Author
		if doc.ImageURL == "" {
			doc.ImageURL = parsed.ITunesExt.Image
		}
		if doc.Description == "" {
			doc.Description = parsed.ITunesExt.Summary
		}
	}
	if doc.Author == "" && len(parsed.Authors) > 0 && parsed.Authors[0] != nil {
		doc.Author = parsed.Authors[0].Name
	}

	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		ep := domain.Episode{
			ID:          episodeID(item),
			Title:       item.Title,
			Description: item.Description,
		}
		if ep.ID == "" {
			continue
		}
		if len(item.Enclosures) > 0 && item.Enclosures[0] != nil {
			ep.AudioURL = item.Enclosures[0].URL
		}
		if item.Image != nil {
			ep.ImageURL = item.Image.URL
		}
		if item.PublishedParsed != nil {
			ep.PublishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			ep.PublishedAt = *item.UpdatedParsed
		}
		if item.ITunesExt != nil {
			ep.Duration = parseITunesDuration(item.ITunesExt.Duration)
			if ep.ImageURL == "" {
				ep.ImageURL = item.ITunesExt.Image
			}
			if ep.Description == "" {
				ep.Description = item.ITunesExt.Summary
			}
		}
		doc.Episodes = append(doc.Episodes, ep)
	}

	return doc, nil
}

// episodeID returns the stable identity for a feed item: GUID, then
// enclosure URL, then link.
func episodeID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	if len(item.Enclosures) > 0 && item.Enclosures[0] != nil && item.Enclosures[0].URL != "" {
		return item.Enclosures[0].URL
	}
	return item.Link
}

// parseITunesDuration handles the duration forms feeds actually ship:
// "3723", "62:03", and "1:02:03". Anything else yields zero.
func parseITunesDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0
	}
	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}
