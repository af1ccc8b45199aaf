package feed

import (
	"context"
	"errors"
	"log/slog"
)

// Source fetches and decodes show feeds, handling retries and fallback
// profiles internally. It is the network boundary the cache layer talks to.
type Source struct {
	retrier *Retrier
	logger  *slog.Logger
}

// NewSource creates a feed source governed by policy.
func NewSource(policy RetryPolicy, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		retrier: NewRetrier(NewClient(logger), policy, logger),
		logger:  logger,
	}
}

// FetchShow retrieves url and returns the decoded feed. The document's Hint
// falls back to the transport validators when the feed itself carries no
// updated marker.
func (s *Source) FetchShow(ctx context.Context, url string) (*Document, error) {
	resp, err := s.retrier.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := Parse(resp.Body)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			fe.URL = url
		}
		s.logger.Warn("feed parse failed", "url", url, "error", err)
		return nil, err
	}

	if doc.Hint == "" {
		doc.Hint = resp.Hint()
	}
	return doc, nil
}
