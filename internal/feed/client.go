package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "podkeep/1.0"
	acceptHeader   = "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8"
)

// Profile is one client configuration used for a fetch attempt. Profiles
// form an escalation ladder: later ones trade speed for reachability.
type Profile struct {
	Name      string            // Label used in logs and errors
	Timeout   time.Duration     // Per-attempt deadline
	Headers   map[string]string // Extra request headers
	NoCache   bool              // Ask intermediaries not to serve cached copies
	FreshConn bool              // Bypass pooled connections
}

// DefaultProfiles returns the standard escalation ladder. A non-positive
// timeout selects the built-in default for the first rung.
func DefaultProfiles(timeout time.Duration) []Profile {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return []Profile{
		{Name: "default", Timeout: timeout},
		{Name: "no-cache", Timeout: timeout * 3 / 2, NoCache: true},
		{Name: "direct", Timeout: timeout * 2, NoCache: true, FreshConn: true},
	}
}

// Response is the raw result of a successful fetch attempt.
type Response struct {
	Body         []byte
	ETag         string
	LastModified string
}

// Hint returns the strongest modification marker the server provided.
func (r *Response) Hint() string {
	if r.ETag != "" {
		return r.ETag
	}
	return r.LastModified
}

// Client performs single HTTP fetch attempts against feed URLs.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a feed client. Per-attempt deadlines come from the
// profile, not the underlying http.Client.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Fetch performs exactly one GET of url under the given profile. Retry
// decisions belong to the caller.
func (c *Client) Fetch(ctx context.Context, url string, profile Profile) (*Response, error) {
	if profile.Timeout <= 0 {
		profile.Timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, profile.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Sentinel: ErrTransport, URL: url, Profile: profile.Name, Err: err}
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	if profile.NoCache {
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
	}
	for k, v := range profile.Headers {
		req.Header.Set(k, v)
	}
	if profile.FreshConn {
		req.Close = true
	}

	c.logger.Debug("feed request", "url", url, "profile", profile.Name)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classify(url, profile.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("feed request rejected", "url", url, "status", resp.StatusCode)
		return nil, &FetchError{Sentinel: ErrBadStatus, URL: url, Profile: profile.Name, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classify(url, profile.Name, err)
	}

	return &Response{
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

// classify maps a transport error onto the fetch error taxonomy.
func (c *Client) classify(url, profile string, err error) *FetchError {
	fe := &FetchError{URL: url, Profile: profile, Err: err}

	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		fe.Sentinel = ErrCancelled
	case errors.Is(err, context.DeadlineExceeded):
		fe.Sentinel = ErrTimeout
	case errors.As(err, &dnsErr):
		fe.Sentinel = ErrDNS
	case errors.As(err, &netErr) && netErr.Timeout():
		fe.Sentinel = ErrTimeout
	case isConnectionError(err):
		fe.Sentinel = ErrConnection
	default:
		fe.Sentinel = ErrTransport
	}
	return fe
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
