package feed

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Fetch_Success(t *testing.T) {
	var gotUA, gotAccept string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("ETag", `"v42"`)
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		w.Write([]byte("<rss/>"))
	}))
	defer ts.Close()

	c := NewClient(nil)
	resp, err := c.Fetch(context.Background(), ts.URL, Profile{Name: "default", Timeout: 5 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, []byte("<rss/>"), resp.Body)
	assert.Equal(t, `"v42"`, resp.ETag)
	assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", resp.LastModified)
	assert.Equal(t, `"v42"`, resp.Hint())
	assert.Equal(t, "podkeep/1.0", gotUA)
	assert.Contains(t, gotAccept, "application/rss+xml")
}

func TestClient_Fetch_NoCacheProfile(t *testing.T) {
	var gotCacheControl, gotPragma string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCacheControl = r.Header.Get("Cache-Control")
		gotPragma = r.Header.Get("Pragma")
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	c := NewClient(nil)
	_, err := c.Fetch(context.Background(), ts.URL, Profile{Name: "no-cache", Timeout: 5 * time.Second, NoCache: true})
	require.NoError(t, err)

	assert.Equal(t, "no-cache", gotCacheControl)
	assert.Equal(t, "no-cache", gotPragma)
}

func TestClient_Fetch_ExtraHeaders(t *testing.T) {
	var gotToken string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Auth-Token")
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	c := NewClient(nil)
	profile := Profile{Name: "default", Timeout: 5 * time.Second, Headers: map[string]string{"X-Auth-Token": "secret"}}
	_, err := c.Fetch(context.Background(), ts.URL, profile)
	require.NoError(t, err)

	assert.Equal(t, "secret", gotToken)
}

func TestClient_Fetch_BadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	c := NewClient(nil)
	_, err := c.Fetch(context.Background(), ts.URL, Profile{Name: "default", Timeout: 5 * time.Second})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrBadStatus)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.Status)
	assert.Equal(t, ts.URL, fe.URL)
	assert.Equal(t, "default", fe.Profile)
}

func TestClient_Fetch_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer ts.Close()

	c := NewClient(nil)
	_, err := c.Fetch(context.Background(), ts.URL, Profile{Name: "default", Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClient_Fetch_ConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	c := NewClient(nil)
	_, err := c.Fetch(context.Background(), url, Profile{Name: "default", Timeout: 5 * time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestClient_Fetch_Cancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	c := NewClient(nil)
	_, err := c.Fetch(ctx, ts.URL, Profile{Name: "default", Timeout: 5 * time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestClient_Classify(t *testing.T) {
	c := NewClient(nil)

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "cancelled", err: context.Canceled, want: ErrCancelled},
		{name: "deadline", err: context.DeadlineExceeded, want: ErrTimeout},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "nope.invalid"}, want: ErrDNS},
		{name: "refused", err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}, want: ErrConnection},
		{name: "eof", err: io.EOF, want: ErrConnection},
		{name: "other", err: errors.New("boom"), want: ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := c.classify("https://example.com/feed.xml", "default", tt.err)
			assert.ErrorIs(t, fe, tt.want)
		})
	}
}

func TestDefaultProfiles(t *testing.T) {
	profiles := DefaultProfiles(10 * time.Second)
	require.Len(t, profiles, 3)

	assert.Equal(t, "default", profiles[0].Name)
	assert.Equal(t, 10*time.Second, profiles[0].Timeout)
	assert.False(t, profiles[0].NoCache)

	assert.Equal(t, "no-cache", profiles[1].Name)
	assert.Equal(t, 15*time.Second, profiles[1].Timeout)
	assert.True(t, profiles[1].NoCache)

	assert.Equal(t, "direct", profiles[2].Name)
	assert.Equal(t, 20*time.Second, profiles[2].Timeout)
	assert.True(t, profiles[2].NoCache)
	assert.True(t, profiles[2].FreshConn)
}

func TestResponse_Hint(t *testing.T) {
	assert.Equal(t, `"v1"`, (&Response{ETag: `"v1"`, LastModified: "x"}).Hint())
	assert.Equal(t, "x", (&Response{LastModified: "x"}).Hint())
	assert.Empty(t, (&Response{}).Hint())
}
