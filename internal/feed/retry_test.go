package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeSleep records requested backoff delays without actually waiting.
type fakeSleep struct {
	delays []time.Duration
}

func (f *fakeSleep) sleep(_ context.Context, d time.Duration) error {
	f.delays = append(f.delays, d)
	return nil
}

func newTestRetrier(policy RetryPolicy) (*Retrier, *fakeSleep) {
	fs := &fakeSleep{}
	r := NewRetrier(NewClient(testLogger), policy, testLogger)
	r.sleep = fs.sleep
	return r, fs
}

func singleProfile(timeout time.Duration) []Profile {
	return []Profile{{Name: "default", Timeout: timeout}}
}

func TestRetrier_Fetch_RecoversAfterTransientFailures(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("<rss/>"))
	}))
	defer ts.Close()

	policy := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		Multiplier:  2,
		Profiles:    singleProfile(5 * time.Second),
	}
	r, fs := newTestRetrier(policy)

	resp, err := r.Fetch(context.Background(), ts.URL)
	require.NoError(t, err)

	assert.Equal(t, []byte("<rss/>"), resp.Body)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, fs.delays)
}

func TestRetrier_Fetch_TimeoutsThenSuccess(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			// Stall until the client gives up on this attempt
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			return
		}
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	policy := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		Multiplier:  2,
		Profiles:    singleProfile(50 * time.Millisecond),
	}
	r, fs := newTestRetrier(policy)

	resp, err := r.Fetch(context.Background(), ts.URL)
	require.NoError(t, err)

	assert.Equal(t, []byte("ok"), resp.Body)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, fs.delays)
}

func TestRetrier_Fetch_TerminalStatusStopsImmediately(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer ts.Close()

	policy := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		Multiplier:  2,
		Profiles: []Profile{
			{Name: "default", Timeout: 5 * time.Second},
			{Name: "no-cache", Timeout: 5 * time.Second, NoCache: true},
		},
	}
	r, fs := newTestRetrier(policy)

	_, err := r.Fetch(context.Background(), ts.URL)
	require.Error(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, fs.delays)
	assert.ErrorIs(t, err, ErrBadStatus)
	assert.NotErrorIs(t, err, ErrExhausted)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusForbidden, fe.Status)
}

func TestRetrier_Fetch_AttemptCounterResetsPerProfile(t *testing.T) {
	var mu sync.Mutex
	var cacheHeaders []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		cacheHeaders = append(cacheHeaders, r.Header.Get("Cache-Control"))
		mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	policy := RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   5 * time.Millisecond,
		Multiplier:  3,
		Profiles: []Profile{
			{Name: "default", Timeout: 5 * time.Second},
			{Name: "no-cache", Timeout: 5 * time.Second, NoCache: true},
		},
	}
	r, fs := newTestRetrier(policy)

	_, err := r.Fetch(context.Background(), ts.URL)
	require.Error(t, err)

	// Two attempts per profile, and the backoff restarts at the base
	// delay when the ladder escalates. No sleep between profiles.
	assert.Equal(t, []string{"", "", "no-cache", "no-cache"}, cacheHeaders)
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 5 * time.Millisecond}, fs.delays)

	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, ErrBadStatus)
	assert.ErrorContains(t, err, "after 4 attempts")

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusServiceUnavailable, fe.Status)
}

func TestRetrier_Fetch_CancelDuringBackoff(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	policy := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Second,
		Multiplier:  2,
		Profiles:    singleProfile(5 * time.Second),
	}
	// Real sleep here: cancellation has to interrupt the backoff wait.
	r := NewRetrier(NewClient(testLogger), policy, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Fetch(ctx, ts.URL)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, int32(1), calls.Load())
	assert.Less(t, elapsed, 5*time.Second)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, p.backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.backoff(3))

	flat := RetryPolicy{BaseDelay: time.Second, Multiplier: 1}
	assert.Equal(t, time.Second, flat.backoff(1))
	assert.Equal(t, time.Second, flat.backoff(4))
}

func TestRetryPolicy_Normalized(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 0, Multiplier: 0.5}.normalized()
	assert.Equal(t, 1, p.MaxAttempts)
	assert.Equal(t, float64(1), p.Multiplier)
	assert.Len(t, p.Profiles, 3)
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.BaseDelay)
	assert.Equal(t, float64(2), p.Multiplier)
	assert.Len(t, p.Profiles, 3)
}
