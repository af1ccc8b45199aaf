package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// RetryPolicy bounds how hard the retrier works before giving up.
// MaxAttempts applies per profile; the attempt counter resets when the
// ladder moves to the next profile.
type RetryPolicy struct {
	MaxAttempts int           // Attempts per profile, minimum 1
	BaseDelay   time.Duration // Delay before the second attempt
	Multiplier  float64       // Backoff growth factor, minimum 1
	Profiles    []Profile     // Escalation ladder, tried in order
}

// DefaultPolicy returns the retry policy used when nothing is configured.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
		Profiles:    DefaultProfiles(0),
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if len(p.Profiles) == 0 {
		p.Profiles = DefaultProfiles(0)
	}
	return p
}

// backoff returns the delay that follows the given 1-based attempt.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
}

// Retrier wraps a Client with bounded retries, exponential backoff, and
// escalating fallback profiles.
type Retrier struct {
	client *Client
	policy RetryPolicy
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewRetrier creates a retrier around client governed by policy.
func NewRetrier(client *Client, policy RetryPolicy, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		client: client,
		policy: policy.normalized(),
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Fetch runs the profile ladder against url until an attempt succeeds, a
// terminal error occurs, or every attempt on every profile has failed.
// Moving from one profile to the next happens without a backoff delay.
func (r *Retrier) Fetch(ctx context.Context, url string) (*Response, error) {
	var lastErr error
	for pi, profile := range r.policy.Profiles {
		for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
			resp, err := r.client.Fetch(ctx, url, profile)
			if err == nil {
				if pi > 0 || attempt > 1 {
					r.logger.Info("fetch recovered", "url", url, "profile", profile.Name, "attempt", attempt)
				}
				return resp, nil
			}
			lastErr = err

			if !Retryable(err) {
				r.logger.Debug("terminal fetch error", "url", url, "profile", profile.Name, "error", err)
				return nil, err
			}
			r.logger.Debug("fetch attempt failed", "url", url, "profile", profile.Name, "attempt", attempt, "error", err)

			if attempt < r.policy.MaxAttempts {
				if err := r.sleep(ctx, r.policy.backoff(attempt)); err != nil {
					return nil, &FetchError{Sentinel: ErrCancelled, URL: url, Profile: profile.Name, Err: err}
				}
			}
		}
	}

	total := r.policy.MaxAttempts * len(r.policy.Profiles)
	return nil, fmt.Errorf("%w after %d attempts across %d profiles: %w", ErrExhausted, total, len(r.policy.Profiles), lastErr)
}

// sleepCtx waits for d unless ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
