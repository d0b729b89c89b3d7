package apperr

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"
)

func TestCodeIsRetryable(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{FetchTimeout, true},
		{Fetch5xx, true},
		{FetchRateLimited, true},
		{FetchConnection, true},
		{Fetch4xx, false},
		{PhaseTimeout, false},
		{PhaseError, false},
		{SeedInsufficient, false},
	}
	for _, tt := range tests {
		if got := tt.code.IsRetryable(); got != tt.want {
			t.Errorf("%s.IsRetryable() = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Code
	}{
		{429, FetchRateLimited},
		{500, Fetch5xx},
		{503, Fetch5xx},
		{404, Fetch4xx},
		{403, Fetch4xx},
	}
	for _, tt := range tests {
		err := FromStatus(tt.status, "https://example.com")
		if err == nil {
			t.Fatalf("FromStatus(%d) = nil", tt.status)
		}
		if err.Code != tt.want {
			t.Errorf("FromStatus(%d).Code = %s, want %s", tt.status, err.Code, tt.want)
		}
		if err.StatusCode != tt.status {
			t.Errorf("FromStatus(%d).StatusCode = %d", tt.status, err.StatusCode)
		}
	}

	for _, ok := range []int{200, 204, 301, 304} {
		if err := FromStatus(ok, "https://example.com"); err != nil {
			t.Errorf("FromStatus(%d) = %v, want nil", ok, err)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"deadline", context.DeadlineExceeded, FetchTimeout},
		{"refused", syscall.ECONNREFUSED, FetchConnection},
		{"reset", fmt.Errorf("read: connection reset by peer"), FetchConnection},
		{"dns", fmt.Errorf("dial: no such host"), FetchConnection},
		{"other", errors.New("something odd"), PhaseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, "https://example.com", "fetch")
			if got.Code != tt.want {
				t.Errorf("Classify() code = %s, want %s", got.Code, tt.want)
			}
		})
	}

	// Already-classified errors pass through unchanged.
	orig := New(Fetch4xx, "u", "fetch", "nope", nil)
	wrapped := fmt.Errorf("outer: %w", orig)
	if got := Classify(wrapped, "u", "fetch"); got != orig {
		t.Error("Classify should unwrap an existing AuditError")
	}
}

func TestErrorsIsMatchesOnCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", New(FetchTimeout, "u", "fetch", "slow", nil))
	if !errors.Is(err, &AuditError{Code: FetchTimeout}) {
		t.Error("errors.Is should match on code")
	}
	if errors.Is(err, &AuditError{Code: Fetch4xx}) {
		t.Error("errors.Is should not match a different code")
	}
}

func TestRetrierStopsOnNonRetryable(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1})
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return New(Fetch4xx, "u", "fetch", "gone", nil)
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1 for non-retryable error", calls)
	}
	if CodeOf(err) != Fetch4xx {
		t.Errorf("CodeOf = %s", CodeOf(err))
	}
}

func TestRetrierRetriesThenSucceeds(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1})
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return New(Fetch5xx, "u", "fetch", "boom", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetrierExhausts(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1})
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return New(FetchTimeout, "u", "fetch", "slow", nil)
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (1 attempt + 2 retries)", calls)
	}
	if CodeOf(err) != FetchTimeout {
		t.Errorf("CodeOf = %s, want FETCH_TIMEOUT", CodeOf(err))
	}
}

func TestRetrierHonorsContext(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	calls := 0
	start := time.Now()
	r.Do(ctx, func(ctx context.Context) error {
		calls++
		return New(Fetch5xx, "u", "fetch", "boom", nil)
	})
	if time.Since(start) > time.Second {
		t.Error("retrier did not stop promptly on context cancellation")
	}
	if calls > 2 {
		t.Errorf("calls = %d, want at most 2 before context expiry", calls)
	}
}

func TestDoWithResult(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1})
	calls := 0
	got, err := DoWithResult(context.Background(), r, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, New(Fetch5xx, "u", "fetch", "boom", nil)
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Errorf("DoWithResult = (%d, %v), want (42, nil)", got, err)
	}
}
