package httpx

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"
)

type statusErr int

func (s statusErr) Error() string       { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) HTTPStatusCode() int { return int(s) }

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", statusErr(429), true},
		{"503", statusErr(503), true},
		{"400", statusErr(400), false},
		{"wrapped 429", fmt.Errorf("call: %w", statusErr(429)), true},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
	}
	for _, tc := range cases {
		if got := IsRetryableError(tc.err); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestRetryAfterDurationCapsHeader(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"30"}}}
	if got := RetryAfterDuration(resp, time.Second, 10*time.Second); got != 10*time.Second {
		t.Fatalf("got %v", got)
	}
	if got := RetryAfterDuration(nil, 2*time.Second, 0); got != 2*time.Second {
		t.Fatalf("got %v", got)
	}
}

func TestSleepHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); err == nil {
		t.Fatal("expected cancellation error")
	}
}
