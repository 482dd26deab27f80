package gwerror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{New(KindInvalidRequest, "bad"), http.StatusBadRequest},
		{New(KindUnauthorized, "no key"), http.StatusUnauthorized},
		{RateLimited(5), http.StatusTooManyRequests},
		{Upstream(502, "boom"), http.StatusBadGateway},
		{Upstream(429, "slow down"), 429},
		{New(Kind("unknown-kind"), "?"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := tc.err.Status(); got != tc.want {
			t.Errorf("Kind=%s: Status()=%d, want %d", tc.err.Kind, got, tc.want)
		}
	}
}

func TestUpstreamPreservesRawStatus(t *testing.T) {
	err := Upstream(403, `{"error":"forbidden"}`)
	if err.UpstreamStatus != 403 || err.UpstreamBody != `{"error":"forbidden"}` {
		t.Fatalf("unexpected upstream fields: %+v", err)
	}
	if err.Status() != 403 {
		t.Fatalf("expected status to mirror the raw upstream status, got %d", err.Status())
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Wrap(KindUpstreamInterrupted, "stream broke", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to see through Unwrap")
	}
	if err.Error() == "" || err.Unwrap() != cause {
		t.Fatalf("unexpected error text or unwrap target: %+v", err)
	}
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", New(KindToolArgsParseError, "bad json"))
	ge, ok := As(wrapped)
	if !ok {
		t.Fatal("expected As to find the wrapped *Error")
	}
	if ge.Kind != KindToolArgsParseError {
		t.Fatalf("unexpected kind: %s", ge.Kind)
	}

	if _, ok := As(errors.New("plain")); ok {
		t.Fatal("expected As to fail for a non-taxonomy error")
	}
}
