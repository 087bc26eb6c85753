package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorMessagesCarryClass(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"store", Store("query", errors.New("disk full")), "vector store"},
		{"provider", Provider(ReasonRateLimit, 429, "slow down", nil), "model provider"},
		{"config", Configuration("api key missing"), "configuration error"},
		{"document", Document(ReasonCorrupt, "bad pdf", nil), "document error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(tt.err.Error(), tt.want) {
				t.Errorf("%q does not contain %q", tt.err.Error(), tt.want)
			}
		})
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("error processing chat request: %w", Store("query", errors.New("boom")))
	if KindOf(err) != KindStore {
		t.Errorf("KindOf = %q, want store", KindOf(err))
	}
	if !IsKind(err, KindStore) {
		t.Error("IsKind should see wrapped store error")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("plain errors have no kind")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		reason string
		want   bool
	}{
		{ReasonAuth, false},
		{ReasonBadRequest, false},
		{ReasonRateLimit, true},
		{ReasonTimeout, true},
		{ReasonUnavailable, true},
	}
	for _, tt := range tests {
		if got := IsRetryable(Provider(tt.reason, 0, "x", nil)); got != tt.want {
			t.Errorf("IsRetryable(%s) = %v, want %v", tt.reason, got, tt.want)
		}
	}
	if IsRetryable(Store("upsert", errors.New("x"))) {
		t.Error("store errors are not retryable at the provider layer")
	}
}
