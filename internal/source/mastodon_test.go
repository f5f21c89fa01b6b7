package source

import (
	"errors"
	"fmt"
	"testing"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello world", "hello world"},
		{"paragraph", "<p>Airdrop is live</p>", "Airdrop is live"},
		{"line break", "first<br>second", "first\nsecond"},
		{"nested markup", `<p>Claim your <a href="https://x.test"><span>rewards</span></a> now</p>`, "Claim your rewards now"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHTML(tt.in); got != tt.want {
				t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestClassifyErr(t *testing.T) {
	transient := classifyErr(fmt.Errorf("fetching statuses: 429 Too Many Requests"))
	if IsFatal(transient) {
		t.Errorf("rate limit should be transient, got fatal: %v", transient)
	}

	fatal := classifyErr(fmt.Errorf("fetching statuses: 401 Unauthorized"))
	if !IsFatal(fatal) {
		t.Errorf("401 should be fatal: %v", fatal)
	}

	forbidden := classifyErr(fmt.Errorf("searching account: 403 Forbidden"))
	if !IsFatal(forbidden) {
		t.Errorf("403 should be fatal: %v", forbidden)
	}
}

func TestIsFatal(t *testing.T) {
	if IsFatal(errors.New("connection refused")) {
		t.Error("plain error should not be fatal")
	}
	if !IsFatal(fmt.Errorf("account %q not found: %w", "ghost", ErrFatal)) {
		t.Error("wrapped ErrFatal should be fatal")
	}
}
