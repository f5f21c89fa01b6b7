// Package source defines the upstream post provider boundary and its
// Mastodon implementation.
package source

import (
	"context"
	"errors"
	"time"
)

// ErrFatal marks source failures that will not heal on their own, such as
// revoked credentials or a missing upstream account. Transient failures
// (network, rate limits) are returned unwrapped and retried implicitly at
// the next poll tick.
var ErrFatal = errors.New("fatal source error")

// IsFatal reports whether err is a non-recoverable source failure.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// RawPost is one raw item as returned by the upstream source, before
// classification.
type RawPost struct {
	ID       string
	Text     string
	URL      string
	PostedAt time.Time
	Likes    int64
	Boosts   int64
	Replies  int64
}

// Source supplies a bounded batch of recent posts per call. Fetch may
// return fewer than limit posts; an empty slice with a nil error means
// the upstream simply had nothing new and is not a failure.
type Source interface {
	Fetch(ctx context.Context, limit int) ([]RawPost, error)
}
