// Package poller runs the periodic ingest cycle: fetch posts from the
// upstream source, classify them, persist new ones, and notify
// subscribers.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/dropfeed/internal/broadcast"
	"github.com/kalambet/dropfeed/internal/classify"
	"github.com/kalambet/dropfeed/internal/source"
	"github.com/kalambet/dropfeed/internal/storage"
)

// PostStore abstracts the storage operations a cycle needs.
type PostStore interface {
	UpsertIfNew(p storage.Post) (bool, error)
	RecentMatching(limit int) ([]storage.Post, error)
}

// Notifier receives the cycle-completion event.
type Notifier interface {
	Publish(ev broadcast.Event)
}

// Options tune the poll loop. Zero values fall back to defaults.
type Options struct {
	Interval  time.Duration // cadence between cycles, default 5m
	BatchSize int           // posts requested per fetch, default 100
	TopN      int           // matching posts included in each event, default 10
}

// CycleStats summarizes one completed cycle.
type CycleStats struct {
	Fetched     int
	New         int
	NewMatching int
	WriteErrors int
}

// Poller owns the ingest lifecycle. Exactly one cycle runs at a time:
// Run is the only goroutine executing cycles, and manual triggers are
// coalesced through a one-slot channel, so a trigger that arrives while
// a cycle is in flight results in at most one follow-up cycle.
type Poller struct {
	source   source.Source
	store    PostStore
	keywords classify.KeywordSet
	notifier Notifier
	opts     Options
	logger   *slog.Logger

	trigger chan struct{}

	mu         sync.Mutex
	lastUpdate time.Time
}

// New creates a Poller. notifier may be nil, in which case events are
// discarded.
func New(src source.Source, store PostStore, keywords classify.KeywordSet, notifier Notifier, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.TopN <= 0 {
		opts.TopN = 10
	}
	return &Poller{
		source:   src,
		store:    store,
		keywords: keywords,
		notifier: notifier,
		opts:     opts,
		logger:   slog.Default(),
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests an on-demand cycle and returns immediately. It reports
// whether the request was newly queued; false means a cycle was already
// pending, which satisfies this trigger too.
func (p *Poller) Trigger() bool {
	select {
	case p.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// LastUpdate returns the completion time of the most recent successful
// cycle, zero if none has finished yet.
func (p *Poller) LastUpdate() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUpdate
}

// Run executes cycles until ctx is cancelled: once immediately at
// startup, then on every timer tick or manual trigger. A cycle that is
// in flight when ctx is cancelled finishes on its own; committed rows
// stay valid because inserts are idempotent per post.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.trigger:
		}
		p.runCycle(ctx)
	}
}

func (p *Poller) runCycle(ctx context.Context) {
	stats, err := p.RunOnce(ctx)
	if err != nil {
		if source.IsFatal(err) {
			p.logger.Error("cycle aborted, source failure needs operator attention", "error", err)
		} else {
			p.logger.Warn("cycle aborted, will retry at next tick", "error", err)
		}
		return
	}
	p.logger.Info("cycle completed",
		"fetched", stats.Fetched,
		"new", stats.New,
		"new_matching", stats.NewMatching,
		"write_errors", stats.WriteErrors,
	)
}

// RunOnce executes a single fetch-classify-persist-notify cycle. A fetch
// failure aborts the cycle; per-post write failures are tallied and the
// rest of the batch still commits. Posts are written in fetch order.
func (p *Poller) RunOnce(ctx context.Context) (CycleStats, error) {
	var stats CycleStats

	raw, err := p.source.Fetch(ctx, p.opts.BatchSize)
	if err != nil {
		return stats, err
	}
	stats.Fetched = len(raw)

	now := time.Now()
	for _, rp := range raw {
		isMatch, terms := p.keywords.Classify(rp.Text)
		post := storage.Post{
			ID:         rp.ID,
			Content:    rp.Text,
			URL:        rp.URL,
			PostedAt:   rp.PostedAt,
			Likes:      rp.Likes,
			Boosts:     rp.Boosts,
			Replies:    rp.Replies,
			IsMatch:    isMatch,
			Keywords:   terms,
			IngestedAt: now,
		}

		inserted, err := p.store.UpsertIfNew(post)
		if err != nil {
			stats.WriteErrors++
			p.logger.Warn("persisting post failed", "post_id", post.ID, "error", err)
			continue
		}
		if inserted {
			stats.New++
			if isMatch {
				stats.NewMatching++
			}
		}
	}

	p.mu.Lock()
	p.lastUpdate = time.Now()
	p.mu.Unlock()

	if p.notifier != nil {
		top, err := p.store.RecentMatching(p.opts.TopN)
		if err != nil {
			p.logger.Warn("loading top posts for event failed", "error", err)
		}
		p.notifier.Publish(broadcast.Event{
			Timestamp:   time.Now(),
			Fetched:     stats.Fetched,
			NewPosts:    stats.New,
			NewMatching: stats.NewMatching,
			WriteErrors: stats.WriteErrors,
			TopPosts:    top,
		})
	}

	return stats, nil
}
