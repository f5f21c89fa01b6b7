package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Post is one ingested unit of source content. Rows are frozen at first
// insert: re-seeing the same post ID never updates classification or
// engagement counters.
type Post struct {
	ID         string    `json:"id"` // source-assigned post ID, unique across re-fetches
	Content    string    `json:"content"`
	URL        string    `json:"url"`
	PostedAt   time.Time `json:"posted_at"` // source-reported creation time
	Likes      int64     `json:"likes"`
	Boosts     int64     `json:"boosts"`
	Replies    int64     `json:"replies"`
	IsMatch    bool      `json:"is_match"`
	Keywords   []string  `json:"keywords"` // matched terms in keyword-set order, empty iff !IsMatch
	IngestedAt time.Time `json:"ingested_at"`
}

// Snapshot is a point-in-time aggregate over the posts table.
type Snapshot struct {
	TotalPosts    int     `json:"total_posts"`
	MatchingPosts int     `json:"matching_posts"`
	TodayPosts    int     `json:"today_posts"`
	MatchRate     float64 `json:"match_rate"`
}
