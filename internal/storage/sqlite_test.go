package storage

import (
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPost(id string, isMatch bool, ingestedAt time.Time) Post {
	p := Post{
		ID:         id,
		Content:    "content for " + id,
		URL:        "https://example.social/@exchange/" + id,
		PostedAt:   time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		Likes:      10,
		Boosts:     2,
		Replies:    1,
		IsMatch:    isMatch,
		IngestedAt: ingestedAt,
	}
	if isMatch {
		p.Keywords = []string{"airdrop"}
	}
	return p
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestIndexesExist verifies the feed-query indexes are created by the migration.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_posts_match_ingested", "idx_posts_ingested"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestUpsertAndGetPost(t *testing.T) {
	s := openTestStore(t)

	want := testPost("111", true, time.Date(2026, 1, 15, 12, 30, 0, 0, time.UTC))
	want.Keywords = []string{"airdrop", "claim"}

	inserted, err := s.UpsertIfNew(want)
	if err != nil {
		t.Fatalf("UpsertIfNew: %v", err)
	}
	if !inserted {
		t.Fatal("expected inserted=true for new post")
	}

	got, err := s.GetPost("111")
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.ID != want.ID || got.Content != want.Content || got.URL != want.URL {
		t.Errorf("post mismatch: got %+v, want %+v", got, want)
	}
	if !got.PostedAt.Equal(want.PostedAt) || !got.IngestedAt.Equal(want.IngestedAt) {
		t.Errorf("timestamps mismatch: got %v/%v, want %v/%v", got.PostedAt, got.IngestedAt, want.PostedAt, want.IngestedAt)
	}
	if got.Likes != 10 || got.Boosts != 2 || got.Replies != 1 {
		t.Errorf("engagement mismatch: %d/%d/%d", got.Likes, got.Boosts, got.Replies)
	}
	if len(got.Keywords) != 2 || got.Keywords[0] != "airdrop" || got.Keywords[1] != "claim" {
		t.Errorf("keywords = %v, want [airdrop claim]", got.Keywords)
	}
}

func TestGetPostNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetPost("missing"); err != ErrNotFound {
		t.Errorf("GetPost(missing) err = %v, want ErrNotFound", err)
	}
}

// TestUpsertIfNewIdempotent re-inserts the same post ID with drifted
// engagement counters and verifies the stored row is unchanged.
func TestUpsertIfNewIdempotent(t *testing.T) {
	s := openTestStore(t)

	first := testPost("222", true, time.Now().UTC())
	if _, err := s.UpsertIfNew(first); err != nil {
		t.Fatalf("first UpsertIfNew: %v", err)
	}

	second := first
	second.Likes = 9999
	second.Content = "updated content"
	second.IsMatch = false
	second.Keywords = nil

	inserted, err := s.UpsertIfNew(second)
	if err != nil {
		t.Fatalf("second UpsertIfNew: %v", err)
	}
	if inserted {
		t.Error("expected inserted=false for duplicate post ID")
	}

	got, err := s.GetPost("222")
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.Likes != first.Likes || got.Content != first.Content || !got.IsMatch {
		t.Errorf("stored row was overwritten: %+v", got)
	}
}

// TestUpsertBatchWithDuplicate ingests IDs [A, B, A] and verifies exactly
// two rows end up in the store.
func TestUpsertBatchWithDuplicate(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	for _, id := range []string{"A", "B", "A"} {
		if _, err := s.UpsertIfNew(testPost(id, true, now)); err != nil {
			t.Fatalf("UpsertIfNew(%s): %v", id, err)
		}
	}

	snap, err := s.Aggregate()
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if snap.TotalPosts != 2 {
		t.Errorf("TotalPosts = %d, want 2", snap.TotalPosts)
	}
}

// TestAggregateEmpty verifies the empty store yields all-zero stats instead
// of a division error.
func TestAggregateEmpty(t *testing.T) {
	s := openTestStore(t)

	snap, err := s.Aggregate()
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if snap.TotalPosts != 0 || snap.MatchingPosts != 0 || snap.TodayPosts != 0 || snap.MatchRate != 0 {
		t.Errorf("empty store snapshot = %+v, want zeros", snap)
	}
}

func TestAggregateCounts(t *testing.T) {
	s := openTestStore(t)

	now := time.Now()
	for i := 0; i < 4; i++ {
		p := testPost(fmt.Sprintf("p%d", i), i < 3, now)
		if _, err := s.UpsertIfNew(p); err != nil {
			t.Fatalf("UpsertIfNew: %v", err)
		}
	}

	snap, err := s.Aggregate()
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if snap.TotalPosts != 4 || snap.MatchingPosts != 3 {
		t.Errorf("counts = %d/%d, want 4/3", snap.TotalPosts, snap.MatchingPosts)
	}
	if snap.TodayPosts != 3 {
		t.Errorf("TodayPosts = %d, want 3", snap.TodayPosts)
	}
	if snap.MatchRate != 0.75 {
		t.Errorf("MatchRate = %v, want 0.75", snap.MatchRate)
	}
}

// TestAggregateExcludesOldFromToday inserts a post ingested yesterday and
// checks it contributes to totals but not TodayPosts.
func TestAggregateExcludesOldFromToday(t *testing.T) {
	s := openTestStore(t)

	yesterday := time.Now().Add(-36 * time.Hour)
	if _, err := s.UpsertIfNew(testPost("old", true, yesterday)); err != nil {
		t.Fatalf("UpsertIfNew: %v", err)
	}

	snap, err := s.Aggregate()
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if snap.MatchingPosts != 1 {
		t.Errorf("MatchingPosts = %d, want 1", snap.MatchingPosts)
	}
	if snap.TodayPosts != 0 {
		t.Errorf("TodayPosts = %d, want 0", snap.TodayPosts)
	}
}

func TestRecentMatchingOrderAndPrefix(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		p := testPost(fmt.Sprintf("m%d", i), true, base.Add(time.Duration(i)*time.Minute))
		if _, err := s.UpsertIfNew(p); err != nil {
			t.Fatalf("UpsertIfNew: %v", err)
		}
	}
	// Non-matching post must never appear.
	if _, err := s.UpsertIfNew(testPost("noise", false, base.Add(time.Hour))); err != nil {
		t.Fatalf("UpsertIfNew: %v", err)
	}

	all, err := s.RecentMatching(10)
	if err != nil {
		t.Fatalf("RecentMatching(10): %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("got %d posts, want 5", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].IngestedAt.After(all[i-1].IngestedAt) {
			t.Errorf("posts not in descending ingest order at %d", i)
		}
	}
	for _, p := range all {
		if !p.IsMatch {
			t.Errorf("non-matching post %s returned", p.ID)
		}
	}

	// RecentMatching(k) must be a prefix of RecentMatching(k+1).
	for k := 1; k < 5; k++ {
		shorter, err := s.RecentMatching(k)
		if err != nil {
			t.Fatalf("RecentMatching(%d): %v", k, err)
		}
		if len(shorter) != k {
			t.Fatalf("RecentMatching(%d) returned %d posts", k, len(shorter))
		}
		for i := range shorter {
			if shorter[i].ID != all[i].ID {
				t.Errorf("RecentMatching(%d)[%d] = %s, want %s", k, i, shorter[i].ID, all[i].ID)
			}
		}
	}
}

func TestRecentMatchingZeroAndNegativeLimit(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.UpsertIfNew(testPost("x", true, time.Now())); err != nil {
		t.Fatalf("UpsertIfNew: %v", err)
	}

	for _, limit := range []int{0, -5} {
		posts, err := s.RecentMatching(limit)
		if err != nil {
			t.Fatalf("RecentMatching(%d): %v", limit, err)
		}
		if len(posts) != 0 {
			t.Errorf("RecentMatching(%d) returned %d posts, want 0", limit, len(posts))
		}
	}
}
