package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding ingested posts. It is safe for
// concurrent use: the connection pool is capped at one connection, so the
// single ingest writer and any number of readers are serialized per
// statement and never observe a torn row.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used
// by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "dropfeed.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Posts ---

// UpsertIfNew inserts the post keyed by its source ID. If a row with the
// same ID already exists the call is a no-op: it returns inserted=false,
// no error, and leaves the stored row untouched. First-seen snapshots win
// even when engagement counters drifted upstream between polls.
func (s *Store) UpsertIfNew(p Post) (bool, error) {
	keywords := []byte("[]")
	if len(p.Keywords) > 0 {
		var err error
		if keywords, err = json.Marshal(p.Keywords); err != nil {
			return false, fmt.Errorf("marshalling keywords: %w", err)
		}
	}

	ingestedAt := p.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now()
	}

	res, err := s.db.Exec(`
		INSERT INTO posts (post_id, content, url, posted_at, likes, boosts, replies, is_match, keywords, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(post_id) DO NOTHING`,
		p.ID, p.Content, p.URL, p.PostedAt.UTC().Format(time.RFC3339),
		p.Likes, p.Boosts, p.Replies, p.IsMatch, string(keywords),
		ingestedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetPost retrieves a stored post by its source ID.
func (s *Store) GetPost(id string) (Post, error) {
	row := s.db.QueryRow(`
		SELECT post_id, content, url, posted_at, likes, boosts, replies, is_match, keywords, ingested_at
		FROM posts WHERE post_id = ?`, id,
	)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return Post{}, ErrNotFound
	}
	return p, err
}

// RecentMatching returns matching posts ordered by arrival, newest first,
// truncated to limit. Negative limits are clamped to 0; a 0 limit yields
// an empty slice.
func (s *Store) RecentMatching(limit int) ([]Post, error) {
	if limit <= 0 {
		return nil, nil
	}

	// Posts from one cycle share an ingested_at; the rowid tiebreaker
	// keeps them in fetch order (the source returns newest first).
	rows, err := s.db.Query(`
		SELECT post_id, content, url, posted_at, likes, boosts, replies, is_match, keywords, ingested_at
		FROM posts WHERE is_match = 1
		ORDER BY ingested_at DESC, id ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// Aggregate computes the current Snapshot inside a single transaction so
// all counts describe one consistent view of the table. TodayPosts counts
// matching posts ingested since local midnight.
func (s *Store) Aggregate() (Snapshot, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Snapshot{}, fmt.Errorf("beginning aggregate transaction: %w", err)
	}
	defer tx.Rollback()

	var snap Snapshot
	if err := tx.QueryRow("SELECT COUNT(*) FROM posts").Scan(&snap.TotalPosts); err != nil {
		return Snapshot{}, fmt.Errorf("counting posts: %w", err)
	}
	if err := tx.QueryRow("SELECT COUNT(*) FROM posts WHERE is_match = 1").Scan(&snap.MatchingPosts); err != nil {
		return Snapshot{}, fmt.Errorf("counting matching posts: %w", err)
	}

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	err = tx.QueryRow("SELECT COUNT(*) FROM posts WHERE is_match = 1 AND ingested_at >= ?",
		midnight.UTC().Format(time.RFC3339Nano)).Scan(&snap.TodayPosts)
	if err != nil {
		return Snapshot{}, fmt.Errorf("counting today's posts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, fmt.Errorf("committing aggregate: %w", err)
	}

	if snap.TotalPosts > 0 {
		rate := float64(snap.MatchingPosts) / float64(snap.TotalPosts)
		snap.MatchRate = math.Round(rate*100) / 100
	}
	return snap, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (Post, error) {
	var p Post
	var postedAt, keywords, ingestedAt string
	err := row.Scan(&p.ID, &p.Content, &p.URL, &postedAt, &p.Likes, &p.Boosts, &p.Replies, &p.IsMatch, &keywords, &ingestedAt)
	if err != nil {
		return Post{}, err
	}
	if p.PostedAt, err = time.Parse(time.RFC3339, postedAt); err != nil {
		return Post{}, fmt.Errorf("parsing posted_at: %w", err)
	}
	if p.IngestedAt, err = time.Parse(time.RFC3339Nano, ingestedAt); err != nil {
		return Post{}, fmt.Errorf("parsing ingested_at: %w", err)
	}
	if err := json.Unmarshal([]byte(keywords), &p.Keywords); err != nil {
		return Post{}, fmt.Errorf("parsing keywords: %w", err)
	}
	return p, nil
}
