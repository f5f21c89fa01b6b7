package source

import (
	"context"
	"fmt"
	"strings"
	"sync"

	gomastodon "github.com/mattn/go-mastodon"
	"golang.org/x/net/html"
)

// MastodonConfig holds the connection details for one watched account.
type MastodonConfig struct {
	Server      string
	AccessToken string
	Account     string // username of the watched account, e.g. "binance"
}

// MastodonSource fetches recent statuses of a single account via the
// Mastodon REST API.
type MastodonSource struct {
	client  *gomastodon.Client
	account string

	mu        sync.Mutex
	accountID gomastodon.ID // resolved lazily, cached for the process lifetime
}

// NewMastodonSource creates a source for the account named in cfg. The
// account ID is resolved on first Fetch.
func NewMastodonSource(cfg MastodonConfig) *MastodonSource {
	c := gomastodon.NewClient(&gomastodon.Config{
		Server:      cfg.Server,
		AccessToken: cfg.AccessToken,
	})
	return &MastodonSource{
		client:  c,
		account: cfg.Account,
	}
}

// Fetch returns up to limit recent original statuses of the watched
// account, newest first, with HTML stripped from the bodies. Boosts of
// other accounts' posts are skipped, so fewer than limit posts may come
// back even when the timeline is full.
func (s *MastodonSource) Fetch(ctx context.Context, limit int) ([]RawPost, error) {
	id, err := s.resolveAccount(ctx)
	if err != nil {
		return nil, err
	}

	pg := &gomastodon.Pagination{Limit: int64(limit)}
	statuses, err := s.client.GetAccountStatuses(ctx, id, pg)
	if err != nil {
		return nil, classifyErr(fmt.Errorf("fetching statuses for %s: %w", s.account, err))
	}

	posts := make([]RawPost, 0, len(statuses))
	for _, st := range statuses {
		if st.Reblog != nil {
			continue
		}
		posts = append(posts, RawPost{
			ID:       string(st.ID),
			Text:     StripHTML(st.Content),
			URL:      st.URL,
			PostedAt: st.CreatedAt,
			Likes:    st.FavouritesCount,
			Boosts:   st.ReblogsCount,
			Replies:  st.RepliesCount,
		})
	}
	return posts, nil
}

// resolveAccount looks up the watched account once and caches its ID. A
// lookup that succeeds but finds no exact match is fatal: the configured
// account does not exist, so retrying is pointless.
func (s *MastodonSource) resolveAccount(ctx context.Context) (gomastodon.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accountID != "" {
		return s.accountID, nil
	}

	results, err := s.client.AccountsSearch(ctx, s.account, 5)
	if err != nil {
		return "", classifyErr(fmt.Errorf("searching account %q: %w", s.account, err))
	}

	for _, acct := range results {
		if acct.Username == s.account || acct.Acct == s.account {
			s.accountID = acct.ID
			return s.accountID, nil
		}
	}
	return "", fmt.Errorf("account %q not found: %w", s.account, ErrFatal)
}

// classifyErr wraps credential failures with ErrFatal. go-mastodon reports
// API failures as plain errors carrying the HTTP status line, so this goes
// by the status text.
func classifyErr(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "unauthorized") {
		return fmt.Errorf("%v: %w", err, ErrFatal)
	}
	return err
}

// StripHTML extracts the text content of a Mastodon HTML status body,
// turning <br> into newlines. Malformed input is returned as-is.
func StripHTML(htmlStr string) string {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return htmlStr
	}

	var buf strings.Builder
	extractText(doc, &buf)
	return buf.String()
}

func extractText(n *html.Node, buf *strings.Builder) {
	if n.Type == html.TextNode {
		buf.WriteString(n.Data)
	} else if n.Type == html.ElementNode && n.Data == "br" {
		buf.WriteString("\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, buf)
	}
}
