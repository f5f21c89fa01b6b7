// Package api exposes the read-side HTTP surface: the filtered feed,
// aggregate stats, the manual refresh trigger, and the live event stream.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/dropfeed/internal/broadcast"
	"github.com/kalambet/dropfeed/internal/storage"
)

// FeedStore is the read-only slice of the store the handlers need.
type FeedStore interface {
	RecentMatching(limit int) ([]storage.Post, error)
	Aggregate() (storage.Snapshot, error)
}

// CycleTrigger requests on-demand ingest cycles.
type CycleTrigger interface {
	Trigger() bool
	LastUpdate() time.Time
}

type Deps struct {
	Store       FeedStore
	Poller      CycleTrigger
	Broadcaster *broadcast.Broadcaster
	ResultLimit int // default page size for /api/posts
}

// NewHandler builds the HTTP router. All routes are unauthenticated; the
// service exposes public read-only data.
func NewHandler(deps Deps) http.Handler {
	if deps.ResultLimit <= 0 {
		deps.ResultLimit = 20
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/posts", handleListPosts(deps))
	r.Get("/api/stats", handleStats(deps))
	r.Post("/api/refresh", handleRefresh(deps))
	r.Get("/api/events", handleEvents(deps))
	return r
}

type postsResponse struct {
	Posts      []storage.Post   `json:"posts"`
	Stats      storage.Snapshot `json:"stats"`
	LastUpdate *time.Time       `json:"last_update,omitempty"`
}

func handleListPosts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := deps.ResultLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", raw)
				return
			}
			if n < 0 {
				n = 0
			}
			limit = n
		}

		posts, err := deps.Store.RecentMatching(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading posts: %v", err)
			return
		}
		stats, err := deps.Store.Aggregate()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading stats: %v", err)
			return
		}
		if posts == nil {
			posts = []storage.Post{}
		}

		resp := postsResponse{Posts: posts, Stats: stats}
		if deps.Poller != nil {
			if t := deps.Poller.LastUpdate(); !t.IsZero() {
				resp.LastUpdate = &t
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		stats, err := deps.Store.Aggregate()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading stats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// handleRefresh acknowledges immediately; the cycle itself runs in the
// poller goroutine and its result arrives via the event stream.
func handleRefresh(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		queued := deps.Poller.Trigger()
		msg := "refresh queued"
		if !queued {
			msg = "refresh already pending"
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"message": msg})
	}
}

const eventsKeepAlive = 30 * time.Second

// handleEvents streams cycle-completion events over SSE until the client
// disconnects.
func handleEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming unsupported")
			return
		}

		sub := deps.Broadcaster.Subscribe()
		defer deps.Broadcaster.Unsubscribe(sub.ID)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		keepAlive := time.NewTicker(eventsKeepAlive)
		defer keepAlive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-keepAlive.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case ev, open := <-sub.C:
				if !open {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: cycle\ndata: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
