package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/dropfeed/internal/storage"
)

// --- refresh ---

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Trigger an ingest cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/api/refresh", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("%s", result["message"])
		return nil
	},
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show feed statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/api/stats")
		if err != nil {
			return err
		}

		var snap storage.Snapshot
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}

		printStatus("Total posts", "%d", snap.TotalPosts)
		printStatus("Airdrop posts", "%d", snap.MatchingPosts)
		printStatus("Today", "%d", snap.TodayPosts)
		printStatus("Match rate", "%s", formatRate(snap.MatchRate))
		return nil
	},
}

// --- posts ---

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "List recent airdrop posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(fmt.Sprintf("/api/posts?limit=%d", limit))
		if err != nil {
			return err
		}

		var result struct {
			Posts []storage.Post `json:"posts"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Posts) == 0 {
			printWarning("no airdrop posts yet")
			return nil
		}

		for _, p := range result.Posts {
			printStep("%s  %s", p.IngestedAt.Local().Format(time.DateTime), firstLine(p.Content))
			if len(p.Keywords) > 0 {
				printStatus("keywords", "%v", p.Keywords)
			}
			if p.URL != "" {
				printStatus("url", "%s", p.URL)
			}
		}
		return nil
	},
}

func init() {
	postsCmd.Flags().Int("limit", 20, "number of posts to show")
}

// formatRate renders the matching ratio as a percentage.
func formatRate(rate float64) string {
	return fmt.Sprintf("%.0f%%", rate*100)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
