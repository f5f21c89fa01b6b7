package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "dropfeed",
	Short: "Airdrop feed watcher",
	Long:  "dropfeed polls one exchange account for posts, filters airdrop announcements, and serves the live feed over HTTP.",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the dropfeed version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("dropfeed", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(startCmd, refreshCmd, statsCmd, postsCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
