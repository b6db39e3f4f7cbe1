package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"tunesync/config"
	"tunesync/core/meta"
	"tunesync/core/resolver"
	"tunesync/core/source"

	"github.com/spf13/cobra"
)

var resolveQuery string

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a playable stream for a track",
	Long:  `Searches the metadata provider for a track and walks the source chain once, printing the winning candidate.`,
	Run: func(cmd *cobra.Command, args []string) {
		if resolveQuery == "" {
			fmt.Println("a search query is required, use --query")
			os.Exit(1)
		}

		cfg := config.Load()
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		client := meta.NewClient(cfg.MetaAPIURL)

		fmt.Printf("Searching for: %s\n", resolveQuery)
		tracks, err := client.SearchTracks(ctx, resolveQuery)
		if err != nil {
			log.Fatalf("search failed: %v", err)
		}
		if len(tracks) == 0 {
			fmt.Println("no matching tracks")
			return
		}

		fmt.Printf("\nFound %d tracks:\n", len(tracks))
		for i, t := range tracks {
			fmt.Printf("%d. %s - %s [%s]\n", i+1, t.Title, t.Artist, t.Album)
		}

		var choice int
		fmt.Print("\nPick a track number to resolve: ")
		fmt.Scan(&choice)
		if choice < 1 || choice > len(tracks) {
			fmt.Println("invalid choice")
			return
		}
		track := tracks[choice-1]

		res := resolver.New(
			resolver.Config{
				Order:                cfg.SourceOrder,
				AllowParallelPending: cfg.AllowParallelPending,
			},
			source.NewDebridClient(cfg.DebridAPIURL, source.StaticCredentials{Key: cfg.DebridAPIKey}),
			source.NewMirrorstreamClient(cfg.MirrorHosts),
			source.NewPagescrapeClient(cfg.ScrapeBaseURL),
		)

		resolution, err := res.Resolve(ctx, track)
		if err != nil {
			log.Fatalf("resolution failed: %v", err)
		}

		c := resolution.Candidate
		fmt.Printf("\nSource:  %s\n", resolution.Source.Name())
		fmt.Printf("Status:  %s\n", c.Status)
		if c.StreamURL != "" {
			fmt.Printf("Stream:  %s\n", c.StreamURL)
		}
		if c.JobID != "" {
			fmt.Printf("Job:     %s (poll the server API for completion)\n", c.JobID)
		}
		if c.Quality != "" {
			fmt.Printf("Quality: %s\n", c.Quality)
		}
	},
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveQuery, "query", "q", "", "track search query")
	rootCmd.AddCommand(resolveCmd)
}
