package cmd

import (
	"fmt"
	"log"
	"os"

	"tunesync/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tunesync",
	Short: "tunesync resolves playable streams for library tracks.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting tunesync server...")
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
