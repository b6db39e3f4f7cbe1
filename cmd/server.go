package cmd

import (
	"log"

	"tunesync/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the sync API server",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting tunesync server...")
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
