package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"tunesync/config"
	"tunesync/storage"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"
)

var archivePrefix string

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect the stream archive bucket",
	Long:  `Connects to MinIO and lists archived stream objects under an optional prefix.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("MinIO config: %s, bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("failed to connect to MinIO: %v", err)
		}
		fmt.Println("MinIO connection OK.")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		prefix := "streams/"
		if archivePrefix != "" {
			prefix = archivePrefix
		}

		var count int
		var total int64
		for obj := range storage.GetMinioClient().ListObjects(ctx, cfg.MinioBucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		}) {
			if obj.Err != nil {
				log.Fatalf("listing failed: %v", obj.Err)
			}
			fmt.Printf("%10d  %s\n", obj.Size, obj.Key)
			count++
			total += obj.Size
		}
		fmt.Printf("\n%d objects, %d bytes\n", count, total)
	},
}

func init() {
	archiveCmd.Flags().StringVarP(&archivePrefix, "prefix", "p", "", "object key prefix to list")
	rootCmd.AddCommand(archiveCmd)
}
