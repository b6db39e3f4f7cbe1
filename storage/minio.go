// Package storage archives resolved streams into a MinIO bucket. Archiving
// is optional and best-effort: debrid links expire, an archived copy does
// not.
package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"tunesync/config"
	"tunesync/logger"
)

var minioClient *minio.Client

// InitMinio initializes the MinIO client and ensures the archive bucket
// exists.
func InitMinio(cfg *config.Config) error {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("created archive bucket", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	logger.Info("MinIO client initialized", logger.String("bucket", cfg.MinioBucket))
	return nil
}

// GetMinioClient returns the MinIO client instance.
func GetMinioClient() *minio.Client {
	return minioClient
}

// Archive copies resolved streams into the bucket.
type Archive struct {
	client     *minio.Client
	bucket     string
	httpClient *http.Client
}

// NewArchive creates an archive over the initialized MinIO client.
func NewArchive(cfg *config.Config) *Archive {
	return &Archive{
		client: minioClient,
		bucket: cfg.MinioBucket,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // whole-file copy of a large FLAC
		},
	}
}

func objectName(trackID string) string {
	return fmt.Sprintf("streams/%s", trackID)
}

// ArchiveStream downloads the resolved stream and stores it under the
// track's ID.
func (a *Archive) ArchiveStream(ctx context.Context, trackID, streamURL string) error {
	if a.client == nil {
		return fmt.Errorf("storage: MinIO not initialized")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storage: fetch stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("storage: stream returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = a.client.PutObject(ctx, a.bucket, objectName(trackID), resp.Body, resp.ContentLength,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("storage: upload stream: %w", err)
	}

	logger.Info("stream archived",
		logger.String("track", trackID),
		logger.Int64("size", resp.ContentLength))
	return nil
}

// StreamURL presigns a playback URL for an archived stream.
func (a *Archive) StreamURL(ctx context.Context, trackID string) (string, error) {
	if a.client == nil {
		return "", fmt.Errorf("storage: MinIO not initialized")
	}
	u, err := a.client.PresignedGetObject(ctx, a.bucket, objectName(trackID), time.Hour, nil)
	if err != nil {
		return "", fmt.Errorf("storage: presign stream: %w", err)
	}
	return u.String(), nil
}
