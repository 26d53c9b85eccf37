package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog/log"

	"github.com/hormur/event-syndicator/internal/models"
)

const screenshotPrefix = "screenshots/"

// MinIOStorage keeps failure screenshots and serves s3:// image sources.
type MinIOStorage struct {
	client         *minio.Client
	bucketName     string
	publicEndpoint string
}

// NewMinIOStorage creates a new MinIO storage client. Screenshots expire
// after retention; zero keeps them forever.
func NewMinIOStorage(endpoint, publicEndpoint, accessKey, secretKey, bucketName string, useSSL bool, retention time.Duration) (*MinIOStorage, error) {
	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	if publicEndpoint == "" {
		publicEndpoint = endpoint
		if !useSSL {
			publicEndpoint = "http://" + endpoint
		}
	}
	publicEndpoint = strings.TrimSuffix(strings.Trim(strings.TrimSpace(publicEndpoint), `"'`), "/")

	storage := &MinIOStorage{
		client:         minioClient,
		bucketName:     bucketName,
		publicEndpoint: publicEndpoint,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := minioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Warn().Err(err).Msgf("Failed to check bucket existence for %s (will continue)", bucketName)
	} else if !exists {
		if err := minioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			log.Error().Err(err).Msgf("Failed to create bucket %s", bucketName)
		} else {
			log.Info().Msgf("Bucket %s created successfully", bucketName)
		}
	}

	if days := int(retention.Hours() / 24); days > 0 {
		cfg := lifecycle.NewConfiguration()
		cfg.Rules = []lifecycle.Rule{{
			ID:         "expire-screenshots",
			Status:     "Enabled",
			RuleFilter: lifecycle.Filter{Prefix: screenshotPrefix},
			Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(days)},
		}}
		if err := minioClient.SetBucketLifecycle(ctx, bucketName, cfg); err != nil {
			log.Warn().Err(err).Msg("Failed to set screenshot expiry")
		}
	}

	log.Info().
		Str("endpoint", endpoint).
		Str("public_endpoint", publicEndpoint).
		Str("bucket", bucketName).
		Msg("MinIO storage initialized")

	return storage, nil
}

// UploadScreenshot stores a PNG captured when a workflow failed and returns its URL.
func (s *MinIOStorage) UploadScreenshot(ctx context.Context, platform models.Platform, data []byte) (string, error) {
	key := fmt.Sprintf("%s%s/%s/%s.png", screenshotPrefix, platform, time.Now().Format("2006-01-02"), uuid.New().String())

	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "image/png"},
	)
	if err != nil {
		return "", fmt.Errorf("failed to upload screenshot: %w", err)
	}

	url := s.ObjectURL(key)
	log.Info().
		Str("platform", string(platform)).
		Str("key", key).
		Msg("📸 Failure screenshot stored")
	return url, nil
}

// FetchObject opens bucket/key for reading.
func (s *MinIOStorage) FetchObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	// GetObject is lazy; Stat surfaces a missing object before the first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("failed to stat object %s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

// ObjectURL returns the public URL of a key in the screenshot bucket.
func (s *MinIOStorage) ObjectURL(key string) string {
	if strings.Contains(s.publicEndpoint, "://") {
		return fmt.Sprintf("%s/%s/%s", s.publicEndpoint, s.bucketName, key)
	}
	return fmt.Sprintf("https://%s/%s/%s", s.publicEndpoint, s.bucketName, key)
}

// HealthCheck verifies the MinIO connection
func (s *MinIOStorage) HealthCheck(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("MinIO health check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket '%s' does not exist", s.bucketName)
	}
	return nil
}
