package mio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	BasePath        string
	Retry           RetryConfig
}

type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (r *RetryConfig) withDefaults() {
	if r.MaxRetries <= 0 {
		r.MaxRetries = 5
	}
	if r.InitialInterval <= 0 {
		r.InitialInterval = time.Second
	}
	if r.MaxInterval <= 0 {
		r.MaxInterval = 30 * time.Second
	}
}

// NewClient builds a client and makes sure the bucket exists, backing off
// exponentially while the server is not reachable yet.
func NewClient(ctx context.Context, cfg Config) (*minio.Client, error) {
	switch {
	case cfg.Endpoint == "":
		return nil, fmt.Errorf("empty MinIO endpoint")
	case cfg.Bucket == "":
		return nil, fmt.Errorf("empty MinIO bucket")
	}
	cfg.Retry.withDefaults()

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create MinIO client: %w", err)
	}

	var lastErr error
	wait := cfg.Retry.InitialInterval
	for attempt := 1; attempt <= cfg.Retry.MaxRetries; attempt++ {
		if lastErr = ensureBucket(ctx, client, cfg.Bucket); lastErr == nil {
			return client, nil
		}
		if attempt == cfg.Retry.MaxRetries {
			break
		}

		slog.Warn("MinIO not ready",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", wait),
			slog.String("error", lastErr.Error()),
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("MinIO init: %w", ctx.Err())
		case <-time.After(wait):
		}
		wait = min(wait*2, cfg.Retry.MaxInterval)
	}

	return nil, fmt.Errorf("init MinIO failed after %d attempts: %w", cfg.Retry.MaxRetries, lastErr)
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}

	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}
