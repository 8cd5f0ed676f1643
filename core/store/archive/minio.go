package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	mio "github.com/you-humble/ubattery/core/libs/minio"

	"github.com/minio/minio-go/v7"
)

var ErrNotArchived = errors.New("result is not archived")

const contentType = "application/json"

// minioStore keeps one JSON object per succeeded task under
// <base>/results/<id>.json.
type minioStore struct {
	db     *minio.Client
	bucket string
	prefix string
}

func NewMinIOStore(ctx context.Context, cfg mio.Config) (*minioStore, error) {
	client, err := mio.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	prefix := strings.Trim(cfg.BasePath, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &minioStore{
		db:     client,
		bucket: cfg.Bucket,
		prefix: prefix + "results/",
	}, nil
}

func (s *minioStore) Put(ctx context.Context, taskID string, payload []byte) error {
	name, err := s.objectName(taskID)
	if err != nil {
		return err
	}

	_, err = s.db.PutObject(ctx, s.bucket, name,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return fmt.Errorf("put object %s: %w", name, err)
	}
	return nil
}

func (s *minioStore) Open(ctx context.Context, taskID string) (io.ReadCloser, int64, error) {
	name, err := s.objectName(taskID)
	if err != nil {
		return nil, 0, err
	}

	obj, err := s.db.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("get object %s: %w", name, err)
	}

	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == minio.NoSuchKey {
			return nil, 0, ErrNotArchived
		}
		return nil, 0, fmt.Errorf("stat object %s: %w", name, err)
	}

	return obj, st.Size, nil
}

func (s *minioStore) Delete(ctx context.Context, taskID string) error {
	name, err := s.objectName(taskID)
	if err != nil {
		return err
	}

	err = s.db.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == minio.NoSuchKey {
			return nil
		}
		return fmt.Errorf("remove object %s: %w", name, err)
	}
	return nil
}

func (s *minioStore) objectName(taskID string) (string, error) {
	if taskID == "" || strings.ContainsAny(taskID, "/\\") || strings.Contains(taskID, "..") {
		return "", fmt.Errorf("invalid task id %q", taskID)
	}
	return s.prefix + taskID + ".json", nil
}
