package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/feichai0017/pdf-transcriber/pkg/logger"
	"github.com/feichai0017/pdf-transcriber/pkg/storage/memory"
	"github.com/feichai0017/pdf-transcriber/pkg/storage/minio"
	"github.com/feichai0017/pdf-transcriber/pkg/storage/s3"
)

type StorageType string

const (
	StorageTypeS3     StorageType = "s3"
	StorageTypeMinio  StorageType = "minio"
	StorageTypeMemory StorageType = "memory"
)

// Storage holds uploaded PDFs and transcription results.
type Storage interface {
	// Store writes reader under key and returns the key.
	Store(ctx context.Context, reader io.Reader, key string, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// CleanupBefore deletes objects last modified before threshold.
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

func NewStorage(ctx context.Context, storageType StorageType, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, log)
	case StorageTypeMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
