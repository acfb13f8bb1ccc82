package storage

import (
	"context"
	"fmt"
)

const (
	TypeLocal = "local"
	TypeS3    = "s3"
)

// Options selects and configures a Storage backend.
type Options struct {
	Type     string
	BaseDir  string
	S3Bucket string
	S3Prefix string
	S3Region string
}

// Open returns the backend named by opts.Type.
func Open(ctx context.Context, opts Options) (Storage, error) {
	switch opts.Type {
	case "", TypeLocal:
		return NewLocalStorage(opts.BaseDir)
	case TypeS3:
		if opts.S3Bucket == "" {
			return nil, fmt.Errorf("s3 storage requires a bucket")
		}
		return NewS3Storage(ctx, opts.S3Bucket, opts.S3Prefix, opts.S3Region)
	default:
		return nil, fmt.Errorf("unknown storage type %q", opts.Type)
	}
}
