package storage

import (
	"context"
	"errors"
	"time"
)

// Package storage wraps the S3-compatible object store that backs the
// "object" target validator.

// ErrObjectNotFound is returned by Stat when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is a read-only view of one bucket.
type Storage interface {
	// Bucket returns the bucket every key is resolved against.
	Bucket() string
	// Stat returns the object's info, or ErrObjectNotFound.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}
