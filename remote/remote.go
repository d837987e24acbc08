// Package remote defines the object-store abstraction the cache tiers
// against, plus the deterministic key layout used on the remote side.
// The s3 subpackage provides the AWS-backed implementation.
package remote

import (
	"context"
	"time"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	SizeBytes    int64
	LastModified time.Time
	Metadata     map[string]string
}

// Store is the remote object backend. Implementations must be safe for
// concurrent use.
type Store interface {
	// Upload stores the file at localPath under key with the given
	// object metadata.
	Upload(ctx context.Context, key, localPath string, metadata map[string]string) error

	// Download fetches key into localPath, creating parent directories.
	Download(ctx context.Context, key, localPath string) error

	// Head reports object info. The bool is false when the key does not
	// exist; err is reserved for transport failures.
	Head(ctx context.Context, key string) (ObjectInfo, bool, error)

	// List returns all objects under prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
