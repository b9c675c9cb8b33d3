// Package blobstore is the object-storage collaborator used for training sets,
// result files, model artifacts and the stored retraining query.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Bucket is a flat key/value view over a single storage container.
// Keys are object names relative to the container.
type Bucket interface {
	// Name returns the container the bucket is bound to.
	Name() string
	Put(ctx context.Context, key string, data []byte) error
	// Get returns ErrNotFound when key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	// List returns every key starting with prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}
