package storage

import "errors"

var (
	ErrQdrantUnreachable = errors.New("qdrant server unreachable")
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrSnapshotCorrupt   = errors.New("snapshot corrupt")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidKey        = errors.New("invalid storage key")
)
