package domain

import "errors"

var (
	// ErrEmbeddingFailed signals an embedding provider failure (network,
	// auth, or malformed response). Never retried internally.
	ErrEmbeddingFailed = errors.New("embedding failed")
	// ErrUnknownCollection signals a query against a collection that was
	// never configured. Caller programming error, fatal to that call.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrVectorDimMismatch signals a vector whose dimension does not match
	// the collection's configured dimension.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrTimeout signals that a caller-imposed deadline expired before any
	// sub-search completed.
	ErrTimeout = errors.New("retrieval timed out")
	// ErrInvalidArgument signals caller misuse.
	ErrInvalidArgument = errors.New("invalid argument")
)
