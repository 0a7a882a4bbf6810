package domain

import "errors"

var (
	// ErrNoData is returned when a build finds no usable source records.
	ErrNoData = errors.New("no usable Q&A data found")
	// ErrEmptyCollection is returned when the vector collection holds no chunks.
	ErrEmptyCollection = errors.New("vector collection is empty")
	// ErrInvalidQuery is returned for blank or malformed queries.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrNotPrepared is returned by embedders used before Prepare or Restore.
	ErrNotPrepared = errors.New("embedder not prepared")
	// ErrDimensionMismatch is returned when a vector does not match the collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
