package services

import "errors"

var (
	// ErrNotFound is returned by read and delete operations on unknown ids.
	ErrNotFound = errors.New("item not found")
	// ErrValidation covers malformed input caught at the service boundary.
	ErrValidation = errors.New("validation failed")
	// ErrTypeChange rejects a batch that tries to mutate a node's kind.
	ErrTypeChange = errors.New("node type cannot be changed")
	// ErrDuplicateID rejects a batch naming the same id twice.
	ErrDuplicateID = errors.New("duplicate id in batch")
)
