package records

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateDocument means the uploaded file matches a document the
	// user already stored. Nothing is written.
	ErrDuplicateDocument = errors.New("document already uploaded")
	// ErrNotEnoughHistory means fewer than two reports exist, so no
	// comparison can be made.
	ErrNotEnoughHistory = errors.New("not enough report history to compare")
)

// StorageError wraps a fatal persistence failure during record building.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ValidationError reports rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
