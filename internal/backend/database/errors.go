package database

import (
	"errors"
	"fmt"
)

// ErrUnsupportedDatabase is returned by NewDatabase for unknown database types.
var ErrUnsupportedDatabase = errors.New("unsupported database type")

// ErrEmptyID is returned when an operation receives an empty image id.
var ErrEmptyID = errors.New("image id is required")

// StorageError reports a failure of the durable layer. Op names the failed
// operation (open, init, put, getAll, get, delete, close).
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *StorageError
	if errors.As(err, &existing) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
