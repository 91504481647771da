package handlecache

import (
	"errors"
	"fmt"
)

// ErrNotFound matches every *NotFoundError with errors.Is.
var ErrNotFound = errors.New("not found")

// NotFoundError reports an id or handle that is unknown, or was revoked.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotFound, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
