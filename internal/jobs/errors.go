package jobs

import (
	"errors"
	"fmt"

	"github.com/vrsandeep/collections-go/internal/store"
)

var (
	// ErrValidation marks a malformed request.
	ErrValidation = errors.New("invalid request")
	// ErrNotFound marks an unknown job, collection, or an empty undo history.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an idempotency key reused with a different payload,
	// or an undo that raced a newer bulk add.
	ErrConflict = errors.New("conflict")
)

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, ErrNotFound)
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
