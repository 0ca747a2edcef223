package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by stores, the service and transports.
// Match with errors.Is; callers wrap with context via fmt.Errorf("...: %w").
var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("not permitted")
	ErrInvalidInput       = errors.New("invalid input")
	ErrCommentingDisabled = errors.New("commenting disabled")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrStorage            = errors.New("storage failure")

	ErrInvalidParent    = fmt.Errorf("%w: parent comment does not belong to post", ErrInvalidInput)
	ErrInvalidDirection = fmt.Errorf("%w: direction must be up or down", ErrInvalidInput)
	ErrInvalidTarget    = fmt.Errorf("%w: target type must be post or comment", ErrInvalidInput)
)

// StorageError wraps a backend failure so that errors.Is(err, ErrStorage)
// holds while the driver error stays reachable.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
