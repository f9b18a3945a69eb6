package orchestrator

import (
	"errors"
	"fmt"

	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

var (
	// ErrNotFound is returned when an operation names a request that does not exist.
	ErrNotFound = errors.New("request not found")

	// ErrInvalidTransition is returned when the request's status does not allow the operation.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidInput is returned for malformed caller input such as an empty intent.
	ErrInvalidInput = errors.New("invalid input")
)

// translateStoreError maps store-level errors to the controller taxonomy.
func translateStoreError(requestID string, err error) error {
	if err == nil {
		return nil
	}

	if blackboard.IsNotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}

	var mismatch *blackboard.StatusMismatchError
	if errors.As(err, &mismatch) {
		return fmt.Errorf("%w: request %s is %s, cannot move to %s",
			ErrInvalidTransition, requestID, mismatch.Current, mismatch.Target)
	}

	return err
}
