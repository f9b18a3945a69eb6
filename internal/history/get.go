package history

import (
	"context"
	"fmt"
	"io"

	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

// ShowVersion writes one version of a request as pretty-printed JSON.
// A zero version selects the latest.
func ShowVersion(ctx context.Context, client *blackboard.Client, requestID string, version int, w io.Writer) error {
	var (
		v   *blackboard.Version
		err error
	)
	if version == 0 {
		v, err = client.LatestVersion(ctx, requestID)
	} else {
		v, err = client.GetVersion(ctx, requestID, version)
	}
	if err != nil {
		if blackboard.IsNotFound(err) {
			return &VersionNotFoundError{RequestID: requestID, Version: version}
		}
		return fmt.Errorf("failed to fetch version: %w", err)
	}

	return FormatSingleJSON(w, v)
}

// RequestNotFoundError is returned when the request does not exist.
type RequestNotFoundError struct {
	RequestID string
}

func (e *RequestNotFoundError) Error() string {
	return fmt.Sprintf("request with ID '%s' not found", e.RequestID)
}

// VersionNotFoundError is returned when the request has no such version.
type VersionNotFoundError struct {
	RequestID string
	Version   int
}

func (e *VersionNotFoundError) Error() string {
	if e.Version == 0 {
		return fmt.Sprintf("request '%s' has no versions", e.RequestID)
	}
	return fmt.Sprintf("version %d of request '%s' not found", e.Version, e.RequestID)
}

// IsNotFound returns true for RequestNotFoundError and VersionNotFoundError.
func IsNotFound(err error) bool {
	switch err.(type) {
	case *RequestNotFoundError, *VersionNotFoundError:
		return true
	}
	return false
}
