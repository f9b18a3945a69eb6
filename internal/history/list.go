// Package history lists requests and the version history of a request from the
// blackboard, as tables or JSONL.
package history

import (
	"context"
	"fmt"
	"io"

	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

// ListRequests writes every request of the client's instance, oldest first.
func ListRequests(ctx context.Context, client *blackboard.Client, format OutputFormat, filters *Criteria, w io.Writer) error {
	requests, err := client.ListRequests(ctx)
	if err != nil {
		return fmt.Errorf("failed to list requests: %w", err)
	}

	matched := requests[:0]
	for _, r := range requests {
		if filters.MatchesRequest(r) {
			matched = append(matched, r)
		}
	}

	switch format {
	case OutputFormatDefault:
		_, err = FormatRequestTable(w, matched, client.InstanceName())
		return err
	case OutputFormatJSONL:
		return FormatJSONL(w, matched)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// ShowHistory writes the versions of one request in version order.
func ShowHistory(ctx context.Context, client *blackboard.Client, requestID string, format OutputFormat, filters *Criteria, w io.Writer) error {
	if _, err := client.GetRequest(ctx, requestID); err != nil {
		if blackboard.IsNotFound(err) {
			return &RequestNotFoundError{RequestID: requestID}
		}
		return fmt.Errorf("failed to fetch request: %w", err)
	}

	versions, err := client.VersionsAfter(ctx, requestID, 0)
	if err != nil {
		return fmt.Errorf("failed to read versions: %w", err)
	}

	matched := versions[:0]
	for _, v := range versions {
		if filters.MatchesVersion(v) {
			matched = append(matched, v)
		}
	}

	switch format {
	case OutputFormatDefault:
		_, err = FormatVersionTable(w, matched, requestID)
		return err
	case OutputFormatJSONL:
		return FormatJSONL(w, matched)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
