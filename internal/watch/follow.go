package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

// Follow writes every version after `after` to w until a finalized version is
// written, the request reaches a status for which done returns true, or ctx ends.
// Versions committed before the status change are always written. done may be nil.
// Returns the last version written.
func (f *Feed) Follow(ctx context.Context, requestID string, after int, done func(blackboard.RequestStatus) bool, format OutputFormat, w io.Writer) (*blackboard.Version, error) {
	followCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, err := f.SubscribeFrom(followCtx, requestID, after)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	if done != nil {
		go f.watchStatus(followCtx, cancel, requestID, done)
	}

	last, err := Stream(followCtx, sub, format, w)
	if ctx.Err() != nil {
		return last, ctx.Err()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return last, err
	}
	if last != nil && last.Finalized {
		return last, nil
	}

	// Stopped on status: flush what was committed before the change
	from := after
	if last != nil {
		from = last.Version
	}
	rest, err := f.client.VersionsAfter(ctx, requestID, from)
	if err != nil {
		return last, fmt.Errorf("failed to read versions after %d: %w", from, err)
	}
	for _, v := range rest {
		if err := writeVersion(w, format, v); err != nil {
			return last, err
		}
		last = v
		if v.Finalized {
			break
		}
	}
	return last, nil
}

// watchStatus calls cancel once done reports true for the request's status.
func (f *Feed) watchStatus(ctx context.Context, cancel func(), requestID string, done func(blackboard.RequestStatus) bool) {
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		req, err := f.client.GetRequest(ctx, requestID)
		if err == nil && done(req.Status) {
			cancel()
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
