// Package watch provides the live update feed: an ordered, finite stream of the
// blackboard versions committed for one request.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

// ErrNotFound is returned by Subscribe for an unknown request.
var ErrNotFound = errors.New("request not found")

// DefaultPollInterval is used when a feed is created with a non-positive interval.
const DefaultPollInterval = time.Second

// Feed creates subscriptions against the blackboard. It only reads the store.
type Feed struct {
	client       *blackboard.Client
	pollInterval time.Duration
}

// NewFeed creates a feed polling every pollInterval.
func NewFeed(client *blackboard.Client, pollInterval time.Duration) *Feed {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Feed{client: client, pollInterval: pollInterval}
}

// Subscription delivers versions in strictly increasing order. Events is closed
// right after a finalized version is delivered, or when the subscription is closed
// or its context is cancelled.
type Subscription struct {
	events <-chan *blackboard.Version
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of versions.
func (s *Subscription) Events() <-chan *blackboard.Version {
	return s.events
}

// Errors returns non-fatal read errors. The feed keeps polling after an error;
// errors are dropped when nobody is reading.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe streams every version committed after the one that is current now.
func (f *Feed) Subscribe(ctx context.Context, requestID string) (*Subscription, error) {
	if err := f.checkRequest(ctx, requestID); err != nil {
		return nil, err
	}

	latest, err := f.client.LatestVersionNumber(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest version: %w", err)
	}

	return f.start(ctx, requestID, latest), nil
}

// SubscribeFrom streams every version greater than after, including ones already
// stored. SubscribeFrom(ctx, id, 0) replays the whole history.
func (f *Feed) SubscribeFrom(ctx context.Context, requestID string, after int) (*Subscription, error) {
	if err := f.checkRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return f.start(ctx, requestID, after), nil
}

func (f *Feed) checkRequest(ctx context.Context, requestID string) error {
	if _, err := f.client.GetRequest(ctx, requestID); err != nil {
		if blackboard.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, requestID)
		}
		return err
	}
	return nil
}

func (f *Feed) start(ctx context.Context, requestID string, after int) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)

	eventsChan := make(chan *blackboard.Version, 16)
	errorsChan := make(chan error, 4)

	// Version events only wake the poller early. Delivery always comes from a
	// store read, so a missed event costs at most one poll interval.
	var wake <-chan *blackboard.VersionEvent
	vs, err := f.client.SubscribeVersionEvents(subCtx)
	if err != nil {
		log.Printf("[Watch] Version events unavailable, polling only: %v", err)
	} else {
		wake = vs.Events()
	}

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		if vs != nil {
			defer vs.Close()
		}

		ticker := time.NewTicker(f.pollInterval)
		defer ticker.Stop()

		last := after
		for {
			versions, err := f.client.VersionsAfter(subCtx, requestID, last)
			if err != nil {
				if subCtx.Err() != nil {
					return
				}
				select {
				case errorsChan <- fmt.Errorf("failed to read versions after %d: %w", last, err):
				default:
				}
			}

			for _, v := range versions {
				select {
				case eventsChan <- v:
				case <-subCtx.Done():
					return
				}
				last = v.Version
				if v.Finalized {
					return
				}
			}

			if !waitForChange(subCtx, ticker.C, &wake, requestID) {
				return
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancel,
	}
}

// waitForChange blocks until the next poll tick or a version event for requestID.
// Returns false when ctx is done.
func waitForChange(ctx context.Context, tick <-chan time.Time, wake *<-chan *blackboard.VersionEvent, requestID string) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-tick:
			return true
		case ev, ok := <-*wake:
			if !ok {
				*wake = nil
				continue
			}
			if ev.RequestID == requestID {
				return true
			}
		}
	}
}
