package blackboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrVersionConflict is returned by AppendVersion when the requested version number
// is not greater than the current latest version of the request.
var ErrVersionConflict = errors.New("version conflict")

// StatusMismatchError is returned by TransitionStatus when the request's current
// status is not one of the allowed source statuses.
type StatusMismatchError struct {
	RequestID string
	Current   RequestStatus
	Target    RequestStatus
}

func (e *StatusMismatchError) Error() string {
	return fmt.Sprintf("request %s: cannot transition from %s to %s", e.RequestID, e.Current, e.Target)
}

// appendVersionScript assigns (or checks) the version number and writes the version
// hash plus its thread entry in one atomic step. With a target status it also
// moves the request to that status, but only from one of the allowed statuses.
// KEYS[1] = version thread, KEYS[2] = version key prefix, KEYS[3] = request hash
// ARGV[1] = requested version (0 = latest+1), ARGV[2] = target status ('' = keep),
// ARGV[3] = n allowed statuses (0 = any), ARGV[4..3+n] = allowed statuses,
// ARGV[4+n..] = hash field/value pairs
var appendVersionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 0 then
	return redis.error_reply('NOT_FOUND')
end
local target = ARGV[2]
local n = tonumber(ARGV[3])
if target ~= '' and n > 0 then
	local cur = redis.call('HGET', KEYS[3], 'status')
	local allowed = false
	for i = 4, 3 + n do
		if cur == ARGV[i] then
			allowed = true
		end
	end
	if not allowed then
		return redis.error_reply('STATUS_MISMATCH ' .. cur)
	end
end
local top = redis.call('ZREVRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local latest = 0
if #top > 0 then
	latest = tonumber(top[2])
end
local v = tonumber(ARGV[1])
if v == 0 then
	v = latest + 1
elseif v <= latest then
	return redis.error_reply('VERSION_CONFLICT ' .. latest)
end
if target ~= '' then
	redis.call('HSET', KEYS[3], 'status', target)
end
redis.call('HSET', KEYS[2] .. v, 'version', tostring(v), unpack(ARGV, 4 + n))
redis.call('ZADD', KEYS[1], v, tostring(v))
return v
`)

// transitionStatusScript sets a request's status if its current status is allowed.
// KEYS[1] = request hash; ARGV[1] = target status, ARGV[2..] = allowed current statuses
// (none = any). Returns the previous status.
var transitionStatusScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
	return redis.error_reply('NOT_FOUND')
end
if #ARGV == 1 then
	redis.call('HSET', KEYS[1], 'status', ARGV[1])
	return cur
end
for i = 2, #ARGV do
	if cur == ARGV[i] then
		redis.call('HSET', KEYS[1], 'status', ARGV[1])
		return cur
	end
end
return redis.error_reply('STATUS_MISMATCH ' .. cur)
`)

// acquireRunLockScript takes the run lock only while the request is in the required status.
// KEYS[1] = request hash, KEYS[2] = lock key; ARGV[1] = token, ARGV[2] = ttl ms, ARGV[3] = status
var acquireRunLockScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
	return redis.error_reply('NOT_FOUND')
end
if cur ~= ARGV[3] then
	return 0
end
if redis.call('SET', KEYS[2], ARGV[1], 'NX', 'PX', ARGV[2]) then
	return 1
end
return 0
`)

var refreshRunLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

var releaseRunLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Client provides instance-scoped Redis operations for the blackboard.
// All keys and channels are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new blackboard client for the specified instance.
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// InstanceName returns the namespace this client operates in.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// CreateRequest creates a new request with a fresh UUID in the given status and
// adds it to the instance's request index.
func (c *Client) CreateRequest(ctx context.Context, userIntent string, status RequestStatus) (*Request, error) {
	req := &Request{
		ID:          uuid.New().String(),
		UserIntent:  userIntent,
		Status:      status,
		CreatedAtMs: time.Now().UnixMilli(),
	}

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, RequestKey(c.instanceName, req.ID), RequestToHash(req))
		pipe.ZAdd(ctx, RequestIndexKey(c.instanceName), redis.Z{
			Score:  float64(req.CreatedAtMs),
			Member: req.ID,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write request to Redis: %w", err)
	}

	return req, nil
}

// GetRequest retrieves a request by ID.
// Returns (nil, redis.Nil) if the request doesn't exist. Use IsNotFound() to check.
func (c *Client) GetRequest(ctx context.Context, requestID string) (*Request, error) {
	hashData, err := c.rdb.HGetAll(ctx, RequestKey(c.instanceName, requestID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read request from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	req, err := HashToRequest(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize request: %w", err)
	}

	return req, nil
}

// TransitionStatus atomically moves a request to status `to` if its current status is
// one of `from`. With no `from` statuses the transition is unconditional.
// Returns the previous status, redis.Nil if the request doesn't exist, or a
// *StatusMismatchError if the current status is not allowed.
func (c *Client) TransitionStatus(ctx context.Context, requestID string, to RequestStatus, from ...RequestStatus) (RequestStatus, error) {
	if err := to.Validate(); err != nil {
		return "", err
	}

	args := make([]interface{}, 0, len(from)+1)
	args = append(args, string(to))
	for _, s := range from {
		args = append(args, string(s))
	}

	prev, err := transitionStatusScript.Run(ctx, c.rdb, []string{RequestKey(c.instanceName, requestID)}, args...).Text()
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "NOT_FOUND"):
			return "", redis.Nil
		case strings.Contains(msg, "STATUS_MISMATCH"):
			return "", statusMismatch(requestID, to, msg)
		}
		return "", fmt.Errorf("failed to transition request status: %w", err)
	}

	return RequestStatus(prev), nil
}

// SetRequestStatus unconditionally sets a request's status.
// Returns redis.Nil if the request doesn't exist.
func (c *Client) SetRequestStatus(ctx context.Context, requestID string, status RequestStatus) error {
	_, err := c.TransitionStatus(ctx, requestID, status)
	return err
}

// ListRequests returns all requests of the instance, oldest first.
// Requests whose hash cannot be read are skipped.
func (c *Client) ListRequests(ctx context.Context) ([]*Request, error) {
	ids, err := c.rdb.ZRange(ctx, RequestIndexKey(c.instanceName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read request index: %w", err)
	}

	if len(ids) == 0 {
		return []*Request{}, nil
	}

	cmds, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.HGetAll(ctx, RequestKey(c.instanceName, id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read requests: %w", err)
	}

	requests := make([]*Request, 0, len(cmds))
	for _, cmd := range cmds {
		hashData, err := cmd.(*redis.MapStringStringCmd).Result()
		if err != nil || len(hashData) == 0 {
			continue
		}
		req, err := HashToRequest(hashData)
		if err != nil {
			continue
		}
		requests = append(requests, req)
	}

	return requests, nil
}

// RequestsByStatus returns the requests whose status is one of the given statuses.
func (c *Client) RequestsByStatus(ctx context.Context, statuses ...RequestStatus) ([]*Request, error) {
	all, err := c.ListRequests(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[RequestStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var out []*Request
	for _, req := range all {
		if wanted[req.Status] {
			out = append(out, req)
		}
	}
	return out, nil
}

// ScanRequestIDs returns the IDs of all requests starting with prefix.
func (c *Client) ScanRequestIDs(ctx context.Context, prefix string) ([]string, error) {
	ids, err := c.rdb.ZRange(ctx, RequestIndexKey(c.instanceName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read request index: %w", err)
	}

	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	return matches, nil
}

// AppendVersion appends a new immutable version for a request and publishes a
// version event. A zero v.Version is assigned latest+1; a non-zero v.Version must be
// greater than the current latest, otherwise ErrVersionConflict is returned and
// nothing is written. On success v.Version and v.CreatedAtMs are populated and the
// assigned version number is returned. Returns redis.Nil if the request doesn't exist.
func (c *Client) AppendVersion(ctx context.Context, v *Version) (int, error) {
	return c.appendVersion(ctx, v, "", nil)
}

// AppendVersionWithStatus appends v and moves the request to status `to` in one
// atomic step. The request must currently be in one of `from` (any status when
// from is empty), otherwise a *StatusMismatchError is returned and nothing is
// written. Version numbering follows AppendVersion.
func (c *Client) AppendVersionWithStatus(ctx context.Context, v *Version, to RequestStatus, from ...RequestStatus) (int, error) {
	if err := to.Validate(); err != nil {
		return 0, err
	}
	return c.appendVersion(ctx, v, to, from)
}

func (c *Client) appendVersion(ctx context.Context, v *Version, to RequestStatus, from []RequestStatus) (int, error) {
	if v.CreatedAtMs == 0 {
		v.CreatedAtMs = time.Now().UnixMilli()
	}

	if err := v.Validate(); err != nil {
		return 0, fmt.Errorf("invalid version: %w", err)
	}

	fields, err := VersionToFields(v)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize version: %w", err)
	}

	keys := []string{
		VersionThreadKey(c.instanceName, v.RequestID),
		VersionKeyPrefix(c.instanceName, v.RequestID),
		RequestKey(c.instanceName, v.RequestID),
	}
	args := make([]interface{}, 0, 3+len(from)+len(fields))
	args = append(args, strconv.Itoa(v.Version), string(to), strconv.Itoa(len(from)))
	for _, s := range from {
		args = append(args, string(s))
	}
	args = append(args, fields...)

	assigned, err := appendVersionScript.Run(ctx, c.rdb, keys, args...).Int()
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "NOT_FOUND"):
			return 0, redis.Nil
		case strings.Contains(msg, "STATUS_MISMATCH"):
			return 0, statusMismatch(v.RequestID, to, msg)
		case strings.Contains(msg, "VERSION_CONFLICT"):
			return 0, fmt.Errorf("%w: request %s version %d (%s)", ErrVersionConflict, v.RequestID, v.Version, msg)
		}
		return 0, fmt.Errorf("failed to append version: %w", err)
	}
	v.Version = assigned

	event, err := json.Marshal(VersionEvent{
		RequestID: v.RequestID,
		Version:   v.Version,
		Kind:      v.Kind,
		Finalized: v.Finalized,
	})
	if err != nil {
		return assigned, fmt.Errorf("failed to marshal version event: %w", err)
	}

	if err := c.rdb.Publish(ctx, VersionEventsChannel(c.instanceName), event).Err(); err != nil {
		return assigned, fmt.Errorf("failed to publish version event: %w", err)
	}

	return assigned, nil
}

// statusMismatch builds the typed error from a STATUS_MISMATCH script reply.
func statusMismatch(requestID string, to RequestStatus, reply string) *StatusMismatchError {
	current := strings.TrimSpace(reply[strings.Index(reply, "STATUS_MISMATCH")+len("STATUS_MISMATCH"):])
	return &StatusMismatchError{RequestID: requestID, Current: RequestStatus(current), Target: to}
}

// GetVersion retrieves a specific version of a request.
// Returns (nil, redis.Nil) if it doesn't exist.
func (c *Client) GetVersion(ctx context.Context, requestID string, version int) (*Version, error) {
	hashData, err := c.rdb.HGetAll(ctx, VersionKey(c.instanceName, requestID, version)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read version from Redis: %w", err)
	}

	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	v, err := HashToVersion(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize version: %w", err)
	}

	return v, nil
}

// LatestVersionNumber returns the highest version number of a request, or 0 if the
// request has no versions yet.
func (c *Client) LatestVersionNumber(ctx context.Context, requestID string) (int, error) {
	results, err := c.rdb.ZRevRangeWithScores(ctx, VersionThreadKey(c.instanceName, requestID), 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get latest version from thread: %w", err)
	}

	if len(results) == 0 {
		return 0, nil
	}

	return VersionFromScore(results[0].Score), nil
}

// LatestVersion retrieves the current (highest) version of a request.
// Returns (nil, redis.Nil) if the request has no versions.
func (c *Client) LatestVersion(ctx context.Context, requestID string) (*Version, error) {
	latest, err := c.LatestVersionNumber(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if latest == 0 {
		return nil, redis.Nil
	}

	return c.GetVersion(ctx, requestID, latest)
}

// VersionsAfter returns all versions of a request with a number greater than `after`,
// in increasing version order. Returns an empty slice when there are none.
func (c *Client) VersionsAfter(ctx context.Context, requestID string, after int) ([]*Version, error) {
	members, err := c.rdb.ZRangeByScore(ctx, VersionThreadKey(c.instanceName, requestID), &redis.ZRangeBy{
		Min: afterBound(after),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read version thread: %w", err)
	}

	if len(members) == 0 {
		return []*Version{}, nil
	}

	cmds, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range members {
			pipe.HGetAll(ctx, VersionKeyPrefix(c.instanceName, requestID)+m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read versions: %w", err)
	}

	versions := make([]*Version, 0, len(cmds))
	for i, cmd := range cmds {
		hashData, err := cmd.(*redis.MapStringStringCmd).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read version %s: %w", members[i], err)
		}
		if len(hashData) == 0 {
			continue
		}
		v, err := HashToVersion(hashData)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize version %s: %w", members[i], err)
		}
		versions = append(versions, v)
	}

	return versions, nil
}

// AcquireRunLock takes the run lock of a request for token, but only while the
// request's status equals requiredStatus. The status check and the lock are one
// atomic step. Returns false if the status differs or the lock is held.
// Returns redis.Nil if the request doesn't exist.
func (c *Client) AcquireRunLock(ctx context.Context, requestID, token string, ttl time.Duration, requiredStatus RequestStatus) (bool, error) {
	keys := []string{RequestKey(c.instanceName, requestID), RunLockKey(c.instanceName, requestID)}

	n, err := acquireRunLockScript.Run(ctx, c.rdb, keys, token, ttl.Milliseconds(), string(requiredStatus)).Int()
	if err != nil {
		if strings.Contains(err.Error(), "NOT_FOUND") {
			return false, redis.Nil
		}
		return false, fmt.Errorf("failed to acquire run lock: %w", err)
	}

	return n == 1, nil
}

// RefreshRunLock extends the lock TTL if token still owns it.
func (c *Client) RefreshRunLock(ctx context.Context, requestID, token string, ttl time.Duration) (bool, error) {
	n, err := refreshRunLockScript.Run(ctx, c.rdb, []string{RunLockKey(c.instanceName, requestID)}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to refresh run lock: %w", err)
	}
	return n == 1, nil
}

// ReleaseRunLock deletes the lock if token still owns it.
func (c *Client) ReleaseRunLock(ctx context.Context, requestID, token string) error {
	if err := releaseRunLockScript.Run(ctx, c.rdb, []string{RunLockKey(c.instanceName, requestID)}, token).Err(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}

// RunLockHeld reports whether any run currently owns the request's run lock.
func (c *Client) RunLockHeld(ctx context.Context, requestID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, RunLockKey(c.instanceName, requestID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check run lock: %w", err)
	}
	return n == 1, nil
}

// EnqueueRun pushes a run job onto the instance's run queue.
func (c *Client) EnqueueRun(ctx context.Context, job *RunJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal run job: %w", err)
	}

	if err := c.rdb.RPush(ctx, RunQueueKey(c.instanceName), data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue run job: %w", err)
	}
	return nil
}

// DequeueRun blocks up to timeout for the next run job.
// Returns (nil, redis.Nil) when the timeout elapses with an empty queue.
func (c *Client) DequeueRun(ctx context.Context, timeout time.Duration) (*RunJob, error) {
	result, err := c.rdb.BLPop(ctx, timeout, RunQueueKey(c.instanceName)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to dequeue run job: %w", err)
	}

	// BLPOP returns [key, value]
	var job RunJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run job: %w", err)
	}
	return &job, nil
}

// VersionEvent announces a newly appended version.
type VersionEvent struct {
	RequestID string      `json:"request_id"`
	Version   int         `json:"version"`
	Kind      VersionKind `json:"kind"`
	Finalized bool        `json:"finalized"`
}

// VersionSubscription represents an active Pub/Sub subscription to version events.
// Caller must call Close() when done to clean up resources.
type VersionSubscription struct {
	events <-chan *VersionEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of version events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *VersionSubscription) Events() <-chan *VersionEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
// The subscription continues after errors - malformed messages are skipped.
func (s *VersionSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *VersionSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeVersionEvents subscribes to version append events for this instance.
// Events are delivered on a buffered channel (size 10). Redis Pub/Sub is
// at-most-once, so consumers must treat events as hints and read the store for truth.
func (c *Client) SubscribeVersionEvents(ctx context.Context) (*VersionSubscription, error) {
	pubsub := c.rdb.Subscribe(ctx, VersionEventsChannel(c.instanceName))

	eventsChan := make(chan *VersionEvent, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event VersionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal version event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &VersionSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
// Use this to check if GetRequest, GetVersion or LatestVersion returned "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
