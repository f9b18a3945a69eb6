package blackboard

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so multiple
// foundry instances can coexist on a single Redis server.
//
// Key pattern: foundry:{instance_name}:{entity}:{id}
// Channel pattern: foundry:{instance_name}:{event_type}_events

// RequestKey returns the Redis key for a request hash.
// Pattern: foundry:{instance_name}:request:{request_id}
func RequestKey(instanceName, requestID string) string {
	return fmt.Sprintf("foundry:%s:request:%s", instanceName, requestID)
}

// RequestIndexKey returns the Redis key for the request index ZSET (score = created_at_ms).
// Pattern: foundry:{instance_name}:requests
func RequestIndexKey(instanceName string) string {
	return fmt.Sprintf("foundry:%s:requests", instanceName)
}

// VersionThreadKey returns the Redis key for a request's version ZSET.
// Pattern: foundry:{instance_name}:request:{request_id}:versions
func VersionThreadKey(instanceName, requestID string) string {
	return fmt.Sprintf("foundry:%s:request:%s:versions", instanceName, requestID)
}

// VersionKeyPrefix returns the prefix shared by all version hashes of a request.
// The version number is appended to form the full key.
func VersionKeyPrefix(instanceName, requestID string) string {
	return fmt.Sprintf("foundry:%s:request:%s:version:", instanceName, requestID)
}

// VersionKey returns the Redis key for a single version hash.
// Pattern: foundry:{instance_name}:request:{request_id}:version:{n}
func VersionKey(instanceName, requestID string, version int) string {
	return fmt.Sprintf("%s%d", VersionKeyPrefix(instanceName, requestID), version)
}

// RunLockKey returns the Redis key holding the run lock of a request.
// Pattern: foundry:{instance_name}:request:{request_id}:run_lock
func RunLockKey(instanceName, requestID string) string {
	return fmt.Sprintf("foundry:%s:request:%s:run_lock", instanceName, requestID)
}

// RunQueueKey returns the Redis list used to hand run jobs to worker processes.
// Pattern: foundry:{instance_name}:run_queue
func RunQueueKey(instanceName string) string {
	return fmt.Sprintf("foundry:%s:run_queue", instanceName)
}

// VersionEventsChannel returns the Pub/Sub channel announcing appended versions.
// Pattern: foundry:{instance_name}:version_events
func VersionEventsChannel(instanceName string) string {
	return fmt.Sprintf("foundry:%s:version_events", instanceName)
}
