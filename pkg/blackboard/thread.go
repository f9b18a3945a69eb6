package blackboard

import "strconv"

// Version thread utilities
//
// The versions of one request are tracked in a Redis ZSET where:
// - Key: foundry:{instance_name}:request:{request_id}:versions
// - Members: the version number as a decimal string
// - Score: the version number (as float64)
//
// The append script writes members and scores itself. Reads convert back here.

// VersionFromScore converts a Redis ZSET score back to a version number.
func VersionFromScore(score float64) int {
	return int(score)
}

// afterBound returns the exclusive lower bound for ZRANGEBYSCORE reads past a version.
func afterBound(version int) string {
	return "(" + strconv.Itoa(version)
}
