// Package instance validates instance names and picks the default Redis address.
// An instance name namespaces every blackboard key, so several foundry
// deployments can share one Redis server.
package instance

import (
	"fmt"
	"os"
	"regexp"
)

const (
	// DefaultName is used when no --instance is given
	DefaultName = "default"

	// MaxNameLength is the maximum length for an instance name
	MaxNameLength = 63
)

// NamePattern: lowercase alphanumeric, hyphens allowed but not at start/end.
var NamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateName checks that name is safe to embed in Redis keys.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("instance name too long: %d characters (max: %d)", len(name), MaxNameLength)
	}

	if !NamePattern.MatchString(name) {
		return fmt.Errorf("invalid instance name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}

	return nil
}

// RedisHost returns "host.docker.internal" inside a container, so a CLI running
// in Docker reaches Redis published on the host, and "localhost" otherwise.
func RedisHost() string {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return "host.docker.internal"
	}
	return "localhost"
}

// DefaultRedisURL is the Redis URL used when neither --redis-url nor
// FOUNDRY_REDIS_URL is set.
func DefaultRedisURL() string {
	return fmt.Sprintf("redis://%s:6379/0", RedisHost())
}
