package history

import (
	"path/filepath"

	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

// Criteria defines filtering options for history and request listings.
// All filters are ANDed together.
type Criteria struct {
	SinceTimestampMs int64                    // Unix timestamp in milliseconds, 0 = no filter
	UntilTimestampMs int64                    // Unix timestamp in milliseconds, 0 = no filter
	KindGlob         string                   // Glob pattern for version kind, empty = no filter
	Agent            string                   // Version must carry a note from this agent, empty = no filter
	Status           blackboard.RequestStatus // Exact request status, empty = no filter
}

func (c *Criteria) inRange(createdAtMs int64) bool {
	if c.SinceTimestampMs > 0 && createdAtMs < c.SinceTimestampMs {
		return false
	}
	if c.UntilTimestampMs > 0 && createdAtMs > c.UntilTimestampMs {
		return false
	}
	return true
}

// MatchesVersion returns true if the version matches all version criteria.
// Status is ignored.
func (c *Criteria) MatchesVersion(v *blackboard.Version) bool {
	if c == nil {
		return true
	}
	if !c.inRange(v.CreatedAtMs) {
		return false
	}

	if c.KindGlob != "" {
		matched, err := filepath.Match(c.KindGlob, string(v.Kind))
		if err != nil || !matched {
			return false
		}
	}

	if c.Agent != "" && !hasNoteFrom(v, c.Agent) {
		return false
	}

	return true
}

// MatchesRequest returns true if the request matches the time range and status.
// Kind and agent are ignored.
func (c *Criteria) MatchesRequest(r *blackboard.Request) bool {
	if c == nil {
		return true
	}
	if !c.inRange(r.CreatedAtMs) {
		return false
	}
	return c.Status == "" || r.Status == c.Status
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c != nil && (c.SinceTimestampMs > 0 ||
		c.UntilTimestampMs > 0 ||
		c.KindGlob != "" ||
		c.Agent != "" ||
		c.Status != "")
}

func hasNoteFrom(v *blackboard.Version, agent string) bool {
	for _, n := range v.Notes {
		if n.Agent == agent {
			return true
		}
	}
	return false
}
