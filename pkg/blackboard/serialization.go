package blackboard

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). The notes array is
// JSON-encoded into a single hash field; scalar fields are stored as their decimal
// or boolean string form.

// RequestToHash converts a Request struct to a Redis hash format.
func RequestToHash(r *Request) map[string]interface{} {
	return map[string]interface{}{
		"id":            r.ID,
		"user_intent":   r.UserIntent,
		"status":        string(r.Status),
		"created_at_ms": r.CreatedAtMs,
	}
}

// HashToRequest converts a Redis hash to a Request struct.
func HashToRequest(hash map[string]string) (*Request, error) {
	createdAtMs, err := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at_ms field: %w", err)
	}

	return &Request{
		ID:          hash["id"],
		UserIntent:  hash["user_intent"],
		Status:      RequestStatus(hash["status"]),
		CreatedAtMs: createdAtMs,
	}, nil
}

// VersionToFields converts a Version to a flat field/value list for HSET.
// The version number itself is omitted: it is assigned atomically by the append script.
func VersionToFields(v *Version) ([]interface{}, error) {
	notes := v.Notes
	if notes == nil {
		notes = []Note{}
	}

	notesJSON, err := json.Marshal(notes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notes: %w", err)
	}

	return []interface{}{
		"request_id", v.RequestID,
		"kind", string(v.Kind),
		"draft_text", v.DraftText,
		"safety_score", strconv.FormatFloat(v.SafetyScore, 'f', -1, 64),
		"empathy_score", strconv.FormatFloat(v.EmpathyScore, 'f', -1, 64),
		"iteration", strconv.Itoa(v.Iteration),
		"notes", string(notesJSON),
		"finalized", strconv.FormatBool(v.Finalized),
		"created_at_ms", strconv.FormatInt(v.CreatedAtMs, 10),
	}, nil
}

// HashToVersion converts a Redis hash to a Version struct.
func HashToVersion(hash map[string]string) (*Version, error) {
	version, err := strconv.Atoi(hash["version"])
	if err != nil {
		return nil, fmt.Errorf("invalid version field: %w", err)
	}

	iteration, err := strconv.Atoi(hash["iteration"])
	if err != nil {
		return nil, fmt.Errorf("invalid iteration field: %w", err)
	}

	safetyScore, err := strconv.ParseFloat(hash["safety_score"], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid safety_score field: %w", err)
	}

	empathyScore, err := strconv.ParseFloat(hash["empathy_score"], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid empathy_score field: %w", err)
	}

	var notes []Note
	if notesJSON := hash["notes"]; notesJSON != "" {
		if err := json.Unmarshal([]byte(notesJSON), &notes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notes: %w", err)
		}
	}

	// Ensure we have an empty slice instead of nil for consistency
	if notes == nil {
		notes = []Note{}
	}

	finalized, _ := strconv.ParseBool(hash["finalized"])
	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	return &Version{
		RequestID:    hash["request_id"],
		Version:      version,
		Kind:         VersionKind(hash["kind"]),
		DraftText:    hash["draft_text"],
		SafetyScore:  safetyScore,
		EmpathyScore: empathyScore,
		Iteration:    iteration,
		Notes:        notes,
		Finalized:    finalized,
		CreatedAtMs:  createdAtMs,
	}, nil
}
