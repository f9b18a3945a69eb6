package history

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

// OutputFormat specifies how listings are written.
type OutputFormat string

const (
	// OutputFormatDefault uses a table with truncated text
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete records as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseOutputFormat validates an --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSONL:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format: %s (use default or jsonl)", s)
	}
}

// FormatVersionTable writes the versions of one request as a table.
// Returns the number of versions written.
func FormatVersionTable(w io.Writer, versions []*blackboard.Version, requestID string) (int, error) {
	if len(versions) == 0 {
		fmt.Fprintf(w, "No versions found for request '%s'\n", requestID)
		return 0, nil
	}

	fmt.Fprintf(w, "History of request '%s':\n\n", requestID)

	table := tablewriter.NewWriter(w)
	table.Header("VER", "KIND", "ITER", "SAFETY", "EMPATHY", "FINAL", "AGE", "LAST NOTE")
	for _, v := range versions {
		row := []string{
			fmt.Sprintf("v%d", v.Version),
			string(v.Kind),
			strconv.Itoa(v.Iteration),
			formatScore(v.SafetyScore),
			formatScore(v.EmpathyScore),
			formatFinalized(v.Finalized),
			formatTimestamp(v.CreatedAtMs),
			formatText(lastNote(v)),
		}
		if err := table.Append(row); err != nil {
			return 0, fmt.Errorf("failed to add table row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return 0, fmt.Errorf("failed to render table: %w", err)
	}

	fmt.Fprintf(w, "\n%d %s found\n", len(versions), plural(len(versions), "version"))
	return len(versions), nil
}

// FormatRequestTable writes requests as a table.
// Returns the number of requests written.
func FormatRequestTable(w io.Writer, requests []*blackboard.Request, instanceName string) (int, error) {
	if len(requests) == 0 {
		fmt.Fprintf(w, "No requests found for instance '%s'\n", instanceName)
		return 0, nil
	}

	fmt.Fprintf(w, "Requests for instance '%s':\n\n", instanceName)

	table := tablewriter.NewWriter(w)
	table.Header("ID", "STATUS", "AGE", "INTENT")
	for _, r := range requests {
		row := []string{
			formatID(r.ID),
			string(r.Status),
			formatTimestamp(r.CreatedAtMs),
			formatText(r.UserIntent),
		}
		if err := table.Append(row); err != nil {
			return 0, fmt.Errorf("failed to add table row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return 0, fmt.Errorf("failed to render table: %w", err)
	}

	fmt.Fprintf(w, "\n%d %s found\n", len(requests), plural(len(requests), "request"))
	return len(requests), nil
}

// FormatJSONL writes each record as a single JSON object on its own line.
func FormatJSONL[T any](w io.Writer, records []T) error {
	encoder := json.NewEncoder(w)
	for _, r := range records {
		if err := encoder.Encode(r); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes one record as pretty-printed JSON.
func FormatSingleJSON(w io.Writer, record any) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)

	return nil
}

// formatID truncates a request ID to its first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 2, 64)
}

func formatFinalized(finalized bool) string {
	if finalized {
		return "yes"
	}
	return "-"
}

func lastNote(v *blackboard.Version) string {
	if len(v.Notes) == 0 {
		return ""
	}
	n := v.Notes[len(v.Notes)-1]
	return n.Agent + ": " + n.Message
}

// formatText keeps the first non-empty line, truncated to 50 characters.
// Empty text returns "-".
func formatText(text string) string {
	var firstLine string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			firstLine = trimmed
			break
		}
	}

	if firstLine == "" {
		return "-"
	}
	if r := []rune(firstLine); len(r) > 50 {
		return string(r[:47]) + "..."
	}
	return firstLine
}

// formatTimestamp renders a millisecond timestamp as relative time ("2m ago").
func formatTimestamp(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := time.Since(time.UnixMilli(timestampMs))
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
