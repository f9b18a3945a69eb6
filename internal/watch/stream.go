package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

// OutputFormat selects how streamed versions are written.
type OutputFormat string

const (
	OutputFormatDefault OutputFormat = "default"
	OutputFormatJSON    OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format: %s", s)
	}
}

// FormatVersion renders one version as a single human-readable line.
func FormatVersion(v *blackboard.Version) string {
	ts := time.UnixMilli(v.CreatedAtMs).Format("15:04:05")

	var icon string
	switch {
	case v.Finalized:
		icon = "✅"
	case v.Kind == blackboard.VersionKindHumanDecline:
		icon = "❌"
	case v.Kind == blackboard.VersionKindHumanFeedback:
		icon = "🔄"
	default:
		icon = "📝"
	}

	line := fmt.Sprintf("[%s] %s v%d %s: iteration=%d safety=%s empathy=%s",
		ts, icon, v.Version, v.Kind, v.Iteration, score(v.SafetyScore), score(v.EmpathyScore))

	if v.Finalized {
		line += " finalized"
	}

	if n := len(v.Notes); n > 0 {
		last := v.Notes[n-1]
		line += fmt.Sprintf(" | %s: %s", last.Agent, oneLine(last.Message))
	}
	return line
}

// Stream writes every version from sub to w until the subscription ends, ctx is
// cancelled or a write fails. Returns the last version written.
func Stream(ctx context.Context, sub *Subscription, format OutputFormat, w io.Writer) (*blackboard.Version, error) {
	var last *blackboard.Version
	errs := sub.Errors()

	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if format != OutputFormatJSON {
				fmt.Fprintf(w, "warning: %v\n", err)
			}

		case v, ok := <-sub.Events():
			if !ok {
				return last, nil
			}
			last = v
			if err := writeVersion(w, format, v); err != nil {
				return last, err
			}
		}
	}
}

func writeVersion(w io.Writer, format OutputFormat, v *blackboard.Version) error {
	var err error
	if format == OutputFormatJSON {
		err = json.NewEncoder(w).Encode(v)
	} else {
		_, err = fmt.Fprintln(w, FormatVersion(v))
	}
	if err != nil {
		return fmt.Errorf("failed to write version: %w", err)
	}
	return nil
}

func score(f float64) string {
	return fmt.Sprintf("%.2f", f)
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > 120 {
		s = string(r[:117]) + "..."
	}
	return s
}
